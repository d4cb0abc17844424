package lexgo

import (
	"log/slog"
	"time"

	"github.com/hupe1980/lexgo/analysis"
	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/persist"
	"github.com/hupe1980/lexgo/reopen"
	"github.com/hupe1980/lexgo/resource"
	"github.com/hupe1980/lexgo/searcher"
)

type options struct {
	minInterval time.Duration
	maxInterval time.Duration
	analyzer    analysis.Analyzer
	factory     searcher.Factory
	warmer      searcher.Warmer
	store       blobstore.Store
	codec       persist.Codec
	ctrl        *resource.Controller
	metrics     reopen.MetricsObserver
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithRefreshInterval bounds the background reopen cadence. The index
// never grows staler than max, and refreshes are never attempted
// closer together than min, even under a storm of WaitSearchable
// calls. Defaults: 25ms and 1s.
func WithRefreshInterval(min, max time.Duration) Option {
	return func(o *options) {
		o.minInterval = min
		o.maxInterval = max
	}
}

// WithAnalyzer sets the analyzer used to turn field text into terms.
// Default: analysis.Simple.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(o *options) {
		o.analyzer = a
	}
}

// WithSearcherFactory sets the factory that wraps each new index
// snapshot in a Searcher. See searcher.Factory for the contract.
func WithSearcherFactory(f searcher.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithWarmer runs the warmer against every new searcher before it is
// published, so the first query after a refresh does not pay cold
// costs.
func WithWarmer(w searcher.Warmer) Option {
	return func(o *options) {
		o.warmer = w
	}
}

// WithBlobStore enables Commit and restores the latest committed
// snapshot on Open.
func WithBlobStore(store blobstore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithCodec sets the snapshot compression codec. Default: zstd.
// Only meaningful together with WithBlobStore.
func WithCodec(c persist.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithResourceController throttles background warm work and snapshot IO.
func WithResourceController(ctrl *resource.Controller) Option {
	return func(o *options) {
		o.ctrl = ctrl
	}
}

// WithMetrics observes refresh and wait outcomes.
func WithMetrics(m reopen.MetricsObserver) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger shared by all components. A nil logger
// disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
