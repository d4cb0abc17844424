package searcher

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lexgo/index"
	"github.com/hupe1980/lexgo/reference"
	"github.com/hupe1980/lexgo/resource"
)

// ErrInvalidFactory is returned when a Factory violates its contract by
// producing a Searcher that does not wrap the reader it was handed.
var ErrInvalidFactory = errors.New("searcher factory returned a searcher over an unrelated reader")

// Factory builds a Searcher over a freshly opened reader. previous is
// the reader of the snapshot being replaced (nil for the first one);
// implementations may use it to carry caches forward. The returned
// Searcher must wrap exactly the reader it was given.
type Factory func(reader, previous *index.Reader) (*Searcher, error)

// DefaultFactory wraps the reader with no extra state.
func DefaultFactory(reader, _ *index.Reader) (*Searcher, error) {
	return NewSearcher(reader), nil
}

// Warmer primes a new Searcher before it is published as current.
type Warmer func(ctx context.Context, s *Searcher) error

// FieldWarmer returns a Warmer that touches the postings of every term,
// one goroutine per field.
func FieldWarmer() Warmer {
	return func(ctx context.Context, s *Searcher) error {
		g, ctx := errgroup.WithContext(ctx)
		for _, field := range s.Reader().Fields() {
			g.Go(func() error {
				for _, term := range s.Reader().Terms(field) {
					if err := ctx.Err(); err != nil {
						return err
					}
					_ = s.Reader().Postings(field, term).GetCardinality()
				}
				return nil
			})
		}
		return g.Wait()
	}
}

// Manager keeps one current Searcher over a TrackingWriter's index and
// refreshes it on demand. It embeds the generic reference manager, so
// Acquire/Release/MaybeRefresh/Close/AddListener all apply.
type Manager struct {
	*reference.Manager[*Searcher]

	writer  *index.TrackingWriter
	factory Factory
	warmer  Warmer
	ctrl    *resource.Controller
	logger  *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFactory sets the searcher factory.
func WithFactory(f Factory) ManagerOption {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithWarmer sets the warmer invoked on every new snapshot before it
// becomes current.
func WithWarmer(w Warmer) ManagerOption {
	return func(m *Manager) {
		m.warmer = w
	}
}

// WithResourceController gates warm work behind background worker slots.
func WithResourceController(c *resource.Controller) ManagerOption {
	return func(m *Manager) {
		m.ctrl = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager opens the initial snapshot from tw's index and returns a
// Manager owning it. A factory that violates its contract is detected
// here or on the first refresh, never published.
func NewManager(ctx context.Context, tw *index.TrackingWriter, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		writer:  tw,
		factory: DefaultFactory,
	}
	for _, opt := range opts {
		opt(m)
	}

	initial, _, err := m.open(ctx, nil)
	if err != nil {
		return nil, err
	}
	m.Manager = reference.NewManager[*Searcher](m, initial)
	return m, nil
}

// Open implements reference.Source. It returns (nil, false, nil) when
// the index has not changed since previous was opened.
func (m *Manager) Open(ctx context.Context, previous *Searcher) (*Searcher, bool, error) {
	var prev *index.Reader
	if previous != nil {
		prev = previous.Reader()
	}
	return m.open(ctx, prev)
}

func (m *Manager) open(ctx context.Context, prev *index.Reader) (*Searcher, bool, error) {
	// Captured before the reader opens: every mutation stamped <= gen
	// is already applied, so the new view reflects at least gen.
	gen := m.writer.Generation()

	reader, err := m.writer.Writer().OpenIfChanged(prev)
	if err != nil {
		return nil, false, err
	}
	if reader == nil {
		return nil, false, nil
	}

	s, err := m.factory(reader, prev)
	if err != nil {
		return nil, false, err
	}
	if s == nil || s.Reader() != reader {
		return nil, false, ErrInvalidFactory
	}
	s.gen = gen

	if err := m.warm(ctx, s); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (m *Manager) warm(ctx context.Context, s *Searcher) error {
	if m.warmer == nil {
		return nil
	}
	if m.ctrl != nil {
		if err := m.ctrl.AcquireBackground(ctx); err != nil {
			return err
		}
		defer m.ctrl.ReleaseBackground()
	}
	return m.warmer(ctx, s)
}

// Dispose implements reference.Source. Searchers hold no resources
// beyond their reader, which is garbage collected; this hook exists for
// observability.
func (m *Manager) Dispose(s *Searcher) error {
	if m.logger != nil {
		m.logger.Debug("searcher disposed", "generation", s.Generation(), "docs", s.Reader().NumDocs())
	}
	return nil
}
