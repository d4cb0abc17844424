package lexgo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/index"
	"github.com/hupe1980/lexgo/persist"
	"github.com/hupe1980/lexgo/reference"
	"github.com/hupe1980/lexgo/reopen"
	"github.com/hupe1980/lexgo/searcher"
)

const (
	defaultMinInterval = 25 * time.Millisecond
	defaultMaxInterval = time.Second

	snapshotPrefix = "snap-"
)

// Lexgo is an embedded near-real-time full-text index.
//
// All methods are safe for concurrent use. Mutations are serialized by
// the underlying writer; searches never block on writes.
type Lexgo struct {
	writer   *index.Writer
	tracking *index.TrackingWriter
	manager  *searcher.Manager
	sched    *reopen.Scheduler
	snap     *persist.Snapshotter
	logger   *slog.Logger

	commitMu  sync.Mutex
	commitSeq uint64

	closed atomic.Bool
}

// Open creates an index and starts its background refresh loop.
//
// With a blob store configured, Open restores the most recent committed
// snapshot before indexing begins. Generations are process-local and
// restart at zero on every Open.
func Open(ctx context.Context, opts ...Option) (*Lexgo, error) {
	o := options{
		minInterval: defaultMinInterval,
		maxInterval: defaultMaxInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var writerOpts []index.WriterOption
	if o.analyzer != nil {
		writerOpts = append(writerOpts, index.WithAnalyzer(o.analyzer))
	}

	lx := &Lexgo{logger: logger}

	if o.store != nil {
		snapOpts := []persist.SnapshotterOption{
			persist.WithResourceController(o.ctrl),
			persist.WithLogger(logger),
		}
		if o.codec != nil {
			snapOpts = append(snapOpts, persist.WithCodec(o.codec))
		}
		lx.snap = persist.NewSnapshotter(o.store, snapOpts...)

		w, seq, err := restore(ctx, lx.snap, o.store, writerOpts)
		if err != nil {
			return nil, err
		}
		lx.writer = w
		lx.commitSeq = seq
	} else {
		lx.writer = index.NewWriter(writerOpts...)
	}

	lx.tracking = index.NewTrackingWriter(lx.writer)

	mgrOpts := []searcher.ManagerOption{
		searcher.WithLogger(logger),
		searcher.WithResourceController(o.ctrl),
	}
	if o.factory != nil {
		mgrOpts = append(mgrOpts, searcher.WithFactory(o.factory))
	}
	if o.warmer != nil {
		mgrOpts = append(mgrOpts, searcher.WithWarmer(o.warmer))
	}
	manager, err := searcher.NewManager(ctx, lx.tracking, mgrOpts...)
	if err != nil {
		return nil, err
	}
	lx.manager = manager

	schedOpts := []reopen.Option{reopen.WithLogger(logger)}
	if o.metrics != nil {
		schedOpts = append(schedOpts, reopen.WithMetrics(o.metrics))
	}
	sched, err := reopen.New(manager, lx.tracking, o.minInterval, o.maxInterval, schedOpts...)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}
	lx.sched = sched

	return lx, nil
}

// restore loads the most recent committed snapshot, if any.
func restore(ctx context.Context, snap *persist.Snapshotter, store blobstore.Store, writerOpts []index.WriterOption) (*index.Writer, uint64, error) {
	names, err := store.List(ctx, snapshotPrefix)
	if err != nil {
		return nil, 0, fmt.Errorf("lexgo: list snapshots: %w", err)
	}
	if len(names) == 0 {
		return index.NewWriter(writerOpts...), 0, nil
	}

	// Names are zero-padded, so the lexicographically last is newest.
	latest := names[len(names)-1]
	st, _, err := snap.Load(ctx, latest)
	if err != nil {
		return nil, 0, fmt.Errorf("lexgo: restore %q: %w", latest, err)
	}
	w, err := index.FromState(st, writerOpts...)
	if err != nil {
		return nil, 0, fmt.Errorf("lexgo: restore %q: %w", latest, err)
	}

	var seq uint64
	if _, err := fmt.Sscanf(latest, snapshotPrefix+"%d", &seq); err != nil {
		return nil, 0, fmt.Errorf("lexgo: bad snapshot name %q", latest)
	}
	return w, seq, nil
}

// Add indexes a new document and returns the generation stamped on the
// write. The document is not searchable until a refresh at or after
// that generation completes; see WaitSearchable.
func (lx *Lexgo) Add(ctx context.Context, doc index.Document) (uint64, error) {
	if lx.closed.Load() {
		return 0, ErrClosed
	}
	return lx.tracking.Add(ctx, doc)
}

// Update replaces the document with the same ID, or adds it when absent.
func (lx *Lexgo) Update(ctx context.Context, doc index.Document) (uint64, error) {
	if lx.closed.Load() {
		return 0, ErrClosed
	}
	return lx.tracking.Update(ctx, doc)
}

// Delete removes the document with the given ID. Deleting an unknown
// ID is an error.
func (lx *Lexgo) Delete(ctx context.Context, id string) (uint64, error) {
	if lx.closed.Load() {
		return 0, ErrClosed
	}
	return lx.tracking.Delete(ctx, id)
}

// DeleteAll removes every document.
func (lx *Lexgo) DeleteAll(ctx context.Context) (uint64, error) {
	if lx.closed.Load() {
		return 0, ErrClosed
	}
	return lx.tracking.DeleteAll(ctx)
}

// Generation returns the highest generation stamped on any write so far.
func (lx *Lexgo) Generation() uint64 {
	return lx.tracking.Generation()
}

// SearchingGeneration returns the generation the current snapshot is
// known to reflect.
func (lx *Lexgo) SearchingGeneration() uint64 {
	return lx.sched.SearchingGeneration()
}

// WaitSearchable blocks until every write stamped at or before target
// is visible to newly acquired searchers. A zero timeout means no
// timeout; cancellation and close also unblock the wait.
func (lx *Lexgo) WaitSearchable(ctx context.Context, target uint64, timeout time.Duration) error {
	return lx.sched.WaitForGeneration(ctx, target, timeout)
}

// Acquire returns the current searcher, pinned until Release.
// Every Acquire must be paired with exactly one Release.
func (lx *Lexgo) Acquire() (*searcher.Searcher, error) {
	return lx.manager.Acquire()
}

// Release returns a searcher obtained from Acquire.
func (lx *Lexgo) Release(s *searcher.Searcher) error {
	return lx.manager.Release(s)
}

// Search runs q against the current snapshot and returns matching
// documents. It acquires and releases the searcher internally; use
// Acquire for multi-query consistency.
func (lx *Lexgo) Search(q searcher.Query) ([]index.Document, error) {
	s, err := lx.manager.Acquire()
	if err != nil {
		return nil, err
	}
	defer func() { _ = lx.manager.Release(s) }()

	return s.Search(q), nil
}

// Refresh forces a blocking refresh, regardless of the background
// cadence.
func (lx *Lexgo) Refresh(ctx context.Context) error {
	return lx.manager.MaybeRefreshBlocking(ctx)
}

// AddListener registers a refresh listener; see reference.Listener.
func (lx *Lexgo) AddListener(l reference.Listener) {
	lx.manager.AddListener(l)
}

// Commit persists everything indexed so far as a new snapshot blob and
// returns the generation the snapshot reflects. Requires a blob store.
func (lx *Lexgo) Commit(ctx context.Context) (uint64, error) {
	if lx.closed.Load() {
		return 0, ErrClosed
	}
	if lx.snap == nil {
		return 0, ErrNoStore
	}

	lx.commitMu.Lock()
	defer lx.commitMu.Unlock()

	// Captured before the reader opens, so the persisted state
	// reflects every write stamped at or before gen.
	gen := lx.tracking.Generation()
	reader, err := lx.writer.Reader()
	if err != nil {
		return 0, err
	}

	name := fmt.Sprintf("%s%06d", snapshotPrefix, lx.commitSeq+1)
	if err := lx.snap.Save(ctx, name, reader.State(), gen); err != nil {
		return 0, err
	}
	lx.commitSeq++

	lx.logger.Info("commit",
		slog.String("snapshot", name),
		slog.Uint64("generation", gen),
	)
	return gen, nil
}

// Close stops the refresh loop, wakes all waiters, and releases the
// current snapshot. Acquired searchers stay valid until released.
func (lx *Lexgo) Close() error {
	if !lx.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	// The scheduler goes first so no refresh races manager shutdown.
	return errors.Join(
		lx.sched.Close(),
		lx.manager.Close(),
	)
}
