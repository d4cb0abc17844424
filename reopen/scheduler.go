// Package reopen runs the background refresh loop that keeps a
// snapshot manager near-real-time.
//
// The loop refreshes on a cadence bounded by [MinInterval, MaxInterval]:
// it never lets the current snapshot grow staler than MaxInterval, and
// never refreshes closer together than MinInterval, even under a storm
// of WaitForGeneration calls. Both intervals are measured from the last
// refresh attempt that ran to completion, successful or not.
package reopen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Refresher is the snapshot manager side of the loop, satisfied by
// searcher.Manager (via the embedded reference manager).
type Refresher interface {
	MaybeRefreshBlocking(ctx context.Context) error
}

// GenerationSource reports the highest mutation generation assigned so
// far, satisfied by index.TrackingWriter.
type GenerationSource interface {
	Generation() uint64
}

// Scheduler owns one background goroutine that refreshes a Refresher
// and serves generation-based visibility waits.
type Scheduler struct {
	refresher Refresher
	writer    GenerationSource

	minInterval time.Duration
	maxInterval time.Duration

	mu           sync.Mutex
	searchingGen uint64        // generation reflected by the current snapshot
	waitingGen   uint64        // highest generation any waiter has asked for
	notify       chan struct{} // closed and replaced when searchingGen advances
	lastRefresh  time.Time
	closed       bool

	wakeCh  chan struct{}
	closeCh chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger  *slog.Logger
	metrics MetricsObserver
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for background refresh failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithMetrics sets the metrics observer.
func WithMetrics(m MetricsObserver) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithInitialGeneration seeds searchingGen with the generation already
// reflected by the manager's initial snapshot, so waiters for
// already-visible generations return immediately.
func WithInitialGeneration(gen uint64) Option {
	return func(s *Scheduler) {
		s.searchingGen = gen
	}
}

// New creates a Scheduler and starts its background loop.
// minInterval must be >= 0 and <= maxInterval, and maxInterval must be
// positive; otherwise ErrInvalidConfig is returned.
func New(r Refresher, g GenerationSource, minInterval, maxInterval time.Duration, opts ...Option) (*Scheduler, error) {
	if r == nil || g == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("nil refresher or generation source"))
	}
	if minInterval < 0 || maxInterval <= 0 || minInterval > maxInterval {
		return nil, ErrInvalidConfig
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		refresher:   r,
		writer:      g,
		minInterval: minInterval,
		maxInterval: maxInterval,
		notify:      make(chan struct{}),
		lastRefresh: time.Now(),
		wakeCh:      make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
		cancel:      cancel,
		metrics:     NoopMetricsObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

// SearchingGeneration returns the generation the current snapshot is
// known to reflect.
func (s *Scheduler) SearchingGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchingGen
}

// WaitForGeneration blocks until the current snapshot reflects at least
// target. It returns nil on success, ErrWaitTimeout when timeout (> 0)
// elapses first, ErrClosed if the scheduler shuts down, or ctx's error
// if the caller cancels. A wait wakes the loop early, but reopens stay
// throttled to MinInterval.
func (s *Scheduler) WaitForGeneration(ctx context.Context, target uint64, timeout time.Duration) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.OnWait(time.Since(start), target, err)
	}()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.searchingGen >= target {
		s.mu.Unlock()
		return nil
	}
	if target > s.waitingGen {
		s.waitingGen = target
	}
	notify := s.notify
	s.mu.Unlock()

	// Nudge the loop; a full buffer means a wakeup is already pending.
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case <-notify:
			s.mu.Lock()
			if s.searchingGen >= target {
				s.mu.Unlock()
				return nil
			}
			notify = s.notify
			s.mu.Unlock()
		case <-s.closeCh:
			return ErrClosed
		case <-timeoutCh:
			return ErrWaitTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// run is the scheduler's background loop. A failed refresh is reported
// and retried on the next cadence tick; it never terminates the loop.
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		pending := s.waitingGen > s.searchingGen
		last := s.lastRefresh
		searching := s.searchingGen
		s.mu.Unlock()

		// The fast cadence applies only while a refresh can actually
		// help: a waiter is behind AND the writer is ahead of the
		// published generation. A waiter for a not-yet-performed write
		// must not spin the loop.
		interval := s.maxInterval
		if pending && s.writer.Generation() > searching {
			interval = s.minInterval
		}

		if wait := interval - time.Since(last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-s.closeCh:
				timer.Stop()
				return
			case <-s.wakeCh:
				// A waiter arrived; recompute against minInterval.
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		// Throttle floor: even a wakeup storm cannot force refreshes
		// closer together than minInterval.
		if rem := s.minInterval - time.Since(last); rem > 0 {
			timer := time.NewTimer(rem)
			select {
			case <-s.closeCh:
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		select {
		case <-s.closeCh:
			return
		default:
		}

		s.refreshNow(ctx)
	}
}

func (s *Scheduler) refreshNow(ctx context.Context) {
	start := time.Now()

	// Captured before the refresh opens a snapshot: the new view is
	// guaranteed to reflect every mutation stamped <= gen, and may
	// exceed the generation any waiter asked for.
	gen := s.writer.Generation()

	err := s.refresher.MaybeRefreshBlocking(ctx)

	s.mu.Lock()
	s.lastRefresh = time.Now()
	if err == nil && gen > s.searchingGen {
		s.searchingGen = gen
		// Broadcast: every satisfied waiter must unblock, so the
		// channel is closed, never signaled.
		close(s.notify)
		s.notify = make(chan struct{})
	}
	s.mu.Unlock()

	s.metrics.OnRefresh(time.Since(start), err)
	if err != nil && !errors.Is(err, context.Canceled) && s.logger != nil {
		s.logger.Error("background refresh failed", "error", err)
	}
}

// Close stops the background loop, waits for it to exit, and wakes
// every blocked waiter with ErrClosed. Closing never deadlocks a
// WaitForGeneration caller.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()       // aborts an in-flight refresh
	close(s.closeCh) // wakes the loop and all waiters
	s.wg.Wait()
	return nil
}
