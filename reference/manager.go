// Package reference provides a reference-counted manager for a single
// "current" snapshot resource that is periodically replaced.
//
// Any number of goroutines acquire and release the current snapshot;
// refresh opens a fresh snapshot through a pluggable Source and swaps
// it in. A superseded snapshot is disposed as soon as its reference
// count reaches zero, not via finalizers.
package reference

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Source supplies snapshot resources to a Manager. Implementations
// decide what "changed" means and how resources are released.
type Source[R comparable] interface {
	// Open returns a fresh resource derived from previous, or
	// changed=false if nothing has changed since previous was opened.
	// Any validation or warming must happen before Open returns.
	Open(ctx context.Context, previous R) (next R, changed bool, err error)

	// Dispose releases a resource that is no longer current and no
	// longer referenced by any acquirer.
	Dispose(r R) error
}

// entry tracks one snapshot resource in the manager's arena.
// The manager itself holds one reference while the entry is current.
type entry[R comparable] struct {
	id   uint64
	res  R
	refs atomic.Int64
}

// tryIncRef increments the reference count unless it already hit zero.
func (e *entry[R]) tryIncRef() bool {
	for {
		refs := e.refs.Load()
		if refs <= 0 {
			return false
		}
		if e.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

// Manager owns exactly one current snapshot at a time.
type Manager[R comparable] struct {
	source Source[R]

	mu      sync.Mutex // guards entries, listeners, close/swap
	entries map[R]*entry[R]
	current atomic.Pointer[entry[R]]
	nextID  atomic.Uint64
	closed  atomic.Bool

	// refreshCh is a capacity-1 try-lock: at most one refresh
	// (open/warm/swap) runs at a time.
	refreshCh chan struct{}

	listeners []Listener
}

// NewManager creates a Manager owning initial as the current snapshot.
// The initial resource is typically opened by the concrete layer
// (e.g. searcher.Manager) before it constructs the generic manager.
func NewManager[R comparable](source Source[R], initial R) *Manager[R] {
	m := &Manager[R]{
		source:    source,
		entries:   make(map[R]*entry[R]),
		refreshCh: make(chan struct{}, 1),
	}
	e := &entry[R]{id: m.nextID.Add(1), res: initial}
	e.refs.Store(1) // manager's hold
	m.entries[initial] = e
	m.current.Store(e)
	return m
}

// Acquire returns the current snapshot with its reference count
// incremented. Callers must pair every Acquire with exactly one
// Release. Acquire never blocks.
func (m *Manager[R]) Acquire() (R, error) {
	var zero R
	for {
		if m.closed.Load() {
			return zero, ErrClosed
		}
		e := m.current.Load()
		if e == nil {
			return zero, ErrClosed
		}
		if e.tryIncRef() {
			return e.res, nil
		}
		// The entry was swapped out and disposed between the load and
		// the increment. The new current is installed before the old
		// hold is dropped, so retrying must observe it.
		runtime.Gosched()
	}
}

// Release returns a snapshot obtained from Acquire. When the count of
// a superseded snapshot reaches zero it is closed through the Source.
// Releasing a resource that was not acquired from this manager, or
// releasing it twice, fails with ErrInvalidRelease.
func (m *Manager[R]) Release(r R) error {
	m.mu.Lock()
	e, ok := m.entries[r]
	m.mu.Unlock()
	if !ok {
		return ErrInvalidRelease
	}
	return m.decRef(e)
}

// decRef drops one reference and disposes the entry when it hits zero.
// Disposal happens exactly once: only the caller that observes zero
// removes the entry and closes the resource.
func (m *Manager[R]) decRef(e *entry[R]) error {
	n := e.refs.Add(-1)
	switch {
	case n < 0:
		e.refs.Add(1)
		return ErrInvalidRelease
	case n == 0:
		// The manager's own hold keeps the current entry above zero, so
		// hitting zero while still current means a caller over-released.
		if m.current.Load() == e {
			e.refs.Add(1)
			return ErrInvalidRelease
		}
		m.mu.Lock()
		delete(m.entries, e.res)
		m.mu.Unlock()
		return m.source.Dispose(e.res)
	}
	return nil
}

// MaybeRefresh attempts to open and publish a fresh snapshot. It is
// non-blocking with respect to other refreshes: if one is already in
// progress it returns (false, nil) immediately. It returns (true, nil)
// only if a new snapshot was swapped in.
func (m *Manager[R]) MaybeRefresh(ctx context.Context) (bool, error) {
	select {
	case m.refreshCh <- struct{}{}:
	default:
		return false, nil
	}
	defer func() { <-m.refreshCh }()

	return m.doRefresh(ctx)
}

// MaybeRefreshBlocking performs a refresh, waiting for any concurrently
// running refresh to finish first instead of returning immediately.
func (m *Manager[R]) MaybeRefreshBlocking(ctx context.Context) error {
	select {
	case m.refreshCh <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.refreshCh }()

	_, err := m.doRefresh(ctx)
	return err
}

// doRefresh runs with the refresh lock held. An error from the Source
// aborts the attempt and leaves the current snapshot untouched.
func (m *Manager[R]) doRefresh(ctx context.Context) (refreshed bool, err error) {
	if m.closed.Load() {
		return false, ErrClosed
	}

	// Stable while we hold the refresh lock: only refreshes swap it.
	cur := m.current.Load()
	if cur == nil {
		return false, ErrClosed
	}

	m.notifyBefore()
	defer func() { m.notifyAfter(refreshed) }()

	next, changed, err := m.source.Open(ctx, cur.res)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	e := &entry[R]{id: m.nextID.Add(1), res: next}
	e.refs.Store(1) // manager's hold

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		_ = m.source.Dispose(next)
		return false, ErrClosed
	}
	m.entries[next] = e
	old := m.current.Swap(e)
	m.mu.Unlock()

	if old != nil {
		// Drop the manager's hold; acquirers still holding old keep it
		// alive until their Release.
		if derr := m.decRef(old); derr != nil {
			return true, derr
		}
	}
	return true, nil
}

// Current reports whether r is the manager's current snapshot.
func (m *Manager[R]) Current(r R) bool {
	e := m.current.Load()
	return e != nil && e.res == r
}

// Close marks the manager closed and drops its hold on the current
// snapshot. Subsequent Acquire and refresh calls fail with ErrClosed;
// snapshots still held by acquirers stay valid until released.
func (m *Manager[R]) Close() error {
	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed.Store(true)
	old := m.current.Swap(nil)
	m.mu.Unlock()

	if old != nil {
		return m.decRef(old)
	}
	return nil
}
