// Package resource bounds the background work a lexgo instance may do:
// concurrent warm/persist jobs and persistence IO throughput.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxBackgroundWorkers is the maximum number of concurrent
	// background jobs (snapshot warming, commit persistence).
	// If 0, defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec is the maximum IO throughput for snapshot
	// persistence. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller enforces the configured limits. A nil *Controller is
// valid and enforces nothing.
type Controller struct {
	cfg Config

	bgSem    *semaphore.Weighted
	bgActive atomic.Int64

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireBackground reserves a background worker slot, blocking until
// one is free or ctx is canceled.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.bgSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.bgActive.Add(1)
	return nil
}

// TryAcquireBackground reserves a slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	if !c.bgSem.TryAcquire(1) {
		return false
	}
	c.bgActive.Add(1)
	return true
}

// ReleaseBackground releases a background worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgActive.Add(-1)
	c.bgSem.Release(1)
}

// BackgroundActive returns the number of in-flight background jobs.
func (c *Controller) BackgroundActive() int64 {
	if c == nil {
		return 0
	}
	return c.bgActive.Load()
}

// AcquireIO waits until the IO limit allows the given number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}
	// WaitN caps n at the limiter burst; split large requests.
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
