package reopen

import "time"

// MetricsObserver receives scheduler events.
type MetricsObserver interface {
	// OnRefresh is called after each refresh attempt, successful or not.
	OnRefresh(duration time.Duration, err error)

	// OnWait is called when a WaitForGeneration call returns.
	OnWait(duration time.Duration, targetGen uint64, err error)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnRefresh(duration time.Duration, err error)            {}
func (NoopMetricsObserver) OnWait(duration time.Duration, targetGen uint64, err error) {}
