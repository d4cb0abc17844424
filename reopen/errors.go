package reopen

import "errors"

var (
	// ErrClosed is returned when the scheduler has been shut down.
	ErrClosed = errors.New("reopen scheduler closed")

	// ErrWaitTimeout is returned when a bounded wait expires before the
	// target generation became visible.
	ErrWaitTimeout = errors.New("wait for generation timed out")

	// ErrInvalidConfig is returned for bad interval bounds at construction.
	ErrInvalidConfig = errors.New("invalid reopen intervals: require 0 <= min <= max, max > 0")
)
