package reference

import "errors"

var (
	// ErrClosed is returned when an operation is attempted on a closed manager.
	ErrClosed = errors.New("reference manager closed")

	// ErrInvalidRelease is returned when a snapshot is released twice or
	// was not acquired from this manager.
	ErrInvalidRelease = errors.New("invalid snapshot release")
)
