package index

import "errors"

var (
	// ErrClosed is returned when an operation is attempted on a closed writer.
	ErrClosed = errors.New("index writer closed")

	// ErrInvalidArgument is returned when an argument is invalid (e.g. empty doc ID).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a requested document ID is not found.
	ErrNotFound = errors.New("not found")
)
