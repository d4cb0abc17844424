package lexgo

import "errors"

var (
	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("lexgo: closed")

	// ErrNoStore is returned by Commit when no blob store is configured.
	ErrNoStore = errors.New("lexgo: no blob store configured")
)
