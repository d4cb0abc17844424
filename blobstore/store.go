// Package blobstore abstracts where committed index snapshots live:
// local disk, memory, or an object store (see the s3 and minio
// subpackages). Blobs are immutable once written.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations must return an error satisfying
// errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("blob not found")

// Store reads and writes whole immutable blobs.
type Store interface {
	// Put writes a blob atomically: a concurrent Get sees either the
	// previous content or the new one, never a partial write.
	Put(ctx context.Context, name string, data []byte) error

	// Get returns the blob's content.
	Get(ctx context.Context, name string) ([]byte, error)

	// List returns the names of blobs with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}
