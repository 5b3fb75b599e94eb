package fsutil

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key has no stored file.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidKey is returned for keys escaping the store root.
	ErrInvalidKey = errors.New("invalid key")
)

// FileStore stores opaque blobs under slash separated keys
type FileStore interface {
	// Put writes data under key, replacing any previous content
	Put(ctx context.Context, key string, data []byte) error

	// Get reads the content stored under key
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Stats returns the total count and size of stored files
	Stats(ctx context.Context) (Stat, error)
}

// Stat represents statistics about stored files
type Stat struct {
	Count int   // Number of files
	Size  int64 // Total size in bytes
}
