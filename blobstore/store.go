package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an object does not exist.
//
// Implementations must return an error that satisfies
// `errors.Is(err, ErrNotFound)` for missing keys so callers can distinguish
// "not yet written" from transport failures.
var ErrNotFound = errors.New("blobstore: object not found")

// ObjectInfo describes a stored object as returned by List.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// Store is an abstraction for accessing the durable objects of the index
// lifecycle: index blobs, metadata sidecars and source page images.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get reads the full content of an object.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes an object atomically.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all objects whose key starts with prefix, in ascending
	// key order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
