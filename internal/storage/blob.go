// Package storage holds the blob store and status store collaborators the
// pipeline persists through: artifact bytes on one side, batch status,
// metrics, stage rows, and completion events on the other.
package storage

import "context"

// BlobStore reads and writes artifact objects by key.
type BlobStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
