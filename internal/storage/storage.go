// Package storage defines the blob store boundary used for archiving raw
// HTML snapshots.
package storage

import (
	"context"
	"io"
)

// BlobStore persists a blob under a path and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
