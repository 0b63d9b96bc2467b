package storage

import (
	"context"
	"io"
)

// BlobStore holds uploaded question attachments.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error) // returns canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	URL(key string) string // path the API serves the blob from
}
