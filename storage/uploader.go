package storage

import (
	"context"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// ObjectStore is the minimal object storage surface the report archive needs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	GetPublicURL(key string) string
}
