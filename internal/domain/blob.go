package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads cold-storage archive objects to an S3-compatible
// backend.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobInfo describes one archived object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader retrieves and enumerates previously archived objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes an archived object, used only after the archive has
// been verified and the corresponding primary-store rows are safe to prune.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}
