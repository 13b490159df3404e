package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is the listing entry of one exported object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Exporter writes point-in-time snapshots of the entity store to cold
// storage and returns the object path plus record count.
type Exporter interface {
	ExportPredictions(ctx context.Context, at time.Time) (string, int64, error)
	ExportIndustries(ctx context.Context, at time.Time) (string, int64, error)
}
