// Package objstore abstracts the remote object-storage bucket the engine syncs against.
package objstore

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one object returned by a listing.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"lastModified"`
}

// PutObjectParams describes a whole-object upload.
type PutObjectParams struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
}

// Store is the object-storage surface the engine depends on.
// Implementations must hide pagination from ListAllObjects.
type Store interface {
	ListAllObjects(ctx context.Context, bucket string) ([]*ObjectInfo, error)
	// GetObject returns the object body. Callers must close it.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	PutObject(ctx context.Context, params *PutObjectParams) error
	DeleteObject(ctx context.Context, bucket, key string) error
	CreateContainer(ctx context.Context, bucket string) error
	DeleteContainer(ctx context.Context, bucket string) error
}
