package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Stat and Get for a missing object.
var ErrNotFound = errors.New("object not found")

// Store abstracts the S3-compatible archive.
type Store interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
}

type PutOptions struct {
	ContentType string
	// MD5 is the hex checksum of the body, kept with the object so later
	// uploads of identical content can be skipped.
	MD5 string
}

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	MD5          string
	ContentType  string
	LastModified time.Time
}
