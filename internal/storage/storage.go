package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ContentTypeParquet is the media type every exported result snapshot is
// stored under.
const ContentTypeParquet = "application/vnd.apache.parquet"

var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes one stored snapshot object. Size is what retention
// integrity checks compare against the registry's recorded byte count.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ObjectStore is where exported result snapshots live. Keys are relative to
// the store's configured prefix and follow the layout produced by
// BuildExportPath. The four operations are exactly what the exporter (Put),
// replay engine (Get), and janitor (Stat, Delete) need; an empty contentType
// on Put defaults to ContentTypeParquet.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
