package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	cfg "github.com/templui/cloudbox/internal/config"
)

// ErrNotFound is returned when a key has no object behind it.
var ErrNotFound = errors.New("blob not found")

// Storage holds file contents under opaque keys. Keys are assigned once at upload
// and never change.
type Storage interface {
	// Save writes r under key and returns the number of bytes stored
	Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)

	// Open streams the object at key
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. A key that is already gone is reported as
	// ErrNotFound (or nil where the backend cannot tell), and callers treat both as deleted.
	Delete(ctx context.Context, key string) error

	Close() error
}

// New opens the storage backend selected by STORAGE_DRIVER.
func New(ctx context.Context, c *cfg.Config) (Storage, error) {
	switch c.StorageDriver {
	case "s3":
		slog.Info("initializing S3 storage",
			"bucket", c.S3Bucket,
			"region", c.S3Region,
			"endpoint", c.S3Endpoint,
		)
		return NewS3Storage(ctx, S3Config{
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Endpoint:  c.S3Endpoint,
		})
	case "blob", "":
		slog.Info("initializing blob storage", "url", c.StorageURL)
		return NewBlobStorage(ctx, c.StorageURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
}
