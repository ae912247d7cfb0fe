package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// Drivers
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/memblob"  // mem:// URLs
	_ "gocloud.dev/blob/s3blob"   // s3:// URLs
)

// BlobStorage stores objects in any Go CDK bucket.
// Supported URL schemes: file://, mem://, s3://
type BlobStorage struct {
	bucket *blob.Bucket
}

func NewBlobStorage(ctx context.Context, bucketURL string) (*BlobStorage, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("invalid storage url: %w", err)
	}

	// fileblob refuses to open a directory that does not exist yet
	if u.Scheme == "file" {
		err = os.MkdirAll(u.Path, 0755)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}

	return &BlobStorage{bucket: bucket}, nil
}

func (s *BlobStorage) Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	// Cancelling the writer's context before Close discards a partial object
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open writer: %w", err)
	}

	n, err := io.Copy(w, r)
	if err != nil {
		cancel()
		_ = w.Close()
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}

	err = w.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}

	return n, nil
}

func (s *BlobStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, blobErr(err)
	}
	return r, nil
}

func (s *BlobStorage) Delete(ctx context.Context, key string) error {
	return blobErr(s.bucket.Delete(ctx, key))
}

func (s *BlobStorage) Close() error {
	return s.bucket.Close()
}

func blobErr(err error) error {
	if err == nil {
		return nil
	}
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
