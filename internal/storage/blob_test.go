package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfg "github.com/templui/cloudbox/internal/config"
)

func TestBlobStorage(t *testing.T) {
	ctx := context.Background()
	s, err := NewBlobStorage(ctx, "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	t.Run("save and open", func(t *testing.T) {
		n, err := s.Save(ctx, "u1/a", strings.NewReader("hello"), "text/plain")
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		r, err := s.Open(ctx, "u1/a")
		require.NoError(t, err)
		defer r.Close()
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("delete then missing", func(t *testing.T) {
		_, err := s.Save(ctx, "u1/b", strings.NewReader("x"), "")
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "u1/b"))

		err = s.Delete(ctx, "u1/b")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.Open(ctx, "u1/b")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBlobStorageFileDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir() + "/nested/blobs"

	s, err := NewBlobStorage(ctx, "file://"+dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Save(ctx, "owner/key", strings.NewReader("data"), "application/octet-stream")
	require.NoError(t, err)

	r, err := s.Open(ctx, "owner/key")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "data", string(data))

	require.NoError(t, s.Delete(ctx, "owner/key"))
	assert.ErrorIs(t, s.Delete(ctx, "owner/key"), ErrNotFound)
}

func TestNewSelectsDriver(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, &cfg.Config{StorageDriver: "blob", StorageURL: "mem://"})
	require.NoError(t, err)
	assert.IsType(t, &BlobStorage{}, s)
	s.Close()

	_, err = New(ctx, &cfg.Config{StorageDriver: "ftp"})
	assert.Error(t, err)
}
