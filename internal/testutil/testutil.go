// Package testutil sets up real stores for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/templui/cloudbox/internal/db"
	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/repository"
	"github.com/templui/cloudbox/internal/storage"
)

// NewDB opens a migrated SQLite database in a temp dir. A file is used rather than
// :memory: because every pooled connection would otherwise see its own database.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	database, err := db.Init("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.RunMigrations(database.DB, "sqlite"))
	return database
}

func NewStore(t *testing.T) *repository.Store {
	t.Helper()
	return repository.NewStore(NewDB(t))
}

// NewBlob returns an in-memory blob store.
func NewBlob(t *testing.T) *storage.BlobStorage {
	t.Helper()

	s, err := storage.NewBlobStorage(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// CreateUser inserts a user with the given limit (0 = configured default).
func CreateUser(t *testing.T, store *repository.Store, id string, limit int64) *model.User {
	t.Helper()

	user := &model.User{
		ID:           id,
		Email:        id + "@example.com",
		Role:         model.RoleUser,
		StorageLimit: limit,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Users.Ensure(context.Background(), user))
	return user
}
