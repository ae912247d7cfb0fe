package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/repository"
	"github.com/templui/cloudbox/internal/testutil"
)

func TestUserRepositoryEnsureKeepsExisting(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	testutil.CreateUser(t, store, "u1", 0)

	require.NoError(t, store.Users.SetRole(ctx, "u1", model.RoleAdmin))
	require.NoError(t, store.Users.Ensure(ctx, &model.User{ID: "u1", Email: "new@example.com", Role: model.RoleUser, CreatedAt: t0}))

	user, err := store.Users.ByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, user.Role)
	assert.Equal(t, "u1@example.com", user.Email)

	_, err = store.Users.ByID(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestUserRepositoryStorageCounter(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	testutil.CreateUser(t, store, "limited", 100)
	testutil.CreateUser(t, store, "default", 0)

	tests := []struct {
		name    string
		user    string
		delta   int64
		wantErr error
		want    int64
	}{
		{name: "within own limit", user: "limited", delta: 60, want: 60},
		{name: "exactly at limit", user: "limited", delta: 40, want: 100},
		{name: "over own limit", user: "limited", delta: 1, wantErr: repository.ErrQuotaExceeded, want: 100},
		{name: "default limit applies", user: "default", delta: 50, want: 50},
		{name: "over default limit", user: "default", delta: 51, wantErr: repository.ErrQuotaExceeded, want: 50},
		{name: "unknown user", user: "ghost", delta: 1, wantErr: repository.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Users.AddStorageUsed(ctx, tt.user, tt.delta, 100)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.user == "ghost" {
				return
			}
			user, err := store.Users.ByID(ctx, tt.user)
			require.NoError(t, err)
			assert.Equal(t, tt.want, user.StorageUsed)
		})
	}

	// Subtraction floors at zero
	require.NoError(t, store.Users.SubtractStorageUsed(ctx, "default", 500))
	user, err := store.Users.ByID(ctx, "default")
	require.NoError(t, err)
	assert.Zero(t, user.StorageUsed)

	require.NoError(t, store.Users.SetStorageUsed(ctx, "default", 42))
	user, err = store.Users.ByID(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.StorageUsed)

	ids, err := store.Users.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "limited"}, ids)
}

func TestFavoriteRepository(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)
	testutil.CreateUser(t, store, "u1", 0)

	file := node("u1", nil, "a.txt", false, 1)
	require.NoError(t, store.Files.Create(ctx, file))

	first := &model.FavoriteFolder{ID: uuid.New().String(), OwnerID: "u1", Name: "One", CreatedAt: t0}
	second := &model.FavoriteFolder{ID: uuid.New().String(), OwnerID: "u1", Name: "Two", IsDefault: true, CreatedAt: t0.Add(time.Second)}
	require.NoError(t, store.Favorites.CreateFolder(ctx, first))
	require.NoError(t, store.Favorites.CreateFolder(ctx, second))

	def, err := store.Favorites.DefaultFolder(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, def.ID)

	// Only one default per owner
	created, err := store.Favorites.CreateDefaultFolder(ctx, &model.FavoriteFolder{ID: uuid.New().String(), OwnerID: "u1", Name: "Favorites", CreatedAt: t0})
	require.NoError(t, err)
	assert.False(t, created)
	err = store.Favorites.CreateFolder(ctx, &model.FavoriteFolder{ID: uuid.New().String(), OwnerID: "u1", Name: "Dup", IsDefault: true, CreatedAt: t0})
	assert.Error(t, err)

	testutil.CreateUser(t, store, "u2", 0)
	fresh := &model.FavoriteFolder{ID: uuid.New().String(), OwnerID: "u2", Name: "Favorites", CreatedAt: t0}
	created, err = store.Favorites.CreateDefaultFolder(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, fresh.IsDefault)

	require.NoError(t, store.Favorites.SetDefault(ctx, "u1", first.ID))
	folders, err := store.Favorites.Folders(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.True(t, folders[0].IsDefault)
	assert.False(t, folders[1].IsDefault)

	fav := &model.Favorite{ID: uuid.New().String(), OwnerID: "u1", FileID: file.ID, FolderID: first.ID, CreatedAt: t0}
	require.NoError(t, store.Favorites.Add(ctx, fav))
	err = store.Favorites.Add(ctx, &model.Favorite{ID: uuid.New().String(), OwnerID: "u1", FileID: file.ID, FolderID: first.ID, CreatedAt: t0})
	assert.ErrorIs(t, err, repository.ErrDuplicateFavorite)

	files, err := store.Favorites.Files(ctx, "u1", &first.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, file.ID, files[0].ID)

	files, err = store.Favorites.Files(ctx, "u1", &second.ID)
	require.NoError(t, err)
	assert.Empty(t, files)

	// Purging the file removes its favorites
	_, err = store.Files.SoftDelete(ctx, []string{file.ID}, t0)
	require.NoError(t, err)
	_, err = store.Files.HardDelete(ctx, []string{file.ID})
	require.NoError(t, err)

	n, err := store.Favorites.Remove(ctx, "u1", file.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMaintenanceLogRepository(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewStore(t)

	require.NoError(t, store.Logs.Create(ctx, model.MaintenanceCleanup, map[string]int{"deletedFiles": 2}, t0))
	require.NoError(t, store.Logs.Create(ctx, model.MaintenanceCleanup, map[string]int{"deletedFiles": 3}, t0.Add(time.Second)))

	logs, err := store.Logs.List(ctx, model.MaintenanceCleanup, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.JSONEq(t, `{"deletedFiles":3}`, logs[0].Details)
}
