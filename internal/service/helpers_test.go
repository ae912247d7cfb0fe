package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/repository"
	"github.com/templui/cloudbox/internal/storage"
	"github.com/templui/cloudbox/internal/testutil"
)

const retention = 7 * 24 * time.Hour

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// spyStorage records saved keys and can fail deletes for chosen keys.
type spyStorage struct {
	storage.Storage
	mu         sync.Mutex
	saved      []string
	failDelete map[string]bool
}

func (s *spyStorage) Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	s.mu.Lock()
	s.saved = append(s.saved, key)
	s.mu.Unlock()
	return s.Storage.Save(ctx, key, r, contentType)
}

func (s *spyStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	fail := s.failDelete[key]
	s.mu.Unlock()
	if fail {
		return errors.New("storage unavailable")
	}
	return s.Storage.Delete(ctx, key)
}

// has reports whether an object is stored under key.
func (s *spyStorage) has(t *testing.T, key string) bool {
	t.Helper()
	r, err := s.Storage.Open(context.Background(), key)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	r.Close()
	return true
}

func (s *spyStorage) lastKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[len(s.saved)-1]
}

type testEnv struct {
	store     *repository.Store
	blob      *spyStorage
	clock     *fakeClock
	files     *FileService
	storage   *StorageService
	cleanup   *CleanupService
	favorites *FavoriteService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	store := testutil.NewStore(t)
	blob := &spyStorage{Storage: testutil.NewBlob(t), failDelete: map[string]bool{}}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	env := &testEnv{
		store:     store,
		blob:      blob,
		clock:     clock,
		files:     NewFileService(store, blob, 1000, 1<<20, retention),
		storage:   NewStorageService(store, 1000),
		favorites: NewFavoriteService(store),
		cleanup: NewCleanupService(store, blob, CleanupOptions{
			Retention:        retention,
			MaxFilesPerRun:   1000,
			MaxFoldersPerRun: 100,
			MaxPurgeAttempts: 5,
			LogEnabled:       true,
		}),
	}
	env.files.now = clock.Now
	env.storage.now = clock.Now
	env.cleanup.now = clock.Now
	env.favorites.now = clock.Now

	testutil.CreateUser(t, store, "alice", 0)
	testutil.CreateUser(t, store, "bob", 0)
	return env
}

func (e *testEnv) folder(t *testing.T, owner, name string, parent *model.FileNode) *model.FileNode {
	t.Helper()
	var parentID *string
	if parent != nil {
		parentID = &parent.ID
	}
	f, err := e.files.CreateFolder(context.Background(), owner, name, parentID, nil)
	require.NoError(t, err)
	return f
}

func (e *testEnv) upload(t *testing.T, owner, name, content string, parent *model.FileNode) *model.FileNode {
	t.Helper()
	var parentID *string
	if parent != nil {
		parentID = &parent.ID
	}
	f, err := e.files.Upload(context.Background(), owner, UploadInput{
		ParentID:    parentID,
		Filename:    name,
		ContentType: "text/plain",
		Size:        -1,
		Body:        strings.NewReader(content),
	})
	require.NoError(t, err)
	return f
}

func (e *testEnv) reload(t *testing.T, id string) *model.FileNode {
	t.Helper()
	f, err := e.store.Files.ByID(context.Background(), id)
	require.NoError(t, err)
	return f
}

func (e *testEnv) used(t *testing.T, owner string) int64 {
	t.Helper()
	u, err := e.store.Users.ByID(context.Background(), owner)
	require.NoError(t, err)
	return u.StorageUsed
}
