package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/cloudbox/internal/config"
	"github.com/templui/cloudbox/internal/ctxkeys"
	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/repository"
	"github.com/templui/cloudbox/internal/service"
	"github.com/templui/cloudbox/internal/testutil"
)

type testServer struct {
	store   *repository.Store
	files   *FileHandler
	folders *FolderHandler
	storage *StorageHandler
	favs    *FavoriteHandler
	admin   *AdminHandler
	cron    *CronHandler
}

func newServer(t *testing.T) *testServer {
	t.Helper()

	store := testutil.NewStore(t)
	blob := testutil.NewBlob(t)
	testutil.CreateUser(t, store, "alice", 0)
	testutil.CreateUser(t, store, "bob", 0)

	fileService := service.NewFileService(store, blob, 1000, 100, 7*24*time.Hour)
	storageService := service.NewStorageService(store, 1000)
	favoriteService := service.NewFavoriteService(store)
	cleanupService := service.NewCleanupService(store, blob, service.CleanupOptions{
		Retention:        7 * 24 * time.Hour,
		MaxFilesPerRun:   10,
		MaxFoldersPerRun: 10,
		MaxPurgeAttempts: 5,
	})

	return &testServer{
		store:   store,
		files:   NewFileHandler(fileService, 100),
		folders: NewFolderHandler(fileService),
		storage: NewStorageHandler(storageService),
		favs:    NewFavoriteHandler(favoriteService),
		admin:   NewAdminHandler(storageService, favoriteService),
		cron:    NewCronHandler(cleanupService, "cron-secret"),
	}
}

// do runs h as user with an optional JSON body and decodes the response.
func do(t *testing.T, h http.HandlerFunc, user, method, target string, body any, pathValues ...string) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	return serve(t, h, user, req)
}

func serve(t *testing.T, h http.HandlerFunc, user string, req *http.Request) (int, map[string]any) {
	t.Helper()

	ctx := ctxkeys.WithConfig(req.Context(), &config.Config{AppEnv: "test"})
	if user != "" {
		ctx = ctxkeys.WithUser(ctx, &model.User{ID: user, Role: model.RoleUser})
	}
	rec := httptest.NewRecorder()
	h(rec, req.WithContext(ctx))

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func uploadRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrUnauthorized, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrValidation, http.StatusBadRequest},
		{service.ErrConflict, http.StatusConflict},
		{service.ErrQuotaExceeded, http.StatusRequestEntityTooLarge},
		{service.ErrTooManyRequests, http.StatusTooManyRequests},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestWriteErrorHidesInternalsInProduction(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req = req.WithContext(ctxkeys.WithConfig(req.Context(), &config.Config{AppEnv: "production"}))
	rec := httptest.NewRecorder()

	writeError(rec, req, assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"internal server error"}`, rec.Body.String())
}

func TestFolderEndpoints(t *testing.T) {
	s := newServer(t)

	code, body := do(t, s.folders.Create, "alice", http.MethodPost, "/folders", map[string]any{"name": "Docs"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, body["success"])
	docsID := body["folder"].(map[string]any)["id"].(string)

	code, body = do(t, s.folders.Create, "alice", http.MethodPost, "/folders", map[string]any{"name": "2024", "parentId": docsID})
	require.Equal(t, http.StatusCreated, code)
	yearID := body["folder"].(map[string]any)["id"].(string)
	assert.Equal(t, "/Docs/2024", body["folder"].(map[string]any)["path"])

	code, body = do(t, s.folders.Create, "alice", http.MethodPost, "/folders", map[string]any{"name": "Docs", "parentId": "root"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, body["success"])

	code, body = do(t, s.folders.Create, "alice", http.MethodPost, "/folders", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "name is required")

	code, body = do(t, s.folders.Path, "alice", http.MethodGet, "/", nil, "id", yearID)
	require.Equal(t, http.StatusOK, code)
	path := body["path"].([]any)
	require.Len(t, path, 2)
	assert.Equal(t, "Docs", path[0].(map[string]any)["name"])

	code, _ = do(t, s.folders.Path, "bob", http.MethodGet, "/", nil, "id", yearID)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = do(t, s.folders.Contents, "alice", http.MethodGet, "/", nil, "id", "root")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)
}

func TestUploadAndDownload(t *testing.T) {
	s := newServer(t)

	code, body := serve(t, s.files.Upload, "alice", uploadRequest(t, map[string]string{"tags": "a, b"}, "notes.txt", "hello"))
	require.Equal(t, http.StatusCreated, code, body)
	file := body["file"].(map[string]any)
	assert.Equal(t, "notes.txt", file["name"])
	assert.EqualValues(t, 5, file["size"])
	assert.ElementsMatch(t, []any{"a", "b"}, file["tags"])
	assert.NotContains(t, file, "storageKey")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("id", file["id"].(string))
	req = req.WithContext(ctxkeys.WithUser(req.Context(), &model.User{ID: "alice"}))
	rec := httptest.NewRecorder()
	s.files.Content(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=notes.txt`)

	// Same name again
	code, _ = serve(t, s.files.Upload, "alice", uploadRequest(t, nil, "notes.txt", "x"))
	assert.Equal(t, http.StatusConflict, code)

	// Missing file part
	code, body = serve(t, s.files.Upload, "alice", uploadRequest(t, map[string]string{"folderId": "root"}, "", ""))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "file is required")

	// Over the per-upload limit
	code, _ = serve(t, s.files.Upload, "alice", uploadRequest(t, nil, "big.bin", strings.Repeat("x", 200)))
	assert.Equal(t, http.StatusBadRequest, code)

	// Not multipart
	code, _ = do(t, s.files.Upload, "alice", http.MethodPost, "/files", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFileLifecycleEndpoints(t *testing.T) {
	s := newServer(t)

	_, body := serve(t, s.files.Upload, "alice", uploadRequest(t, nil, "a.txt", "abc"))
	fileID := body["file"].(map[string]any)["id"].(string)
	_, body = do(t, s.folders.Create, "alice", http.MethodPost, "/folders", map[string]any{"name": "dir"})
	dirID := body["folder"].(map[string]any)["id"].(string)

	code, body := do(t, s.files.List, "alice", http.MethodGet, "/files?sortBy=name&page=1&pageSize=10", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 10, body["pageSize"])

	code, _ = do(t, s.files.List, "alice", http.MethodGet, "/files?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, s.files.List, "alice", http.MethodGet, "/files?sortBy=owner", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, s.files.Move, "alice", http.MethodPost, "/files/move", map[string]any{"fileIds": []string{fileID}, "targetFolderId": dirID})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["movedCount"])

	code, body = do(t, s.files.Rename, "alice", http.MethodPost, "/", map[string]any{"newName": "b.txt"}, "id", fileID)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "/dir/b.txt", body["file"].(map[string]any)["path"])

	code, _ = do(t, s.files.Rename, "bob", http.MethodPost, "/", map[string]any{"newName": "c.txt"}, "id", fileID)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = do(t, s.files.Delete, "alice", http.MethodPost, "/files/delete", map[string]any{"fileIds": []string{dirID}})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["deletedCount"], "folder and its file")

	code, body = do(t, s.files.Delete, "alice", http.MethodPost, "/files/delete", map[string]any{"fileIds": []string{}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "fileIds")

	code, body = do(t, s.files.Trash, "alice", http.MethodGet, "/files/trash", nil)
	require.Equal(t, http.StatusOK, code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, dirID, items[0].(map[string]any)["id"])
	assert.NotEmpty(t, items[0].(map[string]any)["expiresAt"])

	code, body = do(t, s.files.Restore, "alice", http.MethodPost, "/files/restore", map[string]any{"fileIds": []string{dirID}})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["restoredCount"])

	code, body = do(t, s.files.CheckConflicts, "alice", http.MethodPost, "/", map[string]any{"folderId": dirID, "fileNames": []string{"b.txt", "new.txt"}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"b.txt"}, body["conflicts"])
}

func TestStorageEndpoints(t *testing.T) {
	s := newServer(t)
	serve(t, s.files.Upload, "alice", uploadRequest(t, nil, "a.txt", "0123456789"))

	code, body := do(t, s.storage.Quota, "alice", http.MethodGet, "/storage/quota", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1000, body["total"])
	assert.EqualValues(t, 10, body["used"])
	assert.EqualValues(t, 990, body["available"])
	assert.EqualValues(t, 1, body["percentage"])

	code, body = do(t, s.storage.Stats, "alice", http.MethodGet, "/storage/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["totalFiles"])
	assert.EqualValues(t, 0, body["totalFolders"])
	assert.EqualValues(t, 10, body["totalSize"])
}

func TestFavoriteEndpoints(t *testing.T) {
	s := newServer(t)
	_, body := serve(t, s.files.Upload, "alice", uploadRequest(t, nil, "a.txt", "a"))
	fileID := body["file"].(map[string]any)["id"].(string)

	code, body := do(t, s.favs.Folders, "alice", http.MethodGet, "/favorites/folders", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["folders"], 1)

	code, _ = do(t, s.favs.CreateFolder, "alice", http.MethodPost, "/favorites/folders", map[string]any{"name": "Work"})
	assert.Equal(t, http.StatusCreated, code)

	code, _ = do(t, s.favs.Add, "alice", http.MethodPost, "/favorites", map[string]any{"fileId": fileID})
	assert.Equal(t, http.StatusCreated, code)

	code, _ = do(t, s.favs.Add, "alice", http.MethodPost, "/favorites", map[string]any{"fileId": fileID})
	assert.Equal(t, http.StatusConflict, code)

	code, body = do(t, s.favs.List, "alice", http.MethodGet, "/favorites", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)

	code, _ = do(t, s.favs.Remove, "alice", http.MethodDelete, "/", nil, "fileId", fileID)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, s.favs.Remove, "alice", http.MethodDelete, "/", nil, "fileId", fileID)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newServer(t)
	serve(t, s.files.Upload, "alice", uploadRequest(t, nil, "a.txt", "abc"))
	require.NoError(t, s.store.Users.SetStorageUsed(context.Background(), "alice", 50))

	code, body := do(t, s.admin.Reconcile, "admin", http.MethodPost, "/admin/storage/reconcile?userId=alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["usersFixed"])

	code, body = do(t, s.admin.Reconcile, "admin", http.MethodPost, "/admin/storage/reconcile", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["usersScanned"])
	assert.EqualValues(t, 0, body["usersFixed"])

	code, _ = do(t, s.admin.Reconcile, "admin", http.MethodPost, "/admin/storage/reconcile?userId=ghost", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = do(t, s.admin.FixFavoriteDefaults, "admin", http.MethodPost, "/admin/favorites/fix-defaults", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["usersScanned"])
}

func TestCronCleanup(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid secret", header: "Bearer cron-secret", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/cron/cleanup", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			code, body := serve(t, s.cron.Cleanup, "", req)
			assert.Equal(t, tt.want, code)
			if tt.want == http.StatusOK {
				assert.EqualValues(t, 0, body["deletedFiles"])
				assert.Contains(t, body, "duration")
			}
		})
	}

	// Without a configured secret nothing gets in
	open := NewCronHandler(nil, "")
	req := httptest.NewRequest(http.MethodGet, "/cron/cleanup", nil)
	req.Header.Set("Authorization", "Bearer ")
	code, _ := serve(t, open.Cleanup, "", req)
	assert.Equal(t, http.StatusUnauthorized, code)
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	code, body := do(t, NewHealthHandler(pinger{}).Healthz, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = do(t, NewHealthHandler(pinger{err: assert.AnError}).Healthz, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
