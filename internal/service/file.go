package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/repository"
	"github.com/templui/cloudbox/internal/storage"
	"github.com/templui/cloudbox/internal/validation"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// FileService owns the tree: every mutation keeps paths, sibling names and the
// owner's storage counter consistent inside one transaction.
type FileService struct {
	store         *repository.Store
	storage       storage.Storage
	defaultLimit  int64
	maxUploadSize int64
	retention     time.Duration
	now           func() time.Time
}

func NewFileService(store *repository.Store, storage storage.Storage, defaultLimit, maxUploadSize int64, retention time.Duration) *FileService {
	return &FileService{
		store:         store,
		storage:       storage,
		defaultLimit:  defaultLimit,
		maxUploadSize: maxUploadSize,
		retention:     retention,
		now:           now,
	}
}

// UploadInput describes a file stream to store. Size is the client's hint, -1 if unknown.
type UploadInput struct {
	ParentID    *string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	Tags        []string
}

type ListQuery struct {
	FolderID  *string
	Type      string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

type FileList struct {
	Items    []*model.FileNode `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
}

// loadActive returns an active node of the owner. Foreign nodes are Forbidden.
func loadActive(ctx context.Context, files repository.FileRepository, ownerID, id string) (*model.FileNode, error) {
	node, err := files.ByID(ctx, id)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, newError(ErrNotFound, "file not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	if node.IsDeleted {
		return nil, newError(ErrNotFound, "file not found: %s", id)
	}
	if node.OwnerID != ownerID {
		return nil, newError(ErrForbidden, "you do not have access to %s", id)
	}
	return node, nil
}

// loadFolder returns the active folder of the owner, or nil for the root.
// Anything else, including a foreign folder, reads as NotFound.
func loadFolder(ctx context.Context, files repository.FileRepository, ownerID string, id *string) (*model.FileNode, error) {
	if id == nil {
		return nil, nil
	}
	folder, err := files.ByID(ctx, *id)
	if errors.Is(err, repository.ErrFileNotFound) {
		return nil, newError(ErrNotFound, "folder not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load folder: %w", err)
	}
	if folder.IsDeleted || !folder.IsFolder || folder.OwnerID != ownerID {
		return nil, newError(ErrNotFound, "folder not found")
	}
	return folder, nil
}

// ParentID maps the "root" alias and the empty string to nil.
func ParentID(id string) *string {
	if id == "" || id == "root" {
		return nil
	}
	return &id
}

func validName(name string) (string, error) {
	n, err := validation.ValidateName(name)
	if err != nil {
		return "", newError(ErrValidation, "%s", err.Error())
	}
	return n, nil
}

func ensureFreeName(ctx context.Context, files repository.FileRepository, ownerID string, parentID *string, name, excludeID string) error {
	taken, err := files.ActiveSiblingExists(ctx, ownerID, parentID, name, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check sibling names: %w", err)
	}
	if taken {
		return newError(ErrConflict, "an item named %q already exists in this folder", name)
	}
	return nil
}

func mapWriteErr(err error) error {
	if errors.Is(err, repository.ErrDuplicateName) {
		return newError(ErrConflict, "%s", err.Error())
	}
	if errors.Is(err, repository.ErrQuotaExceeded) {
		return newError(ErrQuotaExceeded, "%s", err.Error())
	}
	return err
}

func (s *FileService) CreateFolder(ctx context.Context, ownerID, name string, parentID *string, tags []string) (*model.FileNode, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}

	var folder *model.FileNode
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		parent, err := loadFolder(ctx, tx.Files, ownerID, parentID)
		if err != nil {
			return err
		}

		err = ensureFreeName(ctx, tx.Files, ownerID, parentID, name, "")
		if err != nil {
			return err
		}

		at := s.now()
		folder = &model.FileNode{
			ID:        uuid.New().String(),
			OwnerID:   ownerID,
			ParentID:  parentID,
			Name:      name,
			IsFolder:  true,
			Path:      BuildPath(parent, name),
			Tags:      model.NewTags(tags),
			CreatedAt: at,
			UpdatedAt: at,
		}
		return mapWriteErr(tx.Files.Create(ctx, folder))
	})
	if err != nil {
		return nil, err
	}

	slog.Info("folder created", "user_id", ownerID, "folder_id", folder.ID, "path", folder.Path)
	return folder, nil
}

// Upload writes the blob first and only then inserts the row, so a row never points
// at missing content. A failed insert removes the blob again.
func (s *FileService) Upload(ctx context.Context, ownerID string, in UploadInput) (*model.FileNode, error) {
	name, err := validName(in.Filename)
	if err != nil {
		return nil, err
	}
	if in.Body == nil {
		return nil, newError(ErrValidation, "file is required")
	}
	if in.Size > s.maxUploadSize {
		return nil, newError(ErrValidation, "file exceeds the maximum upload size of %d bytes", s.maxUploadSize)
	}

	// Fail fast before streaming anything
	parent, err := loadFolder(ctx, s.store.Files, ownerID, in.ParentID)
	if err != nil {
		return nil, err
	}
	err = ensureFreeName(ctx, s.store.Files, ownerID, in.ParentID, name, "")
	if err != nil {
		return nil, err
	}
	if in.Size > 0 {
		err = s.checkQuota(ctx, ownerID, in.Size)
		if err != nil {
			return nil, err
		}
	}

	mimeType, body, err := validation.DetectContentType(name, in.ContentType, in.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	key := ownerID + "/" + uuid.New().String()
	size, err := s.storage.Save(ctx, key, io.LimitReader(body, s.maxUploadSize+1), mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	if size > s.maxUploadSize {
		s.discardBlob(key)
		return nil, newError(ErrValidation, "file exceeds the maximum upload size of %d bytes", s.maxUploadSize)
	}

	at := s.now()
	file := &model.FileNode{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		ParentID:   in.ParentID,
		Name:       name,
		Path:       BuildPath(parent, name),
		Size:       size,
		MimeType:   mimeType,
		StorageKey: key,
		Tags:       model.NewTags(in.Tags),
		CreatedAt:  at,
		UpdatedAt:  at,
	}

	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		// The parent may have been deleted or the name taken while streaming
		parent, err := loadFolder(ctx, tx.Files, ownerID, in.ParentID)
		if err != nil {
			return err
		}
		file.Path = BuildPath(parent, name)

		err = ensureFreeName(ctx, tx.Files, ownerID, in.ParentID, name, "")
		if err != nil {
			return err
		}

		err = tx.Users.AddStorageUsed(ctx, ownerID, size, s.defaultLimit)
		if err != nil {
			return mapWriteErr(err)
		}

		return mapWriteErr(tx.Files.Create(ctx, file))
	})
	if err != nil {
		s.discardBlob(key)
		return nil, err
	}

	slog.Info("file uploaded", "user_id", ownerID, "file_id", file.ID, "size", size, "mime_type", mimeType)
	return file, nil
}

func (s *FileService) checkQuota(ctx context.Context, ownerID string, size int64) error {
	user, err := s.store.Users.ByID(ctx, ownerID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return newError(ErrUnauthorized, "unknown user")
	}
	if err != nil {
		return err
	}
	if user.StorageUsed+size > effectiveLimit(user, s.defaultLimit) {
		return newError(ErrQuotaExceeded, "%s", repository.ErrQuotaExceeded.Error())
	}
	return nil
}

// discardBlob removes an orphaned upload. It runs detached from the request so a
// cancelled client does not leave the blob behind.
func (s *FileService) discardBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.storage.Delete(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Error("failed to discard orphaned blob", "storage_key", key, "error", err)
	}
}

// Rename changes a node's name (and tags when given). Folders carry their new path
// down to every descendant.
func (s *FileService) Rename(ctx context.Context, ownerID, id, newName string, tags []string) (*model.FileNode, error) {
	name, err := validName(newName)
	if err != nil {
		return nil, err
	}

	var node *model.FileNode
	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		node, err = loadActive(ctx, tx.Files, ownerID, id)
		if err != nil {
			return err
		}

		err = ensureFreeName(ctx, tx.Files, ownerID, node.ParentID, name, node.ID)
		if err != nil {
			return err
		}

		parent, err := s.parentOf(ctx, tx.Files, node)
		if err != nil {
			return err
		}

		oldPath := node.Path
		node.Name = name
		node.Path = BuildPath(parent, name)
		node.UpdatedAt = s.now()
		if tags != nil {
			node.Tags = model.NewTags(tags)
		}

		err = mapWriteErr(tx.Files.Update(ctx, node))
		if err != nil {
			return err
		}

		if node.IsFolder && oldPath != node.Path {
			return s.cascadePaths(ctx, tx.Files, node)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

func (s *FileService) parentOf(ctx context.Context, files repository.FileRepository, node *model.FileNode) (*model.FileNode, error) {
	if node.ParentID == nil {
		return nil, nil
	}
	parent, err := files.ByID(ctx, *node.ParentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent: %w", err)
	}
	return parent, nil
}

// cascadePaths rewrites the cached path of every descendant of folder, deleted or
// not, from its already-updated path.
func (s *FileService) cascadePaths(ctx context.Context, files repository.FileRepository, folder *model.FileNode) error {
	subtree, err := files.Subtree(ctx, folder.ID)
	if err != nil {
		return fmt.Errorf("failed to load subtree: %w", err)
	}

	paths := map[string]string{folder.ID: folder.Path}
	at := s.now()

	// Subtree is ordered shallowest first, so parents are resolved before children
	for _, n := range subtree {
		if n.ID == folder.ID || n.ParentID == nil {
			continue
		}
		parentPath, ok := paths[*n.ParentID]
		if !ok {
			continue
		}
		newPath := joinPath(parentPath, n.Name)
		paths[n.ID] = newPath
		if newPath == n.Path {
			continue
		}

		err = files.UpdatePath(ctx, n.ID, newPath, at)
		if err != nil {
			return fmt.Errorf("failed to update path: %w", err)
		}
	}

	return nil
}

// Move re-parents ids under targetID (nil = root). Either every node moves or none.
func (s *FileService) Move(ctx context.Context, ownerID string, ids []string, targetID *string) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, newError(ErrValidation, "fileIds must not be empty")
	}

	moved := 0
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		target, err := loadFolder(ctx, tx.Files, ownerID, targetID)
		if err != nil {
			return err
		}

		var ancestors []model.PathEntry
		if target != nil {
			ancestors, err = ResolvePath(ctx, tx.Files, ownerID, target.ID)
			if err != nil {
				return err
			}
		}

		nodes := make([]*model.FileNode, 0, len(ids))
		for _, id := range ids {
			node, err := loadActive(ctx, tx.Files, ownerID, id)
			if err != nil {
				return err
			}
			if node.IsFolder && slices.ContainsFunc(ancestors, func(e model.PathEntry) bool { return e.ID == node.ID }) {
				return newError(ErrValidation, "cannot move folder %q into itself or one of its descendants", node.Name)
			}
			nodes = append(nodes, node)
		}

		at := s.now()
		for _, node := range nodes {
			err = ensureFreeName(ctx, tx.Files, ownerID, targetID, node.Name, node.ID)
			if err != nil {
				return err
			}

			oldPath := node.Path
			node.ParentID = targetID
			node.Path = BuildPath(target, node.Name)
			node.UpdatedAt = at

			err = mapWriteErr(tx.Files.Update(ctx, node))
			if err != nil {
				return err
			}

			if node.IsFolder && oldPath != node.Path {
				err = s.cascadePaths(ctx, tx.Files, node)
				if err != nil {
					return err
				}
			}
			moved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("files moved", "user_id", ownerID, "count", moved)
	return moved, nil
}

// Delete soft-deletes ids together with their active descendants. Every affected row
// shares one deletedAt so Restore can bring the same set back. Missing or already
// deleted ids are skipped; the result is the number of rows affected, descendants included.
func (s *FileService) Delete(ctx context.Context, ownerID string, ids []string) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, newError(ErrValidation, "fileIds must not be empty")
	}

	deleted := 0
	var freed int64
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		var requested []*model.FileNode
		for _, id := range ids {
			node, err := tx.Files.ByID(ctx, id)
			if errors.Is(err, repository.ErrFileNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to load file: %w", err)
			}
			if node.OwnerID != ownerID {
				return newError(ErrForbidden, "you do not have access to %s", id)
			}
			if node.IsDeleted {
				continue
			}
			requested = append(requested, node)
		}
		if len(requested) == 0 {
			return nil
		}

		affected := map[string]bool{}
		var affectedIDs []string
		for _, node := range requested {
			subtree, err := tx.Files.Subtree(ctx, node.ID)
			if err != nil {
				return fmt.Errorf("failed to load subtree: %w", err)
			}
			for _, n := range subtree {
				if n.IsDeleted || affected[n.ID] {
					continue
				}
				affected[n.ID] = true
				affectedIDs = append(affectedIDs, n.ID)
				if !n.IsFolder {
					freed += n.Size
				}
			}
		}

		n, err := tx.Files.SoftDelete(ctx, affectedIDs, s.now())
		if err != nil {
			return fmt.Errorf("failed to delete files: %w", err)
		}

		if freed > 0 {
			err = tx.Users.SubtractStorageUsed(ctx, ownerID, freed)
			if err != nil {
				return fmt.Errorf("failed to update storage usage: %w", err)
			}
		}

		deleted = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, newError(ErrNotFound, "no files found to delete")
	}

	slog.Info("files deleted", "user_id", ownerID, "count", deleted, "freed_bytes", freed)
	return deleted, nil
}

// Restore brings soft-deleted nodes back while they are still inside the retention
// window, together with the descendants removed in the same delete. A node whose
// parent is gone is re-attached at the root.
func (s *FileService) Restore(ctx context.Context, ownerID string, ids []string) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, newError(ErrValidation, "fileIds must not be empty")
	}

	restored := 0
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		cutoff := s.now().Add(-s.retention)

		var requested []*model.FileNode
		for _, id := range ids {
			node, err := tx.Files.ByID(ctx, id)
			if errors.Is(err, repository.ErrFileNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to load file: %w", err)
			}
			if node.OwnerID != ownerID {
				return newError(ErrForbidden, "you do not have access to %s", id)
			}
			if !node.IsDeleted || node.DeletedAt == nil || node.DeletedAt.Before(cutoff) {
				continue
			}
			requested = append(requested, node)
		}

		// Parents before children, so a restored parent is visible to its children
		slices.SortFunc(requested, func(a, b *model.FileNode) int {
			return len(a.Path) - len(b.Path)
		})

		at := s.now()
		for _, node := range requested {
			// Refresh: an earlier iteration may already have restored it
			node, err := tx.Files.ByID(ctx, node.ID)
			if err != nil {
				return fmt.Errorf("failed to load file: %w", err)
			}
			if !node.IsDeleted {
				restored++
				continue
			}

			parent, err := s.parentOf(ctx, tx.Files, node)
			if err != nil {
				return err
			}
			if parent != nil && parent.IsDeleted {
				parent = nil
			}

			err = ensureFreeName(ctx, tx.Files, ownerID, parentKey(parent), node.Name, node.ID)
			if err != nil {
				return err
			}

			subtree, err := tx.Files.Subtree(ctx, node.ID)
			if err != nil {
				return fmt.Errorf("failed to load subtree: %w", err)
			}

			var batch []string
			var size int64
			for _, n := range subtree {
				if n.IsDeleted && n.DeletedAt != nil && n.DeletedAt.Equal(*node.DeletedAt) {
					batch = append(batch, n.ID)
					if !n.IsFolder {
						size += n.Size
					}
				}
			}

			if parent == nil && node.ParentID != nil {
				node.ParentID = nil
				node.Path = BuildPath(nil, node.Name)
				node.UpdatedAt = at
				err = mapWriteErr(tx.Files.Update(ctx, node))
				if err != nil {
					return err
				}
				if node.IsFolder {
					err = s.cascadePaths(ctx, tx.Files, node)
					if err != nil {
						return err
					}
				}
			}

			_, err = tx.Files.Restore(ctx, batch, at)
			if err != nil {
				return mapWriteErr(err)
			}

			if size > 0 {
				err = tx.Users.AddStorageUsed(ctx, ownerID, size, s.defaultLimit)
				if err != nil {
					return mapWriteErr(err)
				}
			}
			restored++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if restored == 0 {
		return 0, newError(ErrNotFound, "no restorable files found")
	}

	slog.Info("files restored", "user_id", ownerID, "count", restored)
	return restored, nil
}

func parentKey(parent *model.FileNode) *string {
	if parent == nil {
		return nil
	}
	id := parent.ID
	return &id
}

// Files lists one page of a folder's direct children, folders first.
func (s *FileService) Files(ctx context.Context, ownerID string, q ListQuery) (*FileList, error) {
	if q.Page == 0 {
		q.Page = DefaultPage
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.SortBy == "" {
		q.SortBy = repository.SortByName
	}
	if q.SortOrder == "" {
		q.SortOrder = "asc"
	}

	if q.Page < 1 {
		return nil, newError(ErrValidation, "page must be at least 1")
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return nil, newError(ErrValidation, "pageSize must be between 1 and %d", MaxPageSize)
	}
	if !repository.ValidSort(q.SortBy) {
		return nil, newError(ErrValidation, "invalid sortBy %q", q.SortBy)
	}
	if q.SortOrder != "asc" && q.SortOrder != "desc" {
		return nil, newError(ErrValidation, "invalid sortOrder %q", q.SortOrder)
	}
	if q.Type != "" && !validation.ListTypes[q.Type] {
		return nil, newError(ErrValidation, "invalid type %q", q.Type)
	}

	_, err := loadFolder(ctx, s.store.Files, ownerID, q.FolderID)
	if err != nil {
		return nil, err
	}

	items, total, err := s.store.Files.List(ctx, repository.ListFilter{
		OwnerID:    ownerID,
		ParentID:   q.FolderID,
		MimePrefix: q.Type,
		SortBy:     q.SortBy,
		Desc:       q.SortOrder == "desc",
		Limit:      q.PageSize,
		Offset:     (q.Page - 1) * q.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return &FileList{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

func (s *FileService) FolderPath(ctx context.Context, ownerID, folderID string) ([]model.PathEntry, error) {
	return ResolvePath(ctx, s.store.Files, ownerID, folderID)
}

// FolderContents lists every direct child of a folder ("root" for the top level).
func (s *FileService) FolderContents(ctx context.Context, ownerID, folderID string) ([]*model.FileNode, error) {
	id := ParentID(folderID)
	_, err := loadFolder(ctx, s.store.Files, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.store.Files.Children(ctx, ownerID, id)
}

// Trash lists the top-most deleted nodes with the moment each becomes purgeable.
func (s *FileService) Trash(ctx context.Context, ownerID string) ([]*model.TrashItem, error) {
	nodes, err := s.store.Files.Trash(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trash: %w", err)
	}

	items := make([]*model.TrashItem, 0, len(nodes))
	for _, n := range nodes {
		item := &model.TrashItem{FileNode: n}
		if n.DeletedAt != nil {
			item.ExpiresAt = n.DeletedAt.Add(s.retention)
		}
		items = append(items, item)
	}
	return items, nil
}

// Open streams an active file's content. The caller closes the reader.
func (s *FileService) Open(ctx context.Context, ownerID, id string) (*model.FileNode, io.ReadCloser, error) {
	node, err := loadActive(ctx, s.store.Files, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	if node.IsFolder {
		return nil, nil, newError(ErrValidation, "folders have no content")
	}

	r, err := s.storage.Open(ctx, node.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Error("blob missing for active file", "file_id", node.ID, "storage_key", node.StorageKey)
		return nil, nil, newError(ErrNotFound, "file content not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return node, r, nil
}

func uniqueIDs(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
