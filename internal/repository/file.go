package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/cloudbox/internal/model"
)

const (
	SortByName      = "name"
	SortBySize      = "size"
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
	SortByType      = "type"
)

var (
	ErrFileNotFound  = errors.New("file not found")
	ErrDuplicateName = errors.New("an item with this name already exists in the folder")
)

var sortColumns = map[string]string{
	SortByName:      "name",
	SortBySize:      "size",
	SortByCreatedAt: "created_at",
	SortByUpdatedAt: "updated_at",
	SortByType:      "mime_type",
}

// ValidSort reports whether sortBy names a sortable column.
func ValidSort(sortBy string) bool {
	_, ok := sortColumns[sortBy]
	return ok
}

// ListFilter selects direct, non-deleted children of a folder.
type ListFilter struct {
	OwnerID    string
	ParentID   *string // nil = root
	MimePrefix string  // "image", "video", ...; empty = folders and files
	SortBy     string
	Desc       bool
	Limit      int
	Offset     int
}

type FileRepository interface {
	Create(ctx context.Context, file *model.FileNode) error
	ByID(ctx context.Context, id string) (*model.FileNode, error)
	ActiveSiblingExists(ctx context.Context, ownerID string, parentID *string, name, excludeID string) (bool, error)
	ActiveNames(ctx context.Context, ownerID string, parentID *string, names []string) ([]string, error)
	List(ctx context.Context, filter ListFilter) ([]*model.FileNode, int, error)
	Children(ctx context.Context, ownerID string, parentID *string) ([]*model.FileNode, error)
	Subtree(ctx context.Context, id string) ([]*model.FileNode, error)
	Update(ctx context.Context, file *model.FileNode) error
	UpdatePath(ctx context.Context, id, path string, at time.Time) error
	SoftDelete(ctx context.Context, ids []string, at time.Time) (int64, error)
	Restore(ctx context.Context, ids []string, at time.Time) (int64, error)
	Stats(ctx context.Context, ownerID string) (*model.StorageStats, error)
	Trash(ctx context.Context, ownerID string) ([]*model.FileNode, error)
	ExpiredFiles(ctx context.Context, before time.Time, limit int) ([]*model.FileNode, error)
	ExpiredFolders(ctx context.Context, before time.Time, limit int) ([]*model.FileNode, error)
	CountChildren(ctx context.Context, parentID string) (int, error)
	IncrementPurgeAttempts(ctx context.Context, ids []string) error
	HardDelete(ctx context.Context, ids []string) (int64, error)
}

type fileRepository struct {
	db Queryer
}

func NewFileRepository(db Queryer) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *model.FileNode) error {
	query := `INSERT INTO files (id, owner_id, parent_id, name, is_folder, path, size, mime_type, storage_key, tags, is_deleted, deleted_at, purge_attempts, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.ExecContext(ctx, query,
		file.ID,
		file.OwnerID,
		file.ParentID,
		file.Name,
		file.IsFolder,
		file.Path,
		file.Size,
		file.MimeType,
		file.StorageKey,
		file.Tags,
		file.IsDeleted,
		file.DeletedAt,
		file.PurgeAttempts,
		file.CreatedAt,
		file.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateName
	}

	return err
}

// ByID loads a node in any state and for any owner; callers apply visibility rules.
func (r *fileRepository) ByID(ctx context.Context, id string) (*model.FileNode, error) {
	file := &model.FileNode{}
	query := `SELECT * FROM files WHERE id = $1`

	err := r.db.GetContext(ctx, file, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}

	return file, nil
}

func parentClause(parentID *string) (string, []any) {
	if parentID == nil {
		return "parent_id IS NULL", nil
	}
	return "parent_id = ?", []any{*parentID}
}

func (r *fileRepository) ActiveSiblingExists(ctx context.Context, ownerID string, parentID *string, name, excludeID string) (bool, error) {
	clause, parentArgs := parentClause(parentID)
	query := `SELECT COUNT(*) FROM files WHERE owner_id = ? AND ` + clause + ` AND name = ? AND id <> ? AND is_deleted = ?`

	args := append([]any{ownerID}, parentArgs...)
	args = append(args, name, excludeID, false)

	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *fileRepository) ActiveNames(ctx context.Context, ownerID string, parentID *string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	clause, parentArgs := parentClause(parentID)
	query := `SELECT name FROM files WHERE owner_id = ? AND ` + clause + ` AND is_deleted = ? AND name IN (?)`

	var found []string
	for _, chunk := range chunks(names) {
		args := append([]any{ownerID}, parentArgs...)
		args = append(args, false, chunk)

		expanded, inArgs, err := sqlx.In(query, args...)
		if err != nil {
			return nil, err
		}

		var batch []string
		err = r.db.SelectContext(ctx, &batch, r.db.Rebind(expanded), inArgs...)
		if err != nil {
			return nil, err
		}
		found = append(found, batch...)
	}

	return found, nil
}

func (r *fileRepository) List(ctx context.Context, filter ListFilter) ([]*model.FileNode, int, error) {
	clause, parentArgs := parentClause(filter.ParentID)
	where := `owner_id = ? AND ` + clause + ` AND is_deleted = ?`
	args := append([]any{filter.OwnerID}, parentArgs...)
	args = append(args, false)

	if filter.MimePrefix != "" {
		where += ` AND is_folder = ? AND mime_type LIKE ? ESCAPE '\'`
		args = append(args, false, escapeLike(filter.MimePrefix)+"/%")
	}

	var total int
	err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM files WHERE `+where), args...)
	if err != nil {
		return nil, 0, err
	}

	// Validate and build ORDER BY clause; folders always come first
	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns[SortByName]
	}
	direction := "ASC"
	if filter.Desc {
		direction = "DESC"
	}
	orderBy := fmt.Sprintf(" ORDER BY is_folder DESC, %s %s, id ASC", column, direction)

	query := `SELECT * FROM files WHERE ` + where + orderBy + ` LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	files := []*model.FileNode{}
	err = r.db.SelectContext(ctx, &files, r.db.Rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}

	return files, total, nil
}

func (r *fileRepository) Children(ctx context.Context, ownerID string, parentID *string) ([]*model.FileNode, error) {
	clause, parentArgs := parentClause(parentID)
	query := `SELECT * FROM files WHERE owner_id = ? AND ` + clause + ` AND is_deleted = ? ORDER BY is_folder DESC, name ASC`

	args := append([]any{ownerID}, parentArgs...)
	args = append(args, false)

	files := []*model.FileNode{}
	err := r.db.SelectContext(ctx, &files, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Subtree returns the node and every descendant, deleted or not, shallowest first.
// UNION (not UNION ALL) keeps the walk finite even if the data holds a cycle.
func (r *fileRepository) Subtree(ctx context.Context, id string) ([]*model.FileNode, error) {
	query := `WITH RECURSIVE subtree(id) AS (
	              SELECT id FROM files WHERE id = $1
	              UNION
	              SELECT f.id FROM files f JOIN subtree s ON f.parent_id = s.id
	          )
	          SELECT * FROM files WHERE id IN (SELECT id FROM subtree) ORDER BY LENGTH(path) ASC, id ASC`

	files := []*model.FileNode{}
	err := r.db.SelectContext(ctx, &files, query, id)
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *fileRepository) Update(ctx context.Context, file *model.FileNode) error {
	query := `UPDATE files
	          SET parent_id = $1, name = $2, path = $3, tags = $4, updated_at = $5
	          WHERE id = $6 AND owner_id = $7`

	result, err := r.db.ExecContext(ctx, query,
		file.ParentID,
		file.Name,
		file.Path,
		file.Tags,
		file.UpdatedAt,
		file.ID,
		file.OwnerID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateName
	}
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrFileNotFound
	}

	return nil
}

func (r *fileRepository) UpdatePath(ctx context.Context, id, path string, at time.Time) error {
	query := `UPDATE files SET path = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, path, at, id)
	return err
}

// SoftDelete marks active rows deleted; rows already in the trash are left untouched.
func (r *fileRepository) SoftDelete(ctx context.Context, ids []string, at time.Time) (int64, error) {
	query := `UPDATE files SET is_deleted = ?, deleted_at = ?, updated_at = ? WHERE is_deleted = ? AND id IN (?)`
	return execIn(ctx, r.db, query, ids, true, at, at, false)
}

func (r *fileRepository) Restore(ctx context.Context, ids []string, at time.Time) (int64, error) {
	query := `UPDATE files SET is_deleted = ?, deleted_at = NULL, purge_attempts = 0, updated_at = ? WHERE is_deleted = ? AND id IN (?)`
	n, err := execIn(ctx, r.db, query, ids, false, at, true)
	if isUniqueViolation(err) {
		return n, ErrDuplicateName
	}
	return n, err
}

func (r *fileRepository) Stats(ctx context.Context, ownerID string) (*model.StorageStats, error) {
	stats := &model.StorageStats{}
	query := `SELECT
	              CAST(COALESCE(SUM(CASE WHEN is_folder = $1 THEN 1 ELSE 0 END), 0) AS BIGINT) AS file_count,
	              CAST(COALESCE(SUM(CASE WHEN is_folder = $2 THEN 1 ELSE 0 END), 0) AS BIGINT) AS folder_count,
	              CAST(COALESCE(SUM(CASE WHEN is_folder = $1 THEN size ELSE 0 END), 0) AS BIGINT) AS used_size
	          FROM files WHERE owner_id = $3 AND is_deleted = $1`

	err := r.db.GetContext(ctx, stats, query, false, true, ownerID)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Trash lists the top-most deleted nodes: those whose parent is not itself in the trash.
func (r *fileRepository) Trash(ctx context.Context, ownerID string) ([]*model.FileNode, error) {
	query := `SELECT f.* FROM files f
	          LEFT JOIN files p ON p.id = f.parent_id
	          WHERE f.owner_id = $1 AND f.is_deleted = $2
	            AND (p.id IS NULL OR p.is_deleted = $3 OR p.deleted_at <> f.deleted_at)
	          ORDER BY f.deleted_at DESC, f.id ASC`

	files := []*model.FileNode{}
	err := r.db.SelectContext(ctx, &files, query, ownerID, true, false)
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *fileRepository) ExpiredFiles(ctx context.Context, before time.Time, limit int) ([]*model.FileNode, error) {
	query := `SELECT * FROM files
	          WHERE is_deleted = $1 AND is_folder = $2 AND deleted_at < $3
	          ORDER BY deleted_at ASC, id ASC LIMIT $4`

	files := []*model.FileNode{}
	err := r.db.SelectContext(ctx, &files, query, true, false, before, limit)
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ExpiredFolders returns the deepest folders first so a single run can unwind a chain.
func (r *fileRepository) ExpiredFolders(ctx context.Context, before time.Time, limit int) ([]*model.FileNode, error) {
	query := `SELECT * FROM files
	          WHERE is_deleted = $1 AND is_folder = $1 AND deleted_at < $2
	          ORDER BY LENGTH(path) DESC, deleted_at ASC, id ASC LIMIT $3`

	files := []*model.FileNode{}
	err := r.db.SelectContext(ctx, &files, query, true, before, limit)
	if err != nil {
		return nil, err
	}
	return files, nil
}

// CountChildren counts rows in any state that still point at parentID.
func (r *fileRepository) CountChildren(ctx context.Context, parentID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM files WHERE parent_id = $1`, parentID)
	return count, err
}

func (r *fileRepository) IncrementPurgeAttempts(ctx context.Context, ids []string) error {
	query := `UPDATE files SET purge_attempts = purge_attempts + 1 WHERE id IN (?)`
	_, err := execIn(ctx, r.db, query, ids)
	return err
}

// HardDelete permanently removes soft-deleted rows and any favorites pointing at them.
func (r *fileRepository) HardDelete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	_, err := execIn(ctx, r.db, `DELETE FROM favorites WHERE file_id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete favorites: %w", err)
	}

	return execIn(ctx, r.db, `DELETE FROM files WHERE is_deleted = ? AND id IN (?)`, ids, true)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
