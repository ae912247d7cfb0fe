package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/templui/cloudbox/internal/model"
)

var (
	ErrFavoriteFolderNotFound = errors.New("favorite folder not found")
	ErrFavoriteNotFound       = errors.New("favorite not found")
	ErrDuplicateFavorite      = errors.New("file is already in this favorite folder")
)

type FavoriteRepository interface {
	Folders(ctx context.Context, ownerID string) ([]*model.FavoriteFolder, error)
	CreateFolder(ctx context.Context, folder *model.FavoriteFolder) error
	CreateDefaultFolder(ctx context.Context, folder *model.FavoriteFolder) (bool, error)
	FolderByID(ctx context.Context, ownerID, id string) (*model.FavoriteFolder, error)
	DefaultFolder(ctx context.Context, ownerID string) (*model.FavoriteFolder, error)
	SetDefault(ctx context.Context, ownerID, folderID string) error
	OwnersWithFolders(ctx context.Context) ([]string, error)
	Add(ctx context.Context, favorite *model.Favorite) error
	Remove(ctx context.Context, ownerID, fileID string, folderID *string) (int64, error)
	Files(ctx context.Context, ownerID string, folderID *string) ([]*model.FileNode, error)
}

type favoriteRepository struct {
	db Queryer
}

func NewFavoriteRepository(db Queryer) FavoriteRepository {
	return &favoriteRepository{db: db}
}

// Folders returns the owner's favorite folders, oldest first.
func (r *favoriteRepository) Folders(ctx context.Context, ownerID string) ([]*model.FavoriteFolder, error) {
	folders := []*model.FavoriteFolder{}
	query := `SELECT * FROM favorite_folders WHERE owner_id = $1 ORDER BY created_at ASC, id ASC`

	err := r.db.SelectContext(ctx, &folders, query, ownerID)
	if err != nil {
		return nil, err
	}
	return folders, nil
}

func (r *favoriteRepository) CreateFolder(ctx context.Context, folder *model.FavoriteFolder) error {
	query := `INSERT INTO favorite_folders (id, owner_id, name, is_default, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, folder.ID, folder.OwnerID, folder.Name, folder.IsDefault, folder.CreatedAt)
	return err
}

// CreateDefaultFolder inserts folder as the owner's default unless one already
// exists. It reports whether the row was inserted.
func (r *favoriteRepository) CreateDefaultFolder(ctx context.Context, folder *model.FavoriteFolder) (bool, error) {
	query := `INSERT INTO favorite_folders (id, owner_id, name, is_default, created_at) VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (owner_id) WHERE is_default DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, folder.ID, folder.OwnerID, folder.Name, true, folder.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		folder.IsDefault = true
	}
	return n == 1, nil
}

func (r *favoriteRepository) FolderByID(ctx context.Context, ownerID, id string) (*model.FavoriteFolder, error) {
	folder := &model.FavoriteFolder{}
	query := `SELECT * FROM favorite_folders WHERE id = $1 AND owner_id = $2`

	err := r.db.GetContext(ctx, folder, query, id, ownerID)
	if err == sql.ErrNoRows {
		return nil, ErrFavoriteFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	return folder, nil
}

func (r *favoriteRepository) DefaultFolder(ctx context.Context, ownerID string) (*model.FavoriteFolder, error) {
	folder := &model.FavoriteFolder{}
	query := `SELECT * FROM favorite_folders WHERE owner_id = $1 AND is_default = $2 ORDER BY created_at ASC, id ASC LIMIT 1`

	err := r.db.GetContext(ctx, folder, query, ownerID, true)
	if err == sql.ErrNoRows {
		return nil, ErrFavoriteFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// SetDefault makes folderID the only default folder of the owner. The old default
// is cleared first so the one-default index holds after every statement; callers
// run it inside a transaction.
func (r *favoriteRepository) SetDefault(ctx context.Context, ownerID, folderID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE favorite_folders SET is_default = $1 WHERE owner_id = $2 AND is_default`, false, ownerID)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `UPDATE favorite_folders SET is_default = $1 WHERE owner_id = $2 AND id = $3`, true, ownerID, folderID)
	return err
}

func (r *favoriteRepository) OwnersWithFolders(ctx context.Context) ([]string, error) {
	owners := []string{}
	err := r.db.SelectContext(ctx, &owners, `SELECT DISTINCT owner_id FROM favorite_folders ORDER BY owner_id`)
	return owners, err
}

func (r *favoriteRepository) Add(ctx context.Context, favorite *model.Favorite) error {
	query := `INSERT INTO favorites (id, owner_id, file_id, folder_id, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, favorite.ID, favorite.OwnerID, favorite.FileID, favorite.FolderID, favorite.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateFavorite
	}
	return err
}

// Remove deletes the file's favorite links, limited to one folder when folderID is set.
func (r *favoriteRepository) Remove(ctx context.Context, ownerID, fileID string, folderID *string) (int64, error) {
	query := `DELETE FROM favorites WHERE owner_id = $1 AND file_id = $2`
	args := []any{ownerID, fileID}
	if folderID != nil {
		query += ` AND folder_id = $3`
		args = append(args, *folderID)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Files lists the active files linked from the owner's favorites.
func (r *favoriteRepository) Files(ctx context.Context, ownerID string, folderID *string) ([]*model.FileNode, error) {
	query := `SELECT * FROM files WHERE is_deleted = $1 AND id IN (
	              SELECT fav.file_id FROM favorites fav WHERE fav.owner_id = $2`
	args := []any{false, ownerID}
	if folderID != nil {
		query += ` AND fav.folder_id = $3`
		args = append(args, *folderID)
	}
	query += `) ORDER BY name ASC, id ASC`

	files := []*model.FileNode{}
	err := r.db.SelectContext(ctx, &files, query, args...)
	if err != nil {
		return nil, err
	}
	return files, nil
}
