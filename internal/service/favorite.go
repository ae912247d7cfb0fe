package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/repository"
)

type FavoriteService struct {
	store *repository.Store
	now   func() time.Time
}

func NewFavoriteService(store *repository.Store) *FavoriteService {
	return &FavoriteService{store: store, now: now}
}

type FixDefaultsResult struct {
	UsersScanned int `json:"usersScanned"`
	UsersFixed   int `json:"usersFixed"`
}

// ensureDefault returns the owner's default folder, creating "Favorites" when there
// is none. Existing folders are never promoted here; FixDefaultFolders does that.
func (s *FavoriteService) ensureDefault(ctx context.Context, tx *repository.Store, ownerID string) (*model.FavoriteFolder, error) {
	folder, err := tx.Favorites.DefaultFolder(ctx, ownerID)
	if err == nil {
		return folder, nil
	}
	if !errors.Is(err, repository.ErrFavoriteFolderNotFound) {
		return nil, err
	}

	folder = &model.FavoriteFolder{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      model.DefaultFavoriteFolderName,
		CreatedAt: s.now(),
	}
	created, err := tx.Favorites.CreateDefaultFolder(ctx, folder)
	if err != nil {
		return nil, err
	}
	if created {
		return folder, nil
	}

	// A concurrent request created it first
	return tx.Favorites.DefaultFolder(ctx, ownerID)
}

// Folders lists the owner's favorite folders, creating the default one on first use.
func (s *FavoriteService) Folders(ctx context.Context, ownerID string) ([]*model.FavoriteFolder, error) {
	var folders []*model.FavoriteFolder
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		_, err := s.ensureDefault(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		folders, err = tx.Favorites.Folders(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list favorite folders: %w", err)
	}
	return folders, nil
}

func (s *FavoriteService) CreateFolder(ctx context.Context, ownerID, name string) (*model.FavoriteFolder, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}

	folder := &model.FavoriteFolder{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: s.now(),
	}
	err = s.store.Favorites.CreateFolder(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to create favorite folder: %w", err)
	}
	return folder, nil
}

func (s *FavoriteService) folder(ctx context.Context, tx *repository.Store, ownerID string, folderID *string) (*model.FavoriteFolder, error) {
	if folderID == nil {
		return s.ensureDefault(ctx, tx, ownerID)
	}
	folder, err := tx.Favorites.FolderByID(ctx, ownerID, *folderID)
	if errors.Is(err, repository.ErrFavoriteFolderNotFound) {
		return nil, newError(ErrNotFound, "%s", err.Error())
	}
	return folder, err
}

// Add links an active file into a favorite folder (the default one when folderID is nil).
func (s *FavoriteService) Add(ctx context.Context, ownerID, fileID string, folderID *string) (*model.Favorite, error) {
	var favorite *model.Favorite
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		file, err := loadActive(ctx, tx.Files, ownerID, fileID)
		if err != nil {
			return err
		}

		folder, err := s.folder(ctx, tx, ownerID, folderID)
		if err != nil {
			return err
		}

		favorite = &model.Favorite{
			ID:        uuid.New().String(),
			OwnerID:   ownerID,
			FileID:    file.ID,
			FolderID:  folder.ID,
			CreatedAt: s.now(),
		}
		err = tx.Favorites.Add(ctx, favorite)
		if errors.Is(err, repository.ErrDuplicateFavorite) {
			return newError(ErrConflict, "%s", err.Error())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return favorite, nil
}

func (s *FavoriteService) Remove(ctx context.Context, ownerID, fileID string, folderID *string) error {
	n, err := s.store.Favorites.Remove(ctx, ownerID, fileID, folderID)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	if n == 0 {
		return newError(ErrNotFound, "%s", repository.ErrFavoriteNotFound.Error())
	}
	return nil
}

// List returns the active favorited files, from one folder or all of them.
func (s *FavoriteService) List(ctx context.Context, ownerID string, folderID *string) ([]*model.FileNode, error) {
	if folderID != nil {
		_, err := s.folder(ctx, s.store, ownerID, folderID)
		if err != nil {
			return nil, err
		}
	}
	return s.store.Favorites.Files(ctx, ownerID, folderID)
}

// FixDefaultFolders repairs owners with zero or several default folders by keeping
// only the oldest candidate as default.
func (s *FavoriteService) FixDefaultFolders(ctx context.Context) (*FixDefaultsResult, error) {
	owners, err := s.store.Favorites.OwnersWithFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}

	result := &FixDefaultsResult{}
	var fixed []string
	for _, ownerID := range owners {
		result.UsersScanned++

		err = s.store.InTx(ctx, func(tx *repository.Store) error {
			folders, err := tx.Favorites.Folders(ctx, ownerID)
			if err != nil {
				return err
			}

			var defaults []*model.FavoriteFolder
			for _, f := range folders {
				if f.IsDefault {
					defaults = append(defaults, f)
				}
			}
			if len(defaults) == 1 || len(folders) == 0 {
				return nil
			}

			// Folders are oldest first
			keep := folders[0]
			if len(defaults) > 1 {
				keep = defaults[0]
			}

			err = tx.Favorites.SetDefault(ctx, ownerID, keep.ID)
			if err != nil {
				return err
			}
			fixed = append(fixed, ownerID)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fix favorites for %s: %w", ownerID, err)
		}
	}
	result.UsersFixed = len(fixed)

	slog.Info("favorite defaults fixed", "users_scanned", result.UsersScanned, "users_fixed", result.UsersFixed)

	err = s.store.Logs.Create(ctx, model.MaintenanceFavoritesFix, map[string]any{
		"usersScanned": result.UsersScanned,
		"usersFixed":   result.UsersFixed,
		"userIds":      fixed,
	}, s.now())
	if err != nil {
		slog.Error("failed to write maintenance log", "type", model.MaintenanceFavoritesFix, "error", err)
	}

	return result, nil
}
