package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/repository"
	"github.com/templui/cloudbox/internal/storage"
	"golang.org/x/sync/errgroup"
)

// blobDeleteConcurrency bounds parallel blob deletes in one run.
const blobDeleteConcurrency = 8

type CleanupOptions struct {
	Retention        time.Duration
	MaxFilesPerRun   int
	MaxFoldersPerRun int
	MaxPurgeAttempts int
	LogEnabled       bool
}

type CleanupResult struct {
	DeletedFiles   int   `json:"deletedFiles"`
	DeletedFolders int   `json:"deletedFolders"`
	DeletedRecords int   `json:"deletedRecords"`
	ErrorCount     int   `json:"errorCount"`
	Duration       int64 `json:"duration"` // milliseconds
	DryRun         bool  `json:"dryRun,omitempty"`
}

// CleanupService purges soft-deleted nodes once they leave the retention window.
// A file row is removed only after its blob is confirmed gone.
type CleanupService struct {
	store   *repository.Store
	storage storage.Storage
	opts    CleanupOptions
	now     func() time.Time
	running sync.Mutex
}

func NewCleanupService(store *repository.Store, storage storage.Storage, opts CleanupOptions) *CleanupService {
	return &CleanupService{
		store:   store,
		storage: storage,
		opts:    opts,
		now:     now,
	}
}

type deadLetter struct {
	FileID     string `json:"fileId"`
	OwnerID    string `json:"ownerId"`
	StorageKey string `json:"storageKey"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error"`
}

// Run performs one bounded cleanup pass. Blob failures are counted, never fatal.
// With dryRun nothing is touched and the result reports what would be purged.
func (s *CleanupService) Run(ctx context.Context, dryRun bool) (*CleanupResult, error) {
	if !s.running.TryLock() {
		return nil, newError(ErrConflict, "cleanup is already running")
	}
	defer s.running.Unlock()

	start := time.Now()
	retentionDate := s.now().Add(-s.opts.Retention)
	result := &CleanupResult{DryRun: dryRun}

	files, err := s.store.Files.ExpiredFiles(ctx, retentionDate, s.opts.MaxFilesPerRun)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired files: %w", err)
	}

	if dryRun {
		folders, err := s.store.Files.ExpiredFolders(ctx, retentionDate, s.opts.MaxFoldersPerRun)
		if err != nil {
			return nil, fmt.Errorf("failed to select expired folders: %w", err)
		}
		result.DeletedFiles = len(files)
		result.DeletedFolders = len(folders)
		result.DeletedRecords = len(files) + len(folders)
		result.Duration = time.Since(start).Milliseconds()
		return result, nil
	}

	blobErrs := s.deleteBlobs(ctx, files)

	var purge, retry []string
	var dead []deadLetter
	for i, f := range files {
		if blobErrs[i] == nil {
			purge = append(purge, f.ID)
			result.DeletedFiles++
			continue
		}

		result.ErrorCount++
		attempts := f.PurgeAttempts + 1
		if attempts >= s.opts.MaxPurgeAttempts {
			purge = append(purge, f.ID)
			dead = append(dead, deadLetter{
				FileID:     f.ID,
				OwnerID:    f.OwnerID,
				StorageKey: f.StorageKey,
				Attempts:   attempts,
				Error:      blobErrs[i].Error(),
			})
			continue
		}
		retry = append(retry, f.ID)
	}

	err = s.store.InTx(ctx, func(tx *repository.Store) error {
		if len(retry) > 0 {
			err := tx.Files.IncrementPurgeAttempts(ctx, retry)
			if err != nil {
				return fmt.Errorf("failed to record purge attempts: %w", err)
			}
		}

		n, err := tx.Files.HardDelete(ctx, purge)
		if err != nil {
			return fmt.Errorf("failed to purge files: %w", err)
		}
		result.DeletedRecords += int(n)

		for _, d := range dead {
			slog.Error("blob purge gave up, row removed", "file_id", d.FileID, "storage_key", d.StorageKey, "attempts", d.Attempts, "error", d.Error)
			err = tx.Logs.Create(ctx, model.MaintenancePurgeDeadLetter, d, s.now())
			if err != nil {
				return fmt.Errorf("failed to write dead letter: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	folders, err := s.purgeFolders(ctx, retentionDate)
	if err != nil {
		return nil, err
	}
	result.DeletedFolders = folders
	result.DeletedRecords += folders
	result.Duration = time.Since(start).Milliseconds()

	slog.Info("cleanup finished",
		"deleted_files", result.DeletedFiles,
		"deleted_folders", result.DeletedFolders,
		"deleted_records", result.DeletedRecords,
		"error_count", result.ErrorCount,
		"duration_ms", result.Duration,
	)

	if s.opts.LogEnabled {
		err = s.store.Logs.Create(ctx, model.MaintenanceCleanup, result, s.now())
		if err != nil {
			slog.Error("failed to write maintenance log", "type", model.MaintenanceCleanup, "error", err)
		}
	}

	return result, nil
}

// deleteBlobs removes each file's blob with bounded parallelism. A blob that is
// already gone counts as deleted. The returned slice is indexed like files.
func (s *CleanupService) deleteBlobs(ctx context.Context, files []*model.FileNode) []error {
	errs := make([]error, len(files))

	g := new(errgroup.Group)
	g.SetLimit(blobDeleteConcurrency)
	for i, f := range files {
		if f.StorageKey == "" {
			continue
		}
		g.Go(func() error {
			err := s.storage.Delete(ctx, f.StorageKey)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				slog.Warn("failed to delete blob", "file_id", f.ID, "storage_key", f.StorageKey, "error", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

// purgeFolders removes expired folders deepest first, skipping any folder that
// still has rows pointing at it.
func (s *CleanupService) purgeFolders(ctx context.Context, retentionDate time.Time) (int, error) {
	folders, err := s.store.Files.ExpiredFolders(ctx, retentionDate, s.opts.MaxFoldersPerRun)
	if err != nil {
		return 0, fmt.Errorf("failed to select expired folders: %w", err)
	}

	deleted := 0
	for _, folder := range folders {
		err = s.store.InTx(ctx, func(tx *repository.Store) error {
			children, err := tx.Files.CountChildren(ctx, folder.ID)
			if err != nil {
				return err
			}
			if children > 0 {
				return nil
			}
			n, err := tx.Files.HardDelete(ctx, []string{folder.ID})
			if err != nil {
				return err
			}
			deleted += int(n)
			return nil
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to purge folder %s: %w", folder.ID, err)
		}
	}

	return deleted, nil
}
