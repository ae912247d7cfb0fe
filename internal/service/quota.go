package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/repository"
)

// StorageService answers quota questions and repairs the cached usage counter.
type StorageService struct {
	store        *repository.Store
	defaultLimit int64
	now          func() time.Time
}

func NewStorageService(store *repository.Store, defaultLimit int64) *StorageService {
	return &StorageService{
		store:        store,
		defaultLimit: defaultLimit,
		now:          now,
	}
}

type ReconcileResult struct {
	UserID string `json:"userId"`
	Before int64  `json:"before"`
	After  int64  `json:"after"`
}

type ReconcileSummary struct {
	UsersScanned int                `json:"usersScanned"`
	UsersFixed   int                `json:"usersFixed"`
	Results      []*ReconcileResult `json:"results"`
}

func effectiveLimit(user *model.User, defaultLimit int64) int64 {
	if user.StorageLimit > 0 {
		return user.StorageLimit
	}
	return defaultLimit
}

// Stats sums the owner's active rows. It is the source of truth for usage.
func (s *StorageService) Stats(ctx context.Context, ownerID string) (*model.StorageStats, error) {
	stats, err := s.store.Files.Stats(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute storage stats: %w", err)
	}
	return stats, nil
}

func (s *StorageService) user(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.store.Users.ByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, newError(ErrNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// Quota reports the owner's limit and usage. A zero counter is treated as possibly
// stale: it is recomputed and the result written back.
func (s *StorageService) Quota(ctx context.Context, ownerID string) (*model.Quota, error) {
	user, err := s.user(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	total := effectiveLimit(user, s.defaultLimit)
	used := user.StorageUsed

	if used == 0 {
		stats, err := s.Stats(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if stats.UsedSize > 0 {
			used = stats.UsedSize
			err = s.store.Users.SetStorageUsed(ctx, ownerID, used)
			if err != nil {
				return nil, fmt.Errorf("failed to persist storage usage: %w", err)
			}
			slog.Warn("storage counter was stale", "user_id", ownerID, "used", used)
		}
	}

	return buildQuota(total, used), nil
}

func buildQuota(total, used int64) *model.Quota {
	q := &model.Quota{
		Total:     total,
		Used:      used,
		Available: max(0, total-used),
	}
	if total > 0 {
		pct := float64(used) / float64(total) * 100
		q.Percentage = math.Min(100, math.Round(pct*100)/100)
	}
	return q
}

// Reconcile rewrites the owner's counter from the live rows.
func (s *StorageService) Reconcile(ctx context.Context, userID string) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		user, err := tx.Users.ByID(ctx, userID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return newError(ErrNotFound, "user not found")
		}
		if err != nil {
			return err
		}

		stats, err := tx.Files.Stats(ctx, userID)
		if err != nil {
			return err
		}

		result = &ReconcileResult{UserID: userID, Before: user.StorageUsed, After: stats.UsedSize}
		if result.Before == result.After {
			return nil
		}
		return tx.Users.SetStorageUsed(ctx, userID, stats.UsedSize)
	})
	if err != nil {
		return nil, err
	}

	if result.Before != result.After {
		slog.Warn("storage usage reconciled", "user_id", userID, "before", result.Before, "after", result.After)
		err = s.store.Logs.Create(ctx, model.MaintenanceQuotaReconcile, result, s.now())
		if err != nil {
			slog.Error("failed to write maintenance log", "type", model.MaintenanceQuotaReconcile, "error", err)
		}
	}

	return result, nil
}

// ReconcileAll reconciles every user and reports only the ones that drifted.
func (s *StorageService) ReconcileAll(ctx context.Context) (*ReconcileSummary, error) {
	ids, err := s.store.Users.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	summary := &ReconcileSummary{Results: []*ReconcileResult{}}
	for _, id := range ids {
		result, err := s.Reconcile(ctx, id)
		if err != nil {
			return nil, err
		}
		summary.UsersScanned++
		if result.Before != result.After {
			summary.UsersFixed++
			summary.Results = append(summary.Results, result)
		}
	}

	return summary, nil
}
