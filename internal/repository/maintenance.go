package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/templui/cloudbox/internal/model"
)

type MaintenanceLogRepository interface {
	Create(ctx context.Context, logType string, details any, at time.Time) error
	List(ctx context.Context, logType string, limit int) ([]*model.MaintenanceLog, error)
}

type maintenanceLogRepository struct {
	db Queryer
}

func NewMaintenanceLogRepository(db Queryer) MaintenanceLogRepository {
	return &maintenanceLogRepository{db: db}
}

// Create appends a log entry; details is stored as JSON.
func (r *maintenanceLogRepository) Create(ctx context.Context, logType string, details any, at time.Time) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode maintenance details: %w", err)
	}

	query := `INSERT INTO maintenance_logs (id, type, details, created_at) VALUES ($1, $2, $3, $4)`
	_, err = r.db.ExecContext(ctx, query, uuid.New().String(), logType, string(raw), at)
	return err
}

// List returns the newest entries of a type first.
func (r *maintenanceLogRepository) List(ctx context.Context, logType string, limit int) ([]*model.MaintenanceLog, error) {
	logs := []*model.MaintenanceLog{}
	query := `SELECT * FROM maintenance_logs WHERE type = $1 ORDER BY created_at DESC, id ASC LIMIT $2`

	err := r.db.SelectContext(ctx, &logs, query, logType, limit)
	if err != nil {
		return nil, err
	}
	return logs, nil
}
