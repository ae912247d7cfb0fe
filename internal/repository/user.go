package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/templui/cloudbox/internal/model"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

type UserRepository interface {
	Ensure(ctx context.Context, user *model.User) error
	ByID(ctx context.Context, id string) (*model.User, error)
	IDs(ctx context.Context) ([]string, error)
	AddStorageUsed(ctx context.Context, id string, delta, defaultLimit int64) error
	SubtractStorageUsed(ctx context.Context, id string, delta int64) error
	SetStorageUsed(ctx context.Context, id string, used int64) error
	SetRole(ctx context.Context, id, role string) error
}

type userRepository struct {
	db Queryer
}

func NewUserRepository(db Queryer) UserRepository {
	return &userRepository{db: db}
}

// Ensure inserts the user unless a row with the same id exists. Existing rows keep
// their role, counters and limit.
func (r *userRepository) Ensure(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, email, role, storage_used, storage_limit, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.Role, user.StorageUsed, user.StorageLimit, user.CreatedAt)
	return err
}

func (r *userRepository) ByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, user, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

func (r *userRepository) IDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM users ORDER BY id`)
	return ids, err
}

// AddStorageUsed increments the counter only if the result stays within the user's
// limit (or defaultLimit when the user has none). The check and the write are one
// statement so concurrent uploads cannot both pass.
func (r *userRepository) AddStorageUsed(ctx context.Context, id string, delta, defaultLimit int64) error {
	query := `UPDATE users SET storage_used = storage_used + $1
	          WHERE id = $2
	            AND storage_used + $1 <= CASE WHEN storage_limit > 0 THEN storage_limit ELSE $3 END`

	result, err := r.db.ExecContext(ctx, query, delta, id, defaultLimit)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	_, err = r.ByID(ctx, id)
	if err != nil {
		return err
	}
	return ErrQuotaExceeded
}

// SubtractStorageUsed never lets the counter go below zero.
func (r *userRepository) SubtractStorageUsed(ctx context.Context, id string, delta int64) error {
	query := `UPDATE users
	          SET storage_used = CASE WHEN storage_used > $1 THEN storage_used - $1 ELSE 0 END
	          WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, delta, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *userRepository) SetStorageUsed(ctx context.Context, id string, used int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET storage_used = $1 WHERE id = $2`, used, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *userRepository) SetRole(ctx context.Context, id, role string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET role = $1 WHERE id = $2`, role, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}
