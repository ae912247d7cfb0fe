package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// inChunkSize keeps IN (...) lists well under SQLite's bound-parameter limit.
const inChunkSize = 500

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type Queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Store groups the repositories so a service can run several of them in one transaction.
type Store struct {
	db *sqlx.DB
	tx *sqlx.Tx

	Files     FileRepository
	Users     UserRepository
	Favorites FavoriteRepository
	Logs      MaintenanceLogRepository
}

func NewStore(db *sqlx.DB) *Store {
	return newStore(db, nil, db)
}

func newStore(db *sqlx.DB, tx *sqlx.Tx, q Queryer) *Store {
	return &Store{
		db:        db,
		tx:        tx,
		Files:     NewFileRepository(q),
		Users:     NewUserRepository(q),
		Favorites: NewFavoriteRepository(q),
		Logs:      NewMaintenanceLogRepository(q),
	}
}

// InTx runs fn with repositories bound to a single transaction. The transaction is
// committed when fn returns nil and rolled back otherwise. Nested calls reuse the
// outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(newStore(s.db, tx, tx))
	if err != nil {
		rbErr := tx.Rollback()
		if rbErr != nil {
			slog.Error("failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation works for both SQLite and PostgreSQL.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value")
}

// chunks splits ids into slices of at most inChunkSize.
func chunks(ids []string) [][]string {
	var out [][]string
	for len(ids) > inChunkSize {
		out = append(out, ids[:inChunkSize])
		ids = ids[inChunkSize:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// execIn runs query (written with ? placeholders and one IN (?)) for every chunk of
// ids and returns the total number of affected rows.
func execIn(ctx context.Context, q Queryer, query string, ids []string, args ...any) (int64, error) {
	var total int64
	for _, chunk := range chunks(ids) {
		expanded, inArgs, err := sqlx.In(query, append(append([]any{}, args...), chunk)...)
		if err != nil {
			return total, err
		}
		result, err := q.ExecContext(ctx, q.Rebind(expanded), inArgs...)
		if err != nil {
			return total, err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return total, err
		}
		total += rows
	}
	return total, nil
}
