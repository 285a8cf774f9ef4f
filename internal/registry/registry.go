// Package registry persists the users the bot has talked to.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/etf-team/tariffbot/core/logger"
)

// Repository stores users in the users table.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps db. Queries are rebound for the driver's placeholder style.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Upsert records the user and reports whether this is the first contact.
// A returning user gets the display name refreshed.
func (r *Repository) Upsert(ctx context.Context, userID int64, displayName string) (created bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("registry: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO users (user_id, display_name) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`,
	), userID, displayName)
	if err != nil {
		return false, fmt.Errorf("registry: insert user %d: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("registry: rows affected: %w", err)
	}
	created = affected == 1

	if !created {
		if _, err = tx.ExecContext(ctx, r.db.Rebind(
			`UPDATE users SET display_name = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		), displayName, userID); err != nil {
			return false, fmt.Errorf("registry: update user %d: %w", userID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("registry: commit: %w", err)
	}

	if created {
		logger.Info(ctx, "registry", "user.created", slog.Int64("user_id", userID))
	}
	return created, nil
}

// ListUserIDs returns every known user id in ascending order.
func (r *Repository) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM users ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("registry: list users: %w", err)
	}
	return ids, nil
}

// Count returns the number of known users.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("registry: count users: %w", err)
	}
	return n, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
