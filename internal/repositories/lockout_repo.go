package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/farmguard/internal/database"
	"github.com/BradenHooton/farmguard/internal/models"
)

// LockoutRepository persists account lockouts. The partial unique index on
// (user_id) WHERE active guarantees a single active lockout; CreateActive
// also serialises on the user row so concurrent lockers agree on one record.
type LockoutRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db, pool: db.Pool}
}

const lockoutColumns = `id, user_id, ip_address, failed_attempt_count, locked_at, unlocked_at, unlocked_by, active`

func scanLockoutRow(row rowScanner) (*models.AccountLockout, error) {
	var l models.AccountLockout
	err := row.Scan(
		&l.ID, &l.UserID, &l.IPAddress, &l.FailedAttemptCount,
		&l.LockedAt, &l.UnlockedAt, &l.UnlockedBy, &l.Active,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &l, nil
}

// GetActive returns the user's active lockout, or nil when there is none.
func (r *LockoutRepository) GetActive(ctx context.Context, userID string) (*models.AccountLockout, error) {
	query := `SELECT ` + lockoutColumns + ` FROM account_lockouts WHERE user_id = $1 AND active`

	lockout, err := scanLockoutRow(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return lockout, err
}

// CreateActive inserts an active lockout unless one already exists, in which
// case the existing row is returned with created=false.
func (r *LockoutRepository) CreateActive(ctx context.Context, lockout *models.AccountLockout) (*models.AccountLockout, bool, error) {
	var (
		result  *models.AccountLockout
		created bool
	)

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, lockout.UserID); err != nil {
			return database.MapPostgresError(err)
		}

		existing, err := scanLockoutRow(tx.QueryRow(ctx,
			`SELECT `+lockoutColumns+` FROM account_lockouts WHERE user_id = $1 AND active`, lockout.UserID))
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		query := `
			INSERT INTO account_lockouts (user_id, ip_address, failed_attempt_count, locked_at, active)
			VALUES ($1, $2, $3, $4, TRUE)
			RETURNING ` + lockoutColumns
		inserted, err := scanLockoutRow(tx.QueryRow(ctx, query,
			lockout.UserID, lockout.IPAddress, lockout.FailedAttemptCount, lockout.LockedAt,
		))
		if err != nil {
			return err
		}
		result, created = inserted, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create lockout: %w", err)
	}
	return result, created, nil
}

// Deactivate unlocks a lockout. It reports false when the lockout was
// already inactive.
func (r *LockoutRepository) Deactivate(ctx context.Context, id string, at time.Time, by *string) (bool, error) {
	query := `
		UPDATE account_lockouts
		SET active = FALSE, unlocked_at = $2, unlocked_by = $3
		WHERE id = $1 AND active
	`
	tag, err := r.pool.Exec(ctx, query, id, at, by)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeactivateLockedBefore unlocks every active lockout placed before cutoff.
func (r *LockoutRepository) DeactivateLockedBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	query := `
		UPDATE account_lockouts
		SET active = FALSE, unlocked_at = $2, unlocked_by = 'expiry'
		WHERE active AND locked_at <= $1
	`
	tag, err := r.pool.Exec(ctx, query, cutoff, at)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// ListActive returns active lockouts, newest first.
func (r *LockoutRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.AccountLockout, error) {
	query := `SELECT ` + lockoutColumns + ` FROM account_lockouts WHERE active ORDER BY locked_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanLockoutRows(rows)
}

func scanLockoutRows(rows pgx.Rows) ([]*models.AccountLockout, error) {
	defer rows.Close()

	lockouts := make([]*models.AccountLockout, 0)
	for rows.Next() {
		l, err := scanLockoutRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lockout: %w", err)
		}
		lockouts = append(lockouts, l)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return lockouts, nil
}
