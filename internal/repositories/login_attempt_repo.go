package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BradenHooton/farmguard/internal/database"
	"github.com/BradenHooton/farmguard/internal/models"
)

// LoginAttemptRepository handles database operations for login attempts.
// Rows are append-only; the only delete is the retention purge.
type LoginAttemptRepository struct {
	db *database.DB
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record inserts an attempt and fills in its id and timestamp.
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (user_id, email, ip_address, user_agent, outcome, failure_reason, attempt_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	if attempt.AttemptTime.IsZero() {
		attempt.AttemptTime = time.Now()
	}

	err := r.db.Pool.QueryRow(ctx, query,
		attempt.UserID,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Outcome,
		attempt.FailureReason,
		attempt.AttemptTime,
	).Scan(&attempt.ID)

	return database.MapPostgresError(err)
}

// CountFailedByEmailSince counts failed attempts for an email strictly after since.
func (r *LoginAttemptRepository) CountFailedByEmailSince(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND outcome = 'failed' AND attempt_time > $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// CountFailedByIPSince counts failed attempts from an address strictly after since.
func (r *LoginAttemptRepository) CountFailedByIPSince(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE ip_address = $1 AND outcome = 'failed' AND attempt_time > $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// GetLastSuccessTime returns the most recent successful login, or nil.
func (r *LoginAttemptRepository) GetLastSuccessTime(ctx context.Context, email string) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM login_attempts
		WHERE email = $1 AND outcome = 'success'
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	var successTime time.Time
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(&successTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &successTime, nil
}

// DeleteOlderThan purges attempts recorded before cutoff.
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE attempt_time < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
