package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/farmguard/internal/database"
	"github.com/BradenHooton/farmguard/internal/models"
)

type RateLimitViolationRepository struct {
	pool *pgxpool.Pool
}

func NewRateLimitViolationRepository(db *database.DB) *RateLimitViolationRepository {
	return &RateLimitViolationRepository{pool: db.Pool}
}

// Upsert creates the violation row on first occurrence and increments its
// counter afterwards.
func (r *RateLimitViolationRepository) Upsert(ctx context.Context, identifier, endpoint, limitType string, at time.Time) (*models.RateLimitViolation, error) {
	query := `
		INSERT INTO rate_limit_violations (identifier, endpoint, limit_type, violation_count, first_violated_at, last_violated_at)
		VALUES ($1, $2, $3, 1, $4, $4)
		ON CONFLICT (identifier, endpoint, limit_type) DO UPDATE
		SET violation_count = rate_limit_violations.violation_count + 1,
		    last_violated_at = EXCLUDED.last_violated_at
		RETURNING id, identifier, endpoint, limit_type, violation_count, first_violated_at, last_violated_at
	`

	var v models.RateLimitViolation
	err := r.pool.QueryRow(ctx, query, identifier, endpoint, limitType, at).Scan(
		&v.ID, &v.Identifier, &v.Endpoint, &v.LimitType, &v.ViolationCount, &v.FirstViolatedAt, &v.LastViolatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record rate limit violation: %w", database.MapPostgresError(err))
	}
	return &v, nil
}
