package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/BradenHooton/farmguard/internal/database"
	"github.com/BradenHooton/farmguard/internal/models"
)

// APIKeyRepositoryImpl implements APIKeyRepository
type APIKeyRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepository(db *database.DB) APIKeyRepository {
	return &APIKeyRepositoryImpl{pool: db.Pool}
}

const apiKeyColumns = `id, user_id, key_hash, key_prefix, name, permissions, active, last_used_at, expires_at, created_at, updated_at`

func scanAPIKeyRow(row rowScanner) (*models.APIKey, error) {
	var k models.APIKey
	err := row.Scan(
		&k.ID, &k.UserID, &k.KeyHash, &k.KeyPrefix, &k.Name,
		pq.Array(&k.Permissions), &k.Active, &k.LastUsedAt, &k.ExpiresAt,
		&k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &k, nil
}

func scanAPIKeyRows(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	keys := make([]*models.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return keys, nil
}

func (r *APIKeyRepositoryImpl) Create(ctx context.Context, k *models.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, name, permissions, active, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		k.ID, k.UserID, k.KeyHash, k.KeyPrefix, k.Name,
		pq.Array(k.Permissions), k.Active, k.ExpiresAt, k.CreatedAt, k.UpdatedAt,
	)
	return database.MapPostgresError(err)
}

func (r *APIKeyRepositoryImpl) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`
	return scanAPIKeyRow(r.pool.QueryRow(ctx, query, keyHash))
}

func (r *APIKeyRepositoryImpl) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return scanAPIKeyRow(r.pool.QueryRow(ctx, query, id))
}

func (r *APIKeyRepositoryImpl) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanAPIKeyRows(rows)
}

func (r *APIKeyRepositoryImpl) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	return database.MapPostgresError(err)
}

func (r *APIKeyRepositoryImpl) Deactivate(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_keys SET active = FALSE, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *APIKeyRepositoryImpl) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE api_keys SET active = FALSE, updated_at = $1 WHERE active AND expires_at IS NOT NULL AND expires_at <= $1`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
