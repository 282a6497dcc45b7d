package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/farmguard/internal/models"
)

// APIKeyRepository defines the interface for API key data access operations
type APIKeyRepository interface {
	Create(ctx context.Context, apiKey *models.APIKey) error

	// GetByHash retrieves a key by its hash regardless of state; callers
	// decide usability.
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)

	GetByID(ctx context.Context, id string) (*models.APIKey, error)

	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.APIKey, error)

	UpdateLastUsed(ctx context.Context, id string, at time.Time) error

	// Deactivate sets active=false. Keys are never deleted.
	Deactivate(ctx context.Context, id string, at time.Time) error

	// DeactivateExpired flips active=false on keys whose expiry has passed.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}
