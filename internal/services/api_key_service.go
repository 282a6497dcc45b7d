package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/farmguard/internal/auth"
	"github.com/BradenHooton/farmguard/internal/models"
	"github.com/BradenHooton/farmguard/internal/repositories"
)

// APIKeyService handles API key business logic
type APIKeyService struct {
	repo       repositories.APIKeyRepository
	keyManager *auth.APIKeyManager
	events     EventRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewAPIKeyService creates a new APIKeyService
func NewAPIKeyService(repo repositories.APIKeyRepository, keyManager *auth.APIKeyManager, events EventRecorder, logger *slog.Logger) *APIKeyService {
	return &APIKeyService{
		repo:       repo,
		keyManager: keyManager,
		events:     events,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateAPIKey generates a new API key for a user. The plaintext key is
// returned once and never stored.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, userID, role, name string, permissions []string, expiresAt *time.Time) (*models.GeneratedAPIKey, error) {
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return nil, models.ErrBadRequest
	}
	if err := models.ValidatePermissions(permissions); err != nil {
		return nil, err
	}
	for _, perm := range permissions {
		if !models.CanRoleGrant(role, perm) {
			return nil, fmt.Errorf("%w: role %s cannot grant %s", models.ErrForbidden, role, perm)
		}
	}

	now := s.now()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiry must be in the future", models.ErrBadRequest)
	}

	plainKey, keyHash, err := s.keyManager.GenerateAPIKey()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate api key", slog.Any("error", err))
		return nil, err
	}

	apiKey := &models.APIKey{
		ID:          uuid.New().String(),
		UserID:      userID,
		KeyHash:     keyHash,
		KeyPrefix:   s.keyManager.DisplayPrefix(plainKey),
		Name:        name,
		Permissions: permissions,
		Active:      true,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, apiKey); err != nil {
		s.logger.ErrorContext(ctx, "failed to create api key", slog.Any("error", err))
		return nil, err
	}

	err = s.events.LogEvent(ctx, &models.SecurityEvent{
		UserID:      &userID,
		EventType:   models.EventAPIKeyCreated,
		Severity:    models.SeverityLow,
		Description: "API key created",
		Metadata: models.EventMetadata{
			"key_id":      apiKey.ID,
			"key_prefix":  apiKey.KeyPrefix,
			"permissions": permissions,
		},
	})
	if err != nil {
		return nil, err
	}

	return &models.GeneratedAPIKey{
		PlainKey: plainKey,
		APIKey:   apiKey,
	}, nil
}

// AuthenticateAPIKey resolves a presented key. Unknown, inactive and
// expired keys yield models.ErrUnauthorized; store failures are returned
// as they are. last_used is written before the key is accepted.
func (s *APIKeyService) AuthenticateAPIKey(ctx context.Context, plainKey string) (*models.APIKey, error) {
	keyHash, err := s.keyManager.HashAPIKey(plainKey)
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	apiKey, err := s.repo.GetByHash(ctx, keyHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		s.logger.ErrorContext(ctx, "failed to look up api key", slog.Any("error", err))
		return nil, fmt.Errorf("look up api key: %w", err)
	}

	now := s.now()
	if !auth.ConstantTimeHashCompare(apiKey.KeyHash, keyHash) || !apiKey.IsUsable(now) {
		return nil, models.ErrUnauthorized
	}

	if err := s.repo.UpdateLastUsed(ctx, apiKey.ID, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to update api key last_used_at",
			slog.String("key_id", apiKey.ID),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("update api key usage: %w", err)
	}
	apiKey.LastUsedAt = &now

	return apiKey, nil
}

// ListUserKeys returns all API keys for a user
func (s *APIKeyService) ListUserKeys(ctx context.Context, userID string, limit, offset int) ([]*models.APIKey, error) {
	if userID == "" {
		return nil, models.ErrBadRequest
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	apiKeys, err := s.repo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list api keys", slog.Any("error", err))
		return nil, err
	}

	for _, key := range apiKeys {
		if key.Permissions == nil {
			key.Permissions = []string{}
		}
	}

	return apiKeys, nil
}

// RevokeAPIKey deactivates a key. Owners may revoke their own keys and
// admins any key. Revoking an inactive key is a no-op.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, userID, role, keyID string) error {
	if userID == "" || keyID == "" {
		return models.ErrBadRequest
	}

	apiKey, err := s.repo.GetByID(ctx, keyID)
	if err != nil {
		return err
	}

	if apiKey.UserID != userID && role != models.RoleAdmin {
		return models.ErrForbidden
	}

	if !apiKey.Active {
		return nil
	}

	if err := s.repo.Deactivate(ctx, keyID, s.now()); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke api key", slog.Any("error", err))
		return err
	}

	return s.events.LogEvent(ctx, &models.SecurityEvent{
		UserID:      &apiKey.UserID,
		EventType:   models.EventAPIKeyRevoked,
		Severity:    models.SeverityLow,
		Description: "API key revoked",
		Metadata: models.EventMetadata{
			"key_id":     keyID,
			"key_prefix": apiKey.KeyPrefix,
			"revoked_by": userID,
		},
	})
}

// DeactivateExpiredKeys flips active=false on keys past their expiry.
func (s *APIKeyService) DeactivateExpiredKeys(ctx context.Context) (int64, error) {
	rowsAffected, err := s.repo.DeactivateExpired(ctx, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to deactivate expired api keys", slog.Any("error", err))
		return 0, fmt.Errorf("deactivate expired keys: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.InfoContext(ctx, "deactivated expired api keys", slog.Int64("rows_affected", rowsAffected))
	}

	return rowsAffected, nil
}
