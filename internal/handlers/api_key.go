package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/farmguard/internal/auth"
	"github.com/BradenHooton/farmguard/internal/models"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

// APIKeyServiceInterface defines the interface for API key operations
type APIKeyServiceInterface interface {
	CreateAPIKey(ctx context.Context, userID, role, name string, permissions []string, expiresAt *time.Time) (*models.GeneratedAPIKey, error)
	ListUserKeys(ctx context.Context, userID string, limit, offset int) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, userID, role, keyID string) error
}

// APIKeyHandler handles API key HTTP requests
type APIKeyHandler struct {
	service APIKeyServiceInterface
	logger  *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler
func NewAPIKeyHandler(service APIKeyServiceInterface, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		service: service,
		logger:  logger,
	}
}

// CreateAPIKeyRequest represents the request to create an API key
type CreateAPIKeyRequest struct {
	Name        string     `json:"name" validate:"required,min=1,max=255"`
	Permissions []string   `json:"permissions" validate:"required,min=1,dive,required"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// CreateAPIKeyResponse includes the plaintext key, shown exactly once
type CreateAPIKeyResponse struct {
	Key     string         `json:"key"`
	Message string         `json:"message"`
	APIKey  *models.APIKey `json:"api_key"`
}

// ListAPIKeysResponse represents the response for listing API keys
type ListAPIKeysResponse struct {
	Keys   []*models.APIKey `json:"keys"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// CreateAPIKey POST /api-keys
func (h *APIKeyHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateAPIKeyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	generated, err := h.service.CreateAPIKey(r.Context(), principal.UserID, principal.Role, req.Name, req.Permissions, req.ExpiresAt)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, CreateAPIKeyResponse{
		Key:     generated.PlainKey,
		Message: "Save this API key - it will not be shown again",
		APIKey:  generated.APIKey,
	})
}

// ListAPIKeys GET /api-keys
func (h *APIKeyHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit, offset, err := parsePagination(r, 20, 100)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	keys, err := h.service.ListUserKeys(r.Context(), principal.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListAPIKeysResponse{
		Keys:   keys,
		Total:  len(keys),
		Limit:  limit,
		Offset: offset,
	})
}

// RevokeAPIKey DELETE /api-keys/{id}
func (h *APIKeyHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	keyID := chi.URLParam(r, "id")
	if keyID == "" {
		pkghttp.WriteBadRequest(w, "Invalid key id")
		return
	}

	if err := h.service.RevokeAPIKey(r.Context(), principal.UserID, principal.Role, keyID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
