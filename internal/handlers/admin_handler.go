package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/farmguard/internal/auth"
	"github.com/BradenHooton/farmguard/internal/services"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

// AdminServiceInterface defines the lockout dashboard contract.
type AdminServiceInterface interface {
	ListActiveLockouts(ctx context.Context, limit, offset int) ([]services.LockoutView, error)
}

// AccountUnlocker lifts an account lockout.
type AccountUnlocker interface {
	UnlockAccount(ctx context.Context, userID, actor string) (bool, error)
}

// AdminHandler handles admin lockout HTTP requests.
type AdminHandler struct {
	service  AdminServiceInterface
	unlocker AccountUnlocker
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface, unlocker AccountUnlocker, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service:  service,
		unlocker: unlocker,
		logger:   logger,
	}
}

// ListLockoutsResponse wraps a page of active lockouts.
type ListLockoutsResponse struct {
	Lockouts []services.LockoutView `json:"lockouts"`
	Limit    int                    `json:"limit"`
	Offset   int                    `json:"offset"`
}

// UnlockResponse reports whether a lockout was lifted.
type UnlockResponse struct {
	UserID   string `json:"user_id"`
	Unlocked bool   `json:"unlocked"`
}

// ListLockouts handles GET /security/lockouts
// Accepts optional query params ?limit=N (1-100, default 20) and ?offset=N.
func (h *AdminHandler) ListLockouts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r, 20, 100)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	lockouts, err := h.service.ListActiveLockouts(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListLockoutsResponse{
		Lockouts: lockouts,
		Limit:    limit,
		Offset:   offset,
	})
}

// UnlockAccount handles POST /security/lockouts/{userID}/unlock
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	userID := chi.URLParam(r, "userID")
	unlocked, err := h.unlocker.UnlockAccount(r.Context(), userID, principal.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UnlockResponse{UserID: userID, Unlocked: unlocked})
}
