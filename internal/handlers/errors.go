package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/farmguard/internal/models"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

// writeServiceError maps service errors onto generic client responses.
// Store failures become 503 so callers can retry; anything unrecognised is
// logged and answered with 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrBadRequest), errors.Is(err, models.ErrMalformedInput):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication required")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Insufficient permissions")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInvalidTransition):
		pkghttp.WriteConflict(w, "Request conflicts with current state")
	case errors.Is(err, models.ErrStoreUnavailable):
		logger.ErrorContext(r.Context(), "backing store unavailable",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
