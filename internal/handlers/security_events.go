package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/farmguard/internal/auth"
	"github.com/BradenHooton/farmguard/internal/models"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

// SecurityEventServiceInterface is the read and resolve side of the event log
type SecurityEventServiceInterface interface {
	List(ctx context.Context, filter models.SecurityEventFilter) ([]*models.SecurityEvent, error)
	Get(ctx context.Context, id string) (*models.SecurityEvent, error)
	Resolve(ctx context.Context, id, resolvedBy string) (*models.SecurityEvent, error)
}

// SecurityEventHandler exposes the security event log to administrators
type SecurityEventHandler struct {
	service SecurityEventServiceInterface
	logger  *slog.Logger
}

func NewSecurityEventHandler(service SecurityEventServiceInterface, logger *slog.Logger) *SecurityEventHandler {
	return &SecurityEventHandler{service: service, logger: logger}
}

// ListSecurityEventsResponse wraps a page of events
type ListSecurityEventsResponse struct {
	Events []*models.SecurityEvent `json:"events"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// ListEvents handles GET /security/events
// Query params: severity, event_type, resolved (true|false), limit, offset.
func (h *SecurityEventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r, 50, 200)
	if err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	q := r.URL.Query()
	filter := models.SecurityEventFilter{
		Severity:  models.Severity(q.Get("severity")),
		EventType: q.Get("event_type"),
		Limit:     limit,
		Offset:    offset,
	}
	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid resolved parameter")
			return
		}
		filter.Resolved = &resolved
	}

	events, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if events == nil {
		events = []*models.SecurityEvent{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListSecurityEventsResponse{
		Events: events,
		Limit:  limit,
		Offset: offset,
	})
}

// GetEvent handles GET /security/events/{id}
func (h *SecurityEventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, event)
}

// ResolveEvent handles POST /security/events/{id}/resolve. Resolving an
// already-resolved event returns it unchanged.
func (h *SecurityEventHandler) ResolveEvent(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	event, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id"), principal.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, event)
}
