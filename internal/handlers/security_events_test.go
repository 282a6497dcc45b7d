package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/farmguard/internal/models"
)

func TestSecurityEventHandler_ListEvents(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		check      func(t *testing.T, filter models.SecurityEventFilter)
	}{
		{
			name:       "defaults",
			query:      "",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, f models.SecurityEventFilter) {
				assert.Equal(t, 50, f.Limit)
				assert.Equal(t, 0, f.Offset)
				assert.Nil(t, f.Resolved)
			},
		},
		{
			name:       "filters",
			query:      "?severity=high&event_type=account_locked&resolved=false&limit=10&offset=20",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, f models.SecurityEventFilter) {
				assert.Equal(t, models.SeverityHigh, f.Severity)
				assert.Equal(t, models.EventAccountLocked, f.EventType)
				require.NotNil(t, f.Resolved)
				assert.False(t, *f.Resolved)
				assert.Equal(t, 10, f.Limit)
				assert.Equal(t, 20, f.Offset)
			},
		},
		{name: "bad resolved", query: "?resolved=maybe", wantStatus: http.StatusBadRequest},
		{name: "limit too large", query: "?limit=201", wantStatus: http.StatusBadRequest},
		{name: "negative offset", query: "?offset=-1", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockSecurityEventService{ListFunc: func(_ context.Context, filter models.SecurityEventFilter) ([]*models.SecurityEvent, error) {
				if tt.check != nil {
					tt.check(t, filter)
				}
				return nil, nil
			}}
			handler := NewSecurityEventHandler(svc, testLogger())

			w := httptest.NewRecorder()
			handler.ListEvents(w, httptest.NewRequest(http.MethodGet, "/api/v1/security/events"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"events":[]`)
			}
		})
	}
}

func TestSecurityEventHandler_GetEvent(t *testing.T) {
	svc := &MockSecurityEventService{GetFunc: func(_ context.Context, id string) (*models.SecurityEvent, error) {
		if id == "evt-1" {
			return &models.SecurityEvent{ID: "evt-1", EventType: models.EventLoginFailed, Severity: models.SeverityLow}, nil
		}
		return nil, models.ErrNotFound
	}}
	handler := NewSecurityEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	handler.GetEvent(w, WithURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "evt-1"}))
	var event models.SecurityEvent
	AssertJSONResponse(t, w, http.StatusOK, &event)
	assert.Equal(t, models.EventLoginFailed, event.EventType)

	w = httptest.NewRecorder()
	handler.GetEvent(w, WithURLParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "evt-404"}))
	AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

func TestSecurityEventHandler_ResolveEvent(t *testing.T) {
	resolvedAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var gotBy string
	svc := &MockSecurityEventService{ResolveFunc: func(_ context.Context, id, resolvedBy string) (*models.SecurityEvent, error) {
		gotBy = resolvedBy
		return &models.SecurityEvent{ID: id, Resolved: true, ResolvedBy: &resolvedBy, ResolvedAt: &resolvedAt}, nil
	}}
	handler := NewSecurityEventHandler(svc, testLogger())

	req := WithURLParams(WithAuthContext(httptest.NewRequest(http.MethodPost, "/", nil), "admin-1", models.RoleAdmin), map[string]string{"id": "evt-1"})
	w := httptest.NewRecorder()
	handler.ResolveEvent(w, req)

	var event models.SecurityEvent
	AssertJSONResponse(t, w, http.StatusOK, &event)
	assert.True(t, event.Resolved)
	assert.Equal(t, "admin-1", gotBy)
}

func TestSecurityEventHandler_ResolveEventErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing", models.ErrNotFound, http.StatusNotFound},
		{"store down", models.ErrStoreUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockSecurityEventService{ResolveFunc: func(context.Context, string, string) (*models.SecurityEvent, error) {
				return nil, tt.err
			}}
			handler := NewSecurityEventHandler(svc, testLogger())

			req := WithURLParams(WithAuthContext(httptest.NewRequest(http.MethodPost, "/", nil), "admin-1", models.RoleAdmin), map[string]string{"id": "evt-1"})
			w := httptest.NewRecorder()
			handler.ResolveEvent(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
