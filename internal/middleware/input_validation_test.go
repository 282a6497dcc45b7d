package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/farmguard/internal/models"
	"github.com/BradenHooton/farmguard/internal/services"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
	err    error
}

func (r *recordingEvents) LogEvent(_ context.Context, event *models.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func newScreenedHandler(events *recordingEvents, next http.Handler) http.Handler {
	validator := services.NewInputValidator(services.InputValidatorConfig{
		ExemptFields: []string{"password", "refresh_token"},
	}, events, nil, discardLogger())
	return InputValidation(validator, pkghttp.NewIPResolver(nil), 1024, discardLogger())(next)
}

func TestInputValidation(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		wantStatus  int
		wantPaths   []string
	}{
		{"clean query", http.MethodGet, "/api/v1/products?q=tomatoes&page=2", "", "", http.StatusOK, nil},
		{"malicious query", http.MethodGet, "/api/v1/products?q=1%27%20OR%201%3D1", "", "", http.StatusBadRequest, []string{"query.q"}},
		{"clean json", http.MethodPost, "/api/v1/messaging", "application/json", `{"text":"Pickup at noon"}`, http.StatusOK, nil},
		{"nested json", http.MethodPost, "/api/v1/messaging", "application/json; charset=utf-8", `{"order":{"items":[{"notes":"<script>x</script>"}]}}`, http.StatusBadRequest, []string{"body.order.items[0].notes"}},
		{"credential fields exempt", http.MethodPost, "/api/v1/auth/login", "application/json", `{"email":"a@b.c","password":"pa--word#1 OR 1=1"}`, http.StatusOK, nil},
		{"invalid json passes through", http.MethodPost, "/api/v1/messaging", "application/json", `{"text": DROP`, http.StatusOK, nil},
		{"multipart skipped", http.MethodPost, "/api/v1/uploads/images", "multipart/form-data; boundary=x", "--x\r\n<script>\r\n--x--", http.StatusOK, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &recordingEvents{}
			handler := newScreenedHandler(events, okHandler())

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.target, body)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantPaths == nil {
				assert.Empty(t, events.events)
				return
			}

			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "Invalid input detected.", resp.Message)
			assert.NotContains(t, w.Body.String(), "script")

			require.Len(t, events.events, 1)
			assert.Equal(t, models.EventDataBreachAttempt, events.events[0].EventType)
			assert.Equal(t, tt.wantPaths, events.events[0].Metadata["paths"])
		})
	}
}

func TestInputValidation_BodyIsRestored(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		seen = string(raw)
	})
	handler := newScreenedHandler(&recordingEvents{}, next)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messaging", strings.NewReader(`{"text":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, `{"text":"hello"}`, seen)
}

func TestInputValidation_BodyTooLarge(t *testing.T) {
	handler := newScreenedHandler(&recordingEvents{}, okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messaging", strings.NewReader(`{"text":"`+strings.Repeat("a", 2048)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestInputValidation_EventStoreDown(t *testing.T) {
	handler := newScreenedHandler(&recordingEvents{err: errors.New("db down")}, okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/files?path=../../etc/passwd", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
