package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/farmguard/internal/models"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

func TestSuspiciousRequestMonitor(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		userAgent  string
		wantReason string
	}{
		{"ordinary request", "/api/v1/products", "Mozilla/5.0", ""},
		{"scanner agent", "/api/v1/products", "sqlmap/1.7.2#stable", "scanner_user_agent"},
		{"env probe", "/.env", "curl/8.0", "probe_path"},
		{"wordpress probe", "/wp-admin/install.php", "curl/8.0", "probe_path"},
		{"query probe", "/api/v1/products?id=1+union+all", "curl/8.0", "probe_query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &recordingEvents{}
			handler := SuspiciousRequestMonitor(events, pkghttp.NewIPResolver(nil), DefaultSlowRequestThreshold, discardLogger())(okHandler())

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set("User-Agent", tt.userAgent)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			if tt.wantReason == "" {
				assert.Empty(t, events.events)
				return
			}
			require.Len(t, events.events, 1)
			assert.Equal(t, models.EventSuspiciousActivity, events.events[0].EventType)
			assert.Equal(t, models.SeverityMedium, events.events[0].Severity)
			assert.Equal(t, tt.wantReason, events.events[0].Metadata["reason"])
		})
	}
}

func TestSuspiciousRequestMonitor_SlowRequest(t *testing.T) {
	events := &recordingEvents{}
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
	})
	handler := SuspiciousRequestMonitor(events, pkghttp.NewIPResolver(nil), 5*time.Millisecond, discardLogger())(slow)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/messaging", nil))

	require.Len(t, events.events, 1)
	assert.Equal(t, "slow_request", events.events[0].Metadata["reason"])
}

func TestSuspiciousRequestMonitor_NeverBlocks(t *testing.T) {
	events := &recordingEvents{err: assert.AnError}
	handler := SuspiciousRequestMonitor(events, pkghttp.NewIPResolver(nil), DefaultSlowRequestThreshold, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/.git/config", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
