package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/farmguard/internal/models"
	"github.com/BradenHooton/farmguard/internal/services"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

var scannerAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "nessus",
	"burp", "zap", "w3af", "havij", "pangolin",
}

var probePaths = []string{
	"/admin/", "/wp-admin", "/phpmyadmin", "/.env", "/.git",
	"/config/", "/backup/", "/test/", "/debug/",
}

var probeParams = []string{
	"union", "select", "drop", "insert", "update",
	"script", "alert", "eval", "exec",
}

// DefaultSlowRequestThreshold marks a request as a possible resource
// exhaustion attempt.
const DefaultSlowRequestThreshold = 10 * time.Second

// SuspiciousRequestMonitor records scanner traffic, probe paths and slow
// requests as medium suspicious_activity events. It never blocks.
func SuspiciousRequestMonitor(events services.EventRecorder, resolver *pkghttp.IPResolver, slowThreshold time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	report := func(ctx context.Context, event *models.SecurityEvent) {
		if err := events.LogEvent(ctx, event); err != nil {
			logger.ErrorContext(ctx, "failed to record suspicious request", slog.Any("error", err))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ip := resolver.ClientIP(r)

			if reason := suspiciousReason(r); reason != "" {
				report(r.Context(), &models.SecurityEvent{
					EventType:   models.EventSuspiciousActivity,
					Severity:    models.SeverityMedium,
					Description: "Suspicious request pattern detected",
					IPAddress:   ip,
					UserAgent:   r.UserAgent(),
					Metadata: models.EventMetadata{
						"reason":  reason,
						"path":    r.URL.Path,
						"method":  r.Method,
						"referer": r.Referer(),
					},
				})
			}

			next.ServeHTTP(w, r)

			if elapsed := time.Since(start); elapsed > slowThreshold {
				report(context.WithoutCancel(r.Context()), &models.SecurityEvent{
					EventType:   models.EventSuspiciousActivity,
					Severity:    models.SeverityMedium,
					Description: fmt.Sprintf("Slow request detected: %.2fs", elapsed.Seconds()),
					IPAddress:   ip,
					UserAgent:   r.UserAgent(),
					Metadata: models.EventMetadata{
						"reason":   "slow_request",
						"path":     r.URL.Path,
						"method":   r.Method,
						"duration": elapsed.Seconds(),
					},
				})
			}
		})
	}
}

func suspiciousReason(r *http.Request) string {
	agent := strings.ToLower(r.UserAgent())
	for _, s := range scannerAgents {
		if strings.Contains(agent, s) {
			return "scanner_user_agent"
		}
	}

	path := strings.ToLower(r.URL.Path)
	for _, p := range probePaths {
		if strings.Contains(path, p) {
			return "probe_path"
		}
	}

	query := strings.ToLower(r.URL.RawQuery)
	for _, p := range probeParams {
		if strings.Contains(query, p) {
			return "probe_query"
		}
	}

	return ""
}
