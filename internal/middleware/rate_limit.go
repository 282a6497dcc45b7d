package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/BradenHooton/farmguard/internal/auth"
	"github.com/BradenHooton/farmguard/internal/services"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

// exemptPaths are never counted against a budget.
var exemptPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// FloodGuard is a coarse per-IP requests-per-second shield that sits in
// front of the counter-based limiter and never touches the shared store.
func FloodGuard(requestsPerSecond int, resolver *pkghttp.IPResolver) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerSecond,
		time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return resolver.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded. Please try again later.")
		}),
	)
}

// RateLimiter decides whether a request is over budget
type RateLimiter interface {
	IsRateLimited(ctx context.Context, identifier, endpoint string, info services.RequestInfo) (bool, error)
}

// RateLimit applies the per-endpoint budgets. Authenticated callers are
// counted per user, everyone else (including callers presenting bad
// credentials) per client IP. It must run after auth.Identify so the
// principal is known, and before auth.RejectInvalidCredentials.
func RateLimit(limiter RateLimiter, resolver *pkghttp.IPResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			info := requestInfo(r, resolver)
			identifier := "ip:" + info.IPAddress
			if info.UserID != nil {
				identifier = "user:" + *info.UserID
			}

			limited, err := limiter.IsRateLimited(r.Context(), identifier, r.URL.Path, info)
			if err != nil {
				logger.ErrorContext(r.Context(), "rate limit check failed",
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
				pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
				return
			}
			if limited {
				w.Header().Set("Retry-After", "60")
				pkghttp.WriteTooManyRequests(w, "Rate limit exceeded. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestInfo collects the caller details recorded with security events.
func requestInfo(r *http.Request, resolver *pkghttp.IPResolver) services.RequestInfo {
	info := services.RequestInfo{
		IPAddress: resolver.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		userID := p.UserID
		info.UserID = &userID
	}
	return info
}
