package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BradenHooton/farmguard/internal/auth"
	"github.com/BradenHooton/farmguard/internal/handlers"
	"github.com/BradenHooton/farmguard/internal/metrics"
	"github.com/BradenHooton/farmguard/internal/middleware"
	"github.com/BradenHooton/farmguard/internal/models"
	"github.com/BradenHooton/farmguard/internal/services"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
)

// Handlers groups the HTTP handlers mounted under /api/v1.
type Handlers struct {
	Auth           *handlers.AuthHandler
	APIKeys        *handlers.APIKeyHandler
	Uploads        *handlers.UploadHandler
	SecurityEvents *handlers.SecurityEventHandler
	Admin          *handlers.AdminHandler
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options configures the router.
type Options struct {
	Env                    string
	AllowedOrigins         []string
	FloodRequestsPerSecond int
	MaxBodyBytes           int64
	RequestTimeout         time.Duration
	SlowRequestThreshold   time.Duration
}

// Dependencies is everything the router wires together.
type Dependencies struct {
	Handlers     Handlers
	TokenManager *auth.TokenManager
	APIKeys      auth.APIKeyAuthenticator
	Users        auth.UserRepository
	RateLimiter  middleware.RateLimiter
	Screener     middleware.InputScreener
	Events       services.EventRecorder
	Resolver     *pkghttp.IPResolver
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	HealthChecks map[string]HealthCheck
	Logger       *slog.Logger
}

// NewRouter builds the full middleware chain and registers every route.
func NewRouter(deps Dependencies, opts Options) chi.Router {
	if opts.SlowRequestThreshold <= 0 {
		opts.SlowRequestThreshold = middleware.DefaultSlowRequestThreshold
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.SecureLogger(deps.Logger, deps.Metrics))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: opts.Env}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(opts.AllowedOrigins)))
	if opts.FloodRequestsPerSecond > 0 {
		router.Use(middleware.FloodGuard(opts.FloodRequestsPerSecond, deps.Resolver))
	}
	router.Use(middleware.SuspiciousRequestMonitor(deps.Events, deps.Resolver, opts.SlowRequestThreshold, deps.Logger))
	if opts.RequestTimeout > 0 {
		router.Use(chimiddleware.Timeout(opts.RequestTimeout))
	}
	router.Use(auth.Identify(deps.TokenManager, deps.APIKeys))
	router.Use(middleware.RateLimit(deps.RateLimiter, deps.Resolver, deps.Logger))
	router.Use(auth.RejectInvalidCredentials)
	router.Use(middleware.InputValidation(deps.Screener, deps.Resolver, opts.MaxBodyBytes, deps.Logger))

	router.Get("/health", healthHandler(deps.HealthChecks))
	if deps.Gatherer != nil {
		router.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	router.Route("/api/v1", func(r chi.Router) {
		RegisterRoutes(r, deps.Handlers, deps.Users)
	})

	return router
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, userRepo auth.UserRepository) {
	// Public routes - no authentication required
	router.Post("/auth/login", h.Auth.Login)
	router.Post("/auth/refresh", h.Auth.RefreshToken)
	router.Post("/auth/password-strength", h.Auth.PasswordStrength)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.With(auth.RequirePermission(models.PermUploadsWrite)).Post("/uploads/{category}", h.Uploads.Upload)

		// Key management is only reachable with a user token
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireTokenAuth)
			r.Post("/api-keys", h.APIKeys.CreateAPIKey)
			r.Get("/api-keys", h.APIKeys.ListAPIKeys)
			r.Delete("/api-keys/{id}", h.APIKeys.RevokeAPIKey)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireTokenAuth)
			r.Use(auth.RequireRole(userRepo, models.RoleAdmin))
			r.Get("/security/events", h.SecurityEvents.ListEvents)
			r.Get("/security/events/{id}", h.SecurityEvents.GetEvent)
			r.Post("/security/events/{id}/resolve", h.SecurityEvents.ResolveEvent)
			r.Get("/security/lockouts", h.Admin.ListLockouts)
			r.Post("/security/lockouts/{userID}/unlock", h.Admin.UnlockAccount)
		})
	})
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "healthy"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body[name] = "down"
				continue
			}
			body[name] = "up"
		}

		pkghttp.WriteJSON(w, status, body)
	}
}
