package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/BradenHooton/farmguard/internal/auth"
	"github.com/BradenHooton/farmguard/internal/background"
	"github.com/BradenHooton/farmguard/internal/cache"
	"github.com/BradenHooton/farmguard/internal/config"
	"github.com/BradenHooton/farmguard/internal/database"
	"github.com/BradenHooton/farmguard/internal/handlers"
	"github.com/BradenHooton/farmguard/internal/metrics"
	"github.com/BradenHooton/farmguard/internal/models"
	"github.com/BradenHooton/farmguard/internal/repositories"
	"github.com/BradenHooton/farmguard/internal/routes"
	"github.com/BradenHooton/farmguard/internal/services"
	pkgauth "github.com/BradenHooton/farmguard/pkg/auth"
	pkghttp "github.com/BradenHooton/farmguard/pkg/http"
	pkglogger "github.com/BradenHooton/farmguard/pkg/logger"
)

// multipartOverhead is headroom above the largest file limit for the
// multipart envelope.
const multipartOverhead = 1 << 20

// App holds the wired security core. Both the API server and the admin CLI
// build one.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *database.DB
	Store    cache.Store
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Resolver *pkghttp.IPResolver

	Users        *repositories.UserRepository
	TokenManager *auth.TokenManager

	Events      *services.SecurityEventService
	Alerts      *services.AlertDispatcher
	RateLimiter *services.RateLimitService
	Validator   *services.InputValidator
	Scanner     *services.FileScanner
	APIKeys     *services.APIKeyService
	Guard       *services.AuthGuard
	Admin       *services.AdminService
	Cleanup     *background.CleanupManager

	closers []func()
}

// NewLogger builds the JSON logger at the configured level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// New connects to the stores and wires every service. Close releases the
// connections.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Resolver: pkghttp.NewIPResolver(cfg.Server.TrustedProxies),
	}
	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store
	if closer, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { _ = closer.Close() })
	}

	a.wire()
	return a, nil
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Store, error) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryStore(), nil
	}

	client := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	store := cache.NewRedisStore(client,
		cache.WithKeyPrefix(cfg.Redis.KeyPrefix),
		cache.WithOperationTimeout(cfg.Redis.OperationTimeout),
	)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("redis connection established", slog.String("addr", cfg.Redis.Addr))
	return &closingRedisStore{RedisStore: store, close: client.Close}, nil
}

type closingRedisStore struct {
	*cache.RedisStore
	close func() error
}

func (s *closingRedisStore) Close() error { return s.close() }

func (a *App) wire() {
	cfg, logger := a.Config, a.Logger

	a.Users = repositories.NewUserRepository(a.DB)
	loginAttempts := repositories.NewLoginAttemptRepository(a.DB)
	lockouts := repositories.NewLockoutRepository(a.DB)
	apiKeyRepo := repositories.NewAPIKeyRepository(a.DB)

	a.TokenManager = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry)

	a.Alerts = services.NewAlertDispatcher(services.NewLogNotifier(logger), cfg.Alerts.QueueSize, cfg.Alerts.AlertsPerMinute, a.Metrics, logger)
	a.Events = services.NewSecurityEventService(
		repositories.NewSecurityEventRepository(a.DB),
		pkglogger.NewEventLogger(logger),
		a.Alerts,
		a.Metrics,
		logger,
	)

	a.RateLimiter = services.NewRateLimitService(
		a.Store,
		repositories.NewRateLimitViolationRepository(a.DB),
		a.Events,
		services.DefaultRateLimitPolicy(cfg.RateLimit.DefaultPerMinute, cfg.RateLimit.DefaultPerHour, cfg.RateLimit.DefaultPerDay),
		a.Metrics,
		logger,
	)

	a.Validator = services.NewInputValidator(services.InputValidatorConfig{
		MaxLength:    cfg.Validation.MaxInputLength,
		ExemptFields: []string{"password", "refresh_token"},
	}, a.Events, a.Metrics, logger)

	a.Scanner = services.NewFileScanner(
		repositories.NewFileScanRepository(a.DB),
		a.Events,
		a.sizeLimits(),
		a.Metrics,
		logger,
	)

	a.APIKeys = services.NewAPIKeyService(apiKeyRepo, auth.NewAPIKeyManager(), a.Events, logger)

	policy := pkgauth.DefaultPasswordPolicy()
	policy.MinLength = cfg.Auth.PasswordMinLength
	a.Guard = services.NewAuthGuard(
		a.Users,
		loginAttempts,
		lockouts,
		a.Store,
		a.TokenManager,
		a.Events,
		auth.NewTimingDelay(auth.TimingConfig{
			BaseDelay:   cfg.Auth.TimingDelayBase,
			RandomDelay: cfg.Auth.TimingDelayRandom,
		}),
		services.AuthGuardConfig{
			LockoutThreshold:  cfg.Auth.LockoutThreshold,
			LockoutDuration:   cfg.Auth.LockoutDuration,
			IPLimitPerHour:    cfg.Auth.LoginIPLimitPerHour,
			EmailLimitPerHour: cfg.Auth.LoginEmailLimitPerHour,
			PasswordPolicy:    policy,
		},
		a.Metrics,
		logger,
	)

	a.Admin = services.NewAdminService(lockouts, cfg.Auth.LockoutDuration, logger)

	a.Cleanup = background.NewCleanupManager(lockouts, loginAttempts, a.APIKeys, background.CleanupConfig{
		Interval:              cfg.Maintenance.CleanupInterval,
		LockoutDuration:       cfg.Auth.LockoutDuration,
		LoginAttemptRetention: cfg.Maintenance.LoginAttemptRetention,
	}, logger)
}

func (a *App) sizeLimits() map[string]int64 {
	limits := services.DefaultFileSizeLimits()
	if v := a.Config.Uploads.MaxImageBytes; v > 0 {
		limits[services.CategoryImages] = v
	}
	if v := a.Config.Uploads.MaxDocumentBytes; v > 0 {
		limits[services.CategoryDocuments] = v
	}
	if v := a.Config.Uploads.MaxArchiveBytes; v > 0 {
		limits[services.CategoryArchives] = v
	}
	return limits
}

// Router builds the HTTP handler tree.
func (a *App) Router() chi.Router {
	var maxUpload int64
	for _, limit := range a.sizeLimits() {
		maxUpload = max(maxUpload, limit)
	}

	return routes.NewRouter(routes.Dependencies{
		Handlers: routes.Handlers{
			Auth:           handlers.NewAuthHandler(a.Guard, a.Resolver, a.Logger),
			APIKeys:        handlers.NewAPIKeyHandler(a.APIKeys, a.Logger),
			Uploads:        handlers.NewUploadHandler(a.Scanner, maxUpload+multipartOverhead, a.Logger),
			SecurityEvents: handlers.NewSecurityEventHandler(a.Events, a.Logger),
			Admin:          handlers.NewAdminHandler(a.Admin, a.Guard, a.Logger),
		},
		TokenManager: a.TokenManager,
		APIKeys:      a.APIKeys,
		Users:        a.Users,
		RateLimiter:  a.RateLimiter,
		Screener:     a.Validator,
		Events:       a.Events,
		Resolver:     a.Resolver,
		Metrics:      a.Metrics,
		Gatherer:     a.Registry,
		HealthChecks: map[string]routes.HealthCheck{
			"database": a.DB.HealthCheck,
			"store":    a.Store.Ping,
		},
		Logger: a.Logger,
	}, routes.Options{
		Env:                    a.Config.Server.Env,
		AllowedOrigins:         a.Config.Server.AllowedOrigins,
		FloodRequestsPerSecond: a.Config.RateLimit.FloodRequestsPerSecond,
		MaxBodyBytes:           a.Config.Validation.MaxBodyBytes,
		RequestTimeout:         a.Config.Server.RequestTimeout,
	})
}

// EnsureAdminUser creates the bootstrap admin when ADMIN_EMAIL and
// ADMIN_PASSWORD are set and no such user exists yet.
func (a *App) EnsureAdminUser(ctx context.Context) error {
	email := strings.TrimSpace(a.Config.Auth.BootstrapAdminEmail)
	password := a.Config.Auth.BootstrapAdminPassword
	if email == "" || password == "" {
		a.Logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := a.Users.GetByEmail(ctx, email)
	if err == nil {
		a.Logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	policy := pkgauth.DefaultPasswordPolicy()
	policy.MinLength = a.Config.Auth.PasswordMinLength
	if strength := pkgauth.ValidatePasswordStrength(password, policy); !strength.Valid {
		return fmt.Errorf("ADMIN_PASSWORD is too weak: %s", strings.Join(strength.Errors, "; "))
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, err = a.Users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         models.RoleAdmin,
		IsActive:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	a.Logger.Info("admin user created", slog.String("email", pkglogger.SanitizedEmail(email)))
	return nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
