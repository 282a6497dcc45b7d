package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	Server      ServerConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Validation  ValidationConfig
	Uploads     UploadConfig
	Alerts      AlertConfig
	Maintenance MaintenanceConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// RedisConfig configures the ephemeral store. An empty Addr selects the
// in-process store, which is only suitable for a single instance.
type RedisConfig struct {
	Addr             string
	Password         string
	DB               int
	KeyPrefix        string
	OperationTimeout time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	// TrustedProxies (TRUSTED_PROXIES, comma-separated IPs or CIDRs) lists
	// the peers whose X-Forwarded-For and X-Real-IP headers are believed.
	// Empty by default: behind a load balancer, leave it unset and every
	// client shares the balancer's address for rate limiting and lockouts.
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret              string
	AccessTokenExpiry      time.Duration
	RefreshTokenExpiry     time.Duration
	LockoutThreshold       int
	LockoutDuration        time.Duration
	LoginIPLimitPerHour    int
	LoginEmailLimitPerHour int
	PasswordMinLength      int
	TimingDelayBase        time.Duration
	TimingDelayRandom      time.Duration
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

type RateLimitConfig struct {
	DefaultPerMinute       int
	DefaultPerHour         int
	DefaultPerDay          int
	FloodRequestsPerSecond int
}

type ValidationConfig struct {
	MaxInputLength int
	MaxBodyBytes   int64
}

type UploadConfig struct {
	MaxImageBytes    int64
	MaxDocumentBytes int64
	MaxArchiveBytes  int64
}

type AlertConfig struct {
	QueueSize       int
	AlertsPerMinute int
}

type MaintenanceConfig struct {
	CleanupInterval       time.Duration
	LoginAttemptRetention time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "farmguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:             getEnv("REDIS_ADDR", ""),
			Password:         getEnv("REDIS_PASSWORD", ""),
			DB:               getEnvAsInt("REDIS_DB", 0),
			KeyPrefix:        getEnv("REDIS_KEY_PREFIX", "farmguard"),
			OperationTimeout: getEnvAsDuration("REDIS_OP_TIMEOUT", 250*time.Millisecond),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:              jwtSecret,
			AccessTokenExpiry:      getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:     getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			LockoutThreshold:       getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:        getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			LoginIPLimitPerHour:    getEnvAsInt("LOGIN_IP_LIMIT_PER_HOUR", 10),
			LoginEmailLimitPerHour: getEnvAsInt("LOGIN_EMAIL_LIMIT_PER_HOUR", 5),
			PasswordMinLength:      getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
			TimingDelayBase:        getEnvAsDuration("TIMING_DELAY_BASE", 100*time.Millisecond),
			TimingDelayRandom:      getEnvAsDuration("TIMING_DELAY_RANDOM", 50*time.Millisecond),
			BootstrapAdminEmail:    getEnv("ADMIN_EMAIL", ""),
			BootstrapAdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
		RateLimit: RateLimitConfig{
			DefaultPerMinute:       getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
			DefaultPerHour:         getEnvAsInt("RATE_LIMIT_PER_HOUR", 1000),
			DefaultPerDay:          getEnvAsInt("RATE_LIMIT_PER_DAY", 10000),
			FloodRequestsPerSecond: getEnvAsInt("FLOOD_REQUESTS_PER_SECOND", 50),
		},
		Validation: ValidationConfig{
			MaxInputLength: getEnvAsInt("MAX_INPUT_LENGTH", 10000),
			MaxBodyBytes:   getEnvAsInt64("MAX_JSON_BODY_BYTES", 1<<20),
		},
		Uploads: UploadConfig{
			MaxImageBytes:    getEnvAsInt64("UPLOAD_MAX_IMAGE_BYTES", 5<<20),
			MaxDocumentBytes: getEnvAsInt64("UPLOAD_MAX_DOCUMENT_BYTES", 10<<20),
			MaxArchiveBytes:  getEnvAsInt64("UPLOAD_MAX_ARCHIVE_BYTES", 50<<20),
		},
		Alerts: AlertConfig{
			QueueSize:       getEnvAsInt("ALERT_QUEUE_SIZE", 256),
			AlertsPerMinute: getEnvAsInt("ALERTS_PER_MINUTE", 30),
		},
		Maintenance: MaintenanceConfig{
			CleanupInterval:       getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			LoginAttemptRetention: getEnvAsDuration("LOGIN_ATTEMPT_RETENTION", 90*24*time.Hour),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1 (got %d)", c.Auth.LockoutThreshold)
	}
	if c.Auth.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive")
	}
	if c.Auth.PasswordMinLength < 8 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least 8 (got %d)", c.Auth.PasswordMinLength)
	}
	if c.Validation.MaxInputLength < 1 {
		return fmt.Errorf("MAX_INPUT_LENGTH must be positive")
	}
	if c.Alerts.QueueSize < 1 || c.Alerts.AlertsPerMinute < 1 {
		return fmt.Errorf("ALERT_QUEUE_SIZE and ALERTS_PER_MINUTE must be positive")
	}
	return nil
}

// Warnings lists settings that load fine but are likely wrong for the
// environment. They are logged at startup.
func (c *Config) Warnings() []string {
	if c.Server.Env != "production" {
		return nil
	}
	var warnings []string
	if len(c.Server.TrustedProxies) == 0 {
		warnings = append(warnings, "TRUSTED_PROXIES not set; forwarding headers are ignored and clients are identified by the connecting address")
	}
	if c.Redis.Addr == "" {
		warnings = append(warnings, "REDIS_ADDR not set; counters are kept in process and not shared between instances")
	}
	return warnings
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS", []string{})
	}

	return getEnvAsList("ALLOWED_ORIGINS", []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	})
}
