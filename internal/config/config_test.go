package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("DB_PASSWORD", "test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenExpiry)
	assert.Equal(t, 5, cfg.Auth.LockoutThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Auth.LockoutDuration)
	assert.Equal(t, 10, cfg.Auth.LoginIPLimitPerHour)
	assert.Equal(t, 5, cfg.Auth.LoginEmailLimitPerHour)
	assert.Equal(t, 8, cfg.Auth.PasswordMinLength)

	assert.Equal(t, 60, cfg.RateLimit.DefaultPerMinute)
	assert.Equal(t, 1000, cfg.RateLimit.DefaultPerHour)
	assert.Equal(t, 10000, cfg.RateLimit.DefaultPerDay)

	assert.Equal(t, 10000, cfg.Validation.MaxInputLength)
	assert.Equal(t, int64(5<<20), cfg.Uploads.MaxImageBytes)
	assert.Equal(t, int64(10<<20), cfg.Uploads.MaxDocumentBytes)
	assert.Equal(t, int64(50<<20), cfg.Uploads.MaxArchiveBytes)

	assert.Equal(t, "", cfg.Redis.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("LOCKOUT_THRESHOLD", "3")
	t.Setenv("LOCKOUT_DURATION", "10m")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.0.0.2")
	t.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Auth.LockoutThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Auth.LockoutDuration)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Server.TrustedProxies)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "invalid durations fall back to default")
}

func TestConfig_Warnings(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    []string
		wantLen int
	}{
		{name: "development is quiet", env: map[string]string{"ENV": "development"}, wantLen: 0},
		{
			name:    "production without proxies or redis",
			env:     map[string]string{"ENV": "production", "JWT_SECRET": "production-secret-with-32-characters!!"},
			want:    []string{"TRUSTED_PROXIES", "REDIS_ADDR"},
			wantLen: 2,
		},
		{
			name: "production fully configured",
			env: map[string]string{
				"ENV":             "production",
				"JWT_SECRET":      "production-secret-with-32-characters!!",
				"TRUSTED_PROXIES": "10.0.0.0/8",
				"REDIS_ADDR":      "redis:6379",
			},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.NoError(t, err)

			warnings := cfg.Warnings()
			assert.Len(t, warnings, tt.wantLen)
			for i, setting := range tt.want {
				assert.Contains(t, warnings[i], setting)
			}
		})
	}
}

func TestLoad_RequiredValues(t *testing.T) {
	t.Run("missing jwt secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		t.Setenv("DB_PASSWORD", "test")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("missing db password", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
		t.Setenv("DB_PASSWORD", "")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoad_RejectsInvalidPolicy(t *testing.T) {
	setRequired(t)
	t.Setenv("LOCKOUT_THRESHOLD", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "LOCKOUT_THRESHOLD")
}

func TestValidateJWTSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		env     string
		wantErr bool
	}{
		{name: "dev minimum", secret: "0123456789abcdef", env: "development"},
		{name: "dev too short", secret: "short", env: "development", wantErr: true},
		{name: "production too short", secret: "0123456789abcdef", env: "production", wantErr: true},
		{name: "production ok", secret: "0123456789abcdef0123456789abcdef", env: "production"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateJWTSecret(tt.secret, tt.env)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
