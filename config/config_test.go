package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "  secret  ")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, BackendNone, cfg.Storage.Backend)
	assert.Equal(t, BackendNone, cfg.MQ.Backend)
	assert.Equal(t, "permissive", cfg.Policy.StatusMode)
	assert.False(t, cfg.Policy.LockDecided)
	assert.False(t, cfg.Policy.EnforceDeadline)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("JWT_TOKEN_TTL", "90m")
	t.Setenv("STORAGE_BACKEND", "MINIO")
	t.Setenv("APPLICATION_STATUS_MODE", "strict")
	t.Setenv("APPLICATION_LOCK_DECIDED", "1")
	t.Setenv("APPLICATION_ENFORCE_DEADLINE", "true")
	t.Setenv("AUTH_RATE_LIMIT_RPS", "0.5")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, BackendMinio, cfg.Storage.Backend)
	assert.Equal(t, "strict", cfg.Policy.StatusMode)
	assert.True(t, cfg.Policy.LockDecided)
	assert.True(t, cfg.Policy.EnforceDeadline)
	assert.InDelta(t, 0.5, cfg.Auth.RateLimitRPS, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	cfg := LoadConfig()
	cfg.Auth.JWTSecret = ""
	cfg.Storage.Backend = "s3"
	cfg.MQ.Backend = "kafka"
	cfg.Policy.StatusMode = "loose"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), `unknown STORAGE_BACKEND "s3"`)
	assert.Contains(t, err.Error(), `unknown MQ_BACKEND "kafka"`)
	assert.Contains(t, err.Error(), `unknown APPLICATION_STATUS_MODE "loose"`)
}
