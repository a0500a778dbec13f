package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boriskellerman/gimli-sub008/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, int64(1024*1024), cfg.MaxRequestBodyBytes)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, "http://localhost:9100", cfg.ADWBaseURL)
	assert.Equal(t, time.Hour, cfg.RunTTL)
	assert.Equal(t, 1000, cfg.MaxRuns)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 120, cfg.MaxRequests)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryInitialDelay)
	assert.Equal(t, 2.0, cfg.RetryMultiplier)
	assert.Equal(t, 0.1, cfg.RetryJitter)
	assert.Nil(t, cfg.RetryableErrors)
	assert.Equal(t, "gimli", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GIMLI_PORT", "9999")
	t.Setenv("GIMLI_RUN_TTL", "15m")
	t.Setenv("GIMLI_MAX_RUNS", "50")
	t.Setenv("GIMLI_RATE_LIMIT_ENABLED", "false")
	t.Setenv("GIMLI_RETRY_MULTIPLIER", "1.5")
	t.Setenv("GIMLI_NON_RETRYABLE_ERRORS", "AUTH_FAILED, 403 ,TRIGGER_REJECTED")
	t.Setenv("GIMLI_LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.RunTTL)
	assert.Equal(t, 50, cfg.MaxRuns)
	assert.False(t, cfg.RateLimitEnabled)
	assert.Equal(t, 1.5, cfg.RetryMultiplier)
	assert.Equal(t, []string{"AUTH_FAILED", "403", "TRIGGER_REJECTED"}, cfg.NonRetryableErrors)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("GIMLI_PORT", "not-a-number")
	t.Setenv("GIMLI_READ_TIMEOUT", "soon")
	t.Setenv("GIMLI_RATE_LIMIT_ENABLED", "perhaps")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.RateLimitEnabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port out of range", "GIMLI_PORT", "70000"},
		{"zero max runs", "GIMLI_MAX_RUNS", "-1"},
		{"zero run ttl", "GIMLI_RUN_TTL", "-1s"},
		{"zero rate window", "GIMLI_RATE_LIMIT_WINDOW", "-1s"},
		{"zero max requests", "GIMLI_RATE_LIMIT_MAX_REQUESTS", "-2"},
		{"zero retry attempts", "GIMLI_RETRY_MAX_ATTEMPTS", "0"},
		{"multiplier below one", "GIMLI_RETRY_MULTIPLIER", "0.5"},
		{"jitter above one", "GIMLI_RETRY_JITTER", "1.5"},
		{"body limit", "GIMLI_MAX_REQUEST_BODY_BYTES", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateJWTKeysPaired(t *testing.T) {
	t.Setenv("GIMLI_JWT_PRIVATE_KEY", "/etc/gimli/priv.pem")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
}
