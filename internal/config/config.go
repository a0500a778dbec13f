// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// JWT settings.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// Client bootstrap. Either key may be empty; the matching client is
	// simply not provisioned.
	AdminAPIKey  string // API key for the "admin" client.
	ReaderAPIKey string // API key for the read-only "reader" client.

	// ADW workflow backend.
	ADWBaseURL string
	ADWToken   string
	ADWTimeout time.Duration

	// Run store settings.
	RunTTL         time.Duration
	MaxRuns        int
	RunArchivePath string // SQLite file for terminal-run history; empty disables archiving.

	// Rate limiter settings.
	RateLimitEnabled bool
	RateLimitWindow  time.Duration
	MaxRequests      int
	MaxConcurrent    int

	// Retry settings for workflow triggers.
	RetryMaxAttempts   int
	RetryInitialDelay  time.Duration
	RetryMaxDelay      time.Duration
	RetryMultiplier    float64
	RetryJitter        float64
	RetryableErrors    []string
	NonRetryableErrors []string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("GIMLI_PORT", 8080),
		ReadTimeout:         envDuration("GIMLI_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("GIMLI_WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBodyBytes: int64(envInt("GIMLI_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
		JWTPrivateKeyPath:   envStr("GIMLI_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    envStr("GIMLI_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       envDuration("GIMLI_JWT_EXPIRATION", 24*time.Hour),
		AdminAPIKey:         envStr("GIMLI_ADMIN_API_KEY", ""),
		ReaderAPIKey:        envStr("GIMLI_READER_API_KEY", ""),
		ADWBaseURL:          envStr("GIMLI_ADW_BASE_URL", "http://localhost:9100"),
		ADWToken:            envStr("GIMLI_ADW_TOKEN", ""),
		ADWTimeout:          envDuration("GIMLI_ADW_TIMEOUT", 30*time.Second),
		RunTTL:              envDuration("GIMLI_RUN_TTL", time.Hour),
		MaxRuns:             envInt("GIMLI_MAX_RUNS", 1000),
		RunArchivePath:      envStr("GIMLI_RUN_ARCHIVE_PATH", ""),
		RateLimitEnabled:    envBool("GIMLI_RATE_LIMIT_ENABLED", true),
		RateLimitWindow:     envDuration("GIMLI_RATE_LIMIT_WINDOW", time.Minute),
		MaxRequests:         envInt("GIMLI_RATE_LIMIT_MAX_REQUESTS", 120),
		MaxConcurrent:       envInt("GIMLI_RATE_LIMIT_MAX_CONCURRENT", 10),
		RetryMaxAttempts:    envInt("GIMLI_RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay:   envDuration("GIMLI_RETRY_INITIAL_DELAY", 200*time.Millisecond),
		RetryMaxDelay:       envDuration("GIMLI_RETRY_MAX_DELAY", 30*time.Second),
		RetryMultiplier:     envFloat("GIMLI_RETRY_MULTIPLIER", 2.0),
		RetryJitter:         envFloat("GIMLI_RETRY_JITTER", 0.1),
		RetryableErrors:     envList("GIMLI_RETRYABLE_ERRORS", nil),
		NonRetryableErrors:  envList("GIMLI_NON_RETRYABLE_ERRORS", nil),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "gimli"),
		LogLevel:            envStr("GIMLI_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: GIMLI_PORT must be in 1..65535")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: GIMLI_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.ADWBaseURL == "" {
		return fmt.Errorf("config: GIMLI_ADW_BASE_URL is required")
	}
	if c.RunTTL <= 0 {
		return fmt.Errorf("config: GIMLI_RUN_TTL must be positive")
	}
	if c.MaxRuns <= 0 {
		return fmt.Errorf("config: GIMLI_MAX_RUNS must be positive")
	}
	if c.RateLimitEnabled {
		if c.RateLimitWindow <= 0 {
			return fmt.Errorf("config: GIMLI_RATE_LIMIT_WINDOW must be positive")
		}
		if c.MaxRequests <= 0 {
			return fmt.Errorf("config: GIMLI_RATE_LIMIT_MAX_REQUESTS must be positive")
		}
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("config: GIMLI_RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("config: GIMLI_RETRY_MULTIPLIER must be at least 1")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return fmt.Errorf("config: GIMLI_RETRY_JITTER must be in 0..1")
	}
	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		return fmt.Errorf("config: GIMLI_JWT_PRIVATE_KEY and GIMLI_JWT_PUBLIC_KEY must be set together")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// envList parses a comma-separated list, trimming whitespace and dropping
// empty entries.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
