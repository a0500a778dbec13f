// Package retry executes fallible operations with bounded attempts,
// exponential backoff with jitter, and pluggable error classification.
//
// The engine has no shared mutable state; any number of retries may run
// concurrently. Cancellation is an explicit context checked before each
// attempt and during the inter-attempt sleep.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Config tunes one retried operation. Zero values fall back to the defaults
// applied by normalize.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0..1; fraction of the delay randomized in both directions

	// Patterns matched case-insensitively against the normalized error's
	// code, numeric status, name, or message substring. Non-retryable
	// patterns are checked first and win regardless of retryable matches.
	// With neither list configured every error is retryable.
	RetryableErrors    []string
	NonRetryableErrors []string

	// OnRetry, when set, is invoked before each inter-attempt sleep with the
	// attempt that just failed, its error, and the computed delay.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Logger reports attempt failures and upcoming retries. Nil disables
	// logging without affecting control flow.
	Logger *slog.Logger
}

// Outcome records how a retried operation resolved.
type Outcome struct {
	Success   bool
	Attempts  int
	Elapsed   time.Duration
	Err       error
	Retryable bool // classification of the final error
}

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 200 * time.Millisecond
	defaultMaxDelay     = 30 * time.Second
	defaultMultiplier   = 2.0
)

func normalize(cfg Config) Config {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = defaultMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}
	return cfg
}

// Do executes op until it succeeds, attempts are exhausted, the error is
// classified non-retryable, or ctx is cancelled. Results travel through the
// closure; Do reports how the operation resolved.
func Do(ctx context.Context, cfg Config, op func(context.Context) error) Outcome {
	cfg = normalize(cfg)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{
				Attempts: attempt - 1,
				Elapsed:  time.Since(start),
				Err:      err,
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return Outcome{
				Success:  true,
				Attempts: attempt,
				Elapsed:  time.Since(start),
			}
		}

		retryable := Classify(lastErr, cfg.RetryableErrors, cfg.NonRetryableErrors)
		if !retryable || attempt == cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.Warn("retry exhausted",
					"attempt", attempt, "error", lastErr, "retryable", retryable)
			}
			return Outcome{
				Attempts:  attempt,
				Elapsed:   time.Since(start),
				Err:       lastErr,
				Retryable: retryable,
			}
		}

		delay := Delay(cfg, attempt)
		if cfg.Logger != nil {
			cfg.Logger.Warn("attempt failed, retrying",
				"attempt", attempt, "error", lastErr, "delay", delay)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}

		select {
		case <-ctx.Done():
			return Outcome{
				Attempts:  attempt,
				Elapsed:   time.Since(start),
				Err:       ctx.Err(),
				Retryable: false,
			}
		case <-time.After(delay):
		}
	}

	// Unreachable: the loop always returns from inside.
	return Outcome{Attempts: cfg.MaxAttempts, Elapsed: time.Since(start), Err: lastErr}
}

// Delay computes the backoff before the attempt following attempt number
// attempt (1-based): min(initial × multiplier^(attempt−1), max), scaled by a
// uniform factor in [1−jitter, 1+jitter], floored at zero.
func Delay(cfg Config, attempt int) time.Duration {
	cfg = normalize(cfg)

	base := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if base > float64(cfg.MaxDelay) {
		base = float64(cfg.MaxDelay)
	}
	if cfg.Jitter > 0 {
		factor := 1 - cfg.Jitter + 2*cfg.Jitter*rand.Float64() //nolint:gosec // jitter doesn't need crypto-strength randomness
		base *= factor
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}
