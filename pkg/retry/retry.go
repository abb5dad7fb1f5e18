// Package retry wraps startup operations (connecting to PostgreSQL, running
// migrations) with exponential backoff. Request-path store calls are never
// retried.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0

	// OnRetry is called before each wait. Optional.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig suits waiting for a database container to come up:
// 8 retries starting at 250ms, capped at 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   8,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do runs fn until it succeeds, returns a permanent error, or retries are
// exhausted. Waits respect ctx cancellation.
func Do[T any](ctx context.Context, cfg *Config, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn(ctx)
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if !IsRetryable(err) || attempt == cfg.MaxRetries {
			break
		}

		wait := applyJitter(delay, cfg.JitterFactor)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return result, lastErr
}

// retryableSQLStates are PostgreSQL error classes worth waiting out:
// 08 connection exception, 53 insufficient resources, 57P03 cannot connect now.
var retryableSQLStates = []string{"08", "53", "57P03"}

// IsRetryable reports whether err is a transient connectivity failure.
// Authentication failures, bad SQL and cancelled contexts are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, prefix := range retryableSQLStates {
			if strings.HasPrefix(pgErr.Code, prefix) {
				return true
			}
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"timed out",
		"too many connections",
		"the database system is starting up",
		"network is unreachable",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
