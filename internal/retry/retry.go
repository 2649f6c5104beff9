// Package retry provides bounded retry with exponential backoff for
// transient faults at I/O boundaries.
package retry

import (
	"context"
	"time"
)

// Config controls retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier scales the delay after each attempt.
	Multiplier float64
}

// DefaultConfig is a small bounded policy suitable for ledger queries.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
}

// WithRetry runs fn until it succeeds, returns a non-retryable error,
// exhausts the attempt budget, or the context is done. The last error is
// returned on exhaustion.
func WithRetry[T any](ctx context.Context, cfg Config, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var zero T

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.InitialDelay
	if delay <= 0 {
		delay = DefaultConfig.InitialDelay
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = DefaultConfig.Multiplier
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return zero, lastErr
}
