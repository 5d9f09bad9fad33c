// pkg/retry/retry.go - functions for retrying actions with exponential backoff.

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/windowsadmins/cimisync/pkg/logging"
)

// NonRetryableError marks errors that should stop the retry loop immediately.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

// Permanent wraps err so Retry gives up on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// RetryConfig defines the configuration for retry attempts
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultConfig is used by the primary download mechanism.
var DefaultConfig = RetryConfig{MaxRetries: 3, InitialInterval: time.Second, Multiplier: 2.0}

// Retry retries a given function with exponential backoff. It returns the
// last error once attempts are exhausted, a non-retryable error as soon as
// one is seen, or ctx.Err() if the context ends while waiting.
func Retry(ctx context.Context, config RetryConfig, action func() error) error {
	interval := config.InitialInterval
	var lastErr error

	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		err := action()
		if err == nil {
			return nil
		}
		lastErr = err

		var nonRetryable *NonRetryableError
		if errors.As(err, &nonRetryable) {
			logging.Debug("Non-retryable error encountered", "attempt", attempt, "error", err)
			return err
		}

		if attempt == config.MaxRetries {
			logging.Warn(fmt.Sprintf("Attempt %d/%d failed, no more retries", attempt, config.MaxRetries), "error", err)
			break
		}
		logging.Warn(fmt.Sprintf("Attempt %d/%d failed, retrying in %s", attempt, config.MaxRetries, interval), "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = time.Duration(float64(interval) * config.Multiplier)
	}

	return fmt.Errorf("action failed after %d attempts: %w", config.MaxRetries, lastErr)
}
