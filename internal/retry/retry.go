package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/loykin/lhm/internal/common"
)

// Config holds configuration for connection retries
type Config struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialDelay    time.Duration // Initial delay before first retry
	MaxDelay        time.Duration // Maximum delay between retries
	BackoffFactor   float64       // Multiplier for exponential backoff
	RetryableErrors []string      // Error strings that trigger retries
}

// DefaultRetryConfig returns the retry configuration used while establishing connections.
// Statements issued during a run are never retried.
func DefaultRetryConfig() *Config {
	return &Config{
		MaxRetries:    4,
		InitialDelay:  250 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"bad connection",
			"i/o timeout",
			"too many connections",
			"broken pipe",
			"unexpected eof",
		},
	}
}

// isRetryableError checks if an error should trigger a retry
func (rc *Config) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, retryableErr := range rc.RetryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}

	return false
}

// calculateDelay calculates the delay for a given retry attempt using exponential backoff
func (rc *Config) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return rc.InitialDelay
	}

	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.BackoffFactor, float64(attempt-1)))
	if delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	return delay
}

// Operation is a unit of work that can be retried
type Operation func(ctx context.Context) error

// WithRetry executes operation until it succeeds, fails with a non-retryable error,
// or runs out of attempts.
func WithRetry(ctx context.Context, config *Config, operation Operation) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	logger := common.GetLogger().WithComponent("retry")

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := operation(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry",
					"attempt", attempt+1,
					"total_attempts", config.MaxRetries+1)
			}
			return nil
		}

		lastErr = err

		if attempt == config.MaxRetries {
			break
		}

		if !config.isRetryableError(err) {
			logger.Debug("operation failed with non-retryable error",
				"error", err,
				"attempt", attempt+1)
			return err
		}

		delay := config.calculateDelay(attempt)
		logger.Warn("operation failed, retrying",
			"error", err,
			"attempt", attempt+1,
			"max_attempts", config.MaxRetries+1,
			"retry_delay", delay)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	logger.Error("operation failed after all retry attempts",
		"error", lastErr,
		"attempts", config.MaxRetries+1)

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}
