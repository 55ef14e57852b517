package exchange

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig bounds the retries of a single request.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

const (
	backoffFactor = 2.0
	jitterRange   = 0.1 // ±10%
)

// retryableError marks a failure worth another attempt.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func retryable(err error) error { return retryableError{err: err} }

// withRetry runs fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done.
func withRetry(ctx context.Context, cfg RetryConfig, name string, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Printf("%s | attempt %d/%d failed: %v", name, attempt+1, attempts, err)

		if _, ok := err.(retryableError); !ok || attempt == attempts-1 {
			break
		}

		delay := calculateRetryDelay(attempt, cfg.BaseDelay, cfg.MaxDelay)
		log.Printf("%s | retrying in %v...", name, delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed: %w", name, lastErr)
}

// calculateRetryDelay returns baseDelay*2^attempt capped at maxDelay, with jitter.
func calculateRetryDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := float64(baseDelay) * math.Pow(backoffFactor, float64(attempt))
	if maxDelay > 0 && delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	delay += delay * jitterRange * (2*rand.Float64() - 1)
	if delay < 0 {
		delay = float64(baseDelay)
	}
	return time.Duration(delay)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
