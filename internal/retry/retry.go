package retry

import (
	"context"
	"fmt"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration // base delay before the first retry
	MaxDelay    time.Duration // upper bound for a single delay, 0 means unbounded
	Backoff     bool          // Exponential backoff: Delay * 2^attempt

	// Retryable decides whether an error is worth another attempt.
	// nil retries every error.
	Retryable func(error) bool
}

// WithRetry calls fn until it succeeds, returns a non-retryable error,
// or MaxAttempts is reached.
func WithRetry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, err)
		}

		if err := Sleep(ctx, config.delay(attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := c.Delay
	if c.Backoff {
		d = c.Delay << uint(attempt)
	}
	if c.MaxDelay > 0 && (d > c.MaxDelay || d <= 0) {
		d = c.MaxDelay
	}
	return d
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
