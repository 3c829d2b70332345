package embed

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryConfig configures retry behavior for model downloads.
type RetryConfig struct {
	MaxRetries   int           // Retry attempts beyond the initial one
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on the backoff delay
	Multiplier   float64       // Exponential backoff multiplier
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// delay returns the backoff before retry number attempt (0-based),
// capped at MaxDelay.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt)))
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// DownloadWithRetry executes fn with exponential backoff retry.
// A cancelled context aborts immediately with the context error.
func DownloadWithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxRetries {
			return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.delay(attempt)):
		}
	}
}
