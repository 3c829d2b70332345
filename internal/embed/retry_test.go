package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDownloadWithRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := DownloadWithRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDownloadWithRetry_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := DownloadWithRetry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return errors.New("permanent")
	})

	require.Error(t, err)
	assert.Equal(t, 4, attempts) // initial + 3 retries
	assert.Contains(t, err.Error(), "permanent")
}

func TestRetryConfig_DelaySchedule(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 1*time.Second, cfg.delay(0))
	assert.Equal(t, 2*time.Second, cfg.delay(1))
	assert.Equal(t, 4*time.Second, cfg.delay(2))
	// Deep attempts are capped at MaxDelay.
	assert.Equal(t, 16*time.Second, cfg.delay(10))
}

func TestDownloadWithRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := DownloadWithRetry(ctx, fastRetryConfig(), func() error {
		t.Fatal("fn should not run with a cancelled context")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
