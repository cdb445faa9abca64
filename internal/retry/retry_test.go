package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/launchpad-settlement/internal/errors"
)

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
}

func TestRetriesTransientErrors(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return apperrors.NewCollaboratorError("escrow store", fmt.Errorf("rpc timeout"))
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
}

func TestExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		return apperrors.NewCollaboratorError("escrow store", fmt.Errorf("rpc timeout"))
	})

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	require.Error(t, result.LastError)
}

func TestAbortsOnNonRetryableError(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		return apperrors.NewInvalidParameterError("amount", "not a base-10 integer")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
}

func TestAbortsOnFatalError(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		return apperrors.NewInsufficientTokenBudgetError("800000", "500000")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
}

func TestRetriesPlainErrors(t *testing.T) {
	// Uncategorized errors are assumed transient.
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("connection reset")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 2, calls)
}

func TestRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	cfg := &Config{
		MaxAttempts:  10,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		calls++
		return apperrors.NewCollaboratorError("escrow store", fmt.Errorf("rpc timeout"))
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelayCapsAtMax(t *testing.T) {
	cfg := &Config{
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 3))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 10))
}

func TestWithRetryWrapsFailure(t *testing.T) {
	err := WithRetry(context.Background(), func(ctx context.Context, attempt int) error {
		return apperrors.NewInvalidParameterError("amount", "bad input")
	})
	require.Error(t, err)
}
