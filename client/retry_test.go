package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoffDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond, BackoffMultiplier: 2}

	assert.Equal(t, 100*time.Millisecond, calculateBackoffDelay(0, cfg))
	assert.Equal(t, 200*time.Millisecond, calculateBackoffDelay(1, cfg))
	assert.Equal(t, 400*time.Millisecond, calculateBackoffDelay(2, cfg))
	assert.Equal(t, 500*time.Millisecond, calculateBackoffDelay(3, cfg))
}

func TestWithRetry(t *testing.T) {
	fast := &RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1}

	t.Run("succeeds after transient errors", func(t *testing.T) {
		calls := 0
		var retried []int
		cfg := *fast
		cfg.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return NewNetworkError(errors.New("connection reset"))
			}
			return nil
		}, &cfg)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("stops on non-retryable", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return NewRPCError(-32602, "invalid params", nil)
		}, fast)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return NewTimeoutError(errors.New("deadline"))
		}, fast)
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		cErr, ok := IsClientError(err)
		require.True(t, ok)
		assert.Equal(t, ErrCodeTimeout, cErr.Code)
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := &RetryConfig{MaxRetries: 5, InitialDelay: 10 * time.Second, MaxDelay: 10 * time.Second, BackoffMultiplier: 1}
		err := WithRetry(ctx, func() error {
			return NewNetworkError(errors.New("down"))
		}, slow)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", NewNetworkError(errors.New("x")), true},
		{"timeout", NewTimeoutError(errors.New("x")), true},
		{"not found", NewNotFoundError("account"), false},
		{"rpc", NewRPCError(-1, "boom", nil), false},
		{"try again later", &SubmitError{Status: SendStatusTryAgainLater}, true},
		{"duplicate", &SubmitError{Status: SendStatusDuplicate}, false},
		{"plain refused", errors.New("dial tcp: connection refused"), true},
		{"plain other", errors.New("bad input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}
