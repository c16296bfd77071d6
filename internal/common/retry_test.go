package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		errs      []error
		attempts  int
		wantCalls int
		wantIs    []error
		wantOK    bool
	}{
		{
			name:      "succeeds first time",
			errs:      []error{nil},
			attempts:  3,
			wantCalls: 1,
			wantOK:    true,
		},
		{
			name:      "recovers from rate limit",
			errs:      []error{ErrRateLimit, nil},
			attempts:  3,
			wantCalls: 2,
			wantOK:    true,
		},
		{
			name:      "recovers from wrapped server error",
			errs:      []error{fmt.Errorf("gmail: %w", ErrServerError), nil},
			attempts:  3,
			wantCalls: 2,
			wantOK:    true,
		},
		{
			name:      "gives up after max attempts",
			errs:      []error{ErrServerError, ErrServerError, ErrServerError},
			attempts:  3,
			wantCalls: 3,
			wantIs:    []error{ErrMaxRetries, ErrServerError},
		},
		{
			name:      "does not retry plain errors",
			errs:      []error{errBoom},
			attempts:  3,
			wantCalls: 1,
			wantIs:    []error{errBoom},
		},
		{
			name:      "does not retry auth failures",
			errs:      []error{ErrAuth},
			attempts:  3,
			wantCalls: 1,
			wantIs:    []error{ErrAuth},
		},
		{
			name:      "honors non-retryable wrapper",
			errs:      []error{&RetryableError{Err: ErrRateLimit, Retryable: false}},
			attempts:  3,
			wantCalls: 1,
			wantIs:    []error{ErrRateLimit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), func() error {
				e := tt.errs[calls]
				calls++
				return e
			}, fastRetry(tt.attempts))

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantOK {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, target := range tt.wantIs {
				assert.ErrorIs(t, err, target)
			}
		})
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := service.RetryOptions{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Second}
	err := WithRetry(ctx, func() error { return ErrServerError }, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", ErrServerError)))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: true}))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(ErrAuth))
	assert.False(t, IsRetryable(ErrCursorExpired))
}

func TestUserError(t *testing.T) {
	err := NewUserError("could not reach Gmail", ErrAuth)
	assert.Equal(t, "could not reach Gmail: provider authentication failed", err.Error())
	assert.ErrorIs(t, err, ErrAuth)
	assert.True(t, IsJobFatal(err))
}

func TestCompilePatterns(t *testing.T) {
	res, err := CompilePatterns([]string{`order\s+#\d+`, `^receipt`})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.True(t, res[0].MatchString("ORDER #123"))

	_, err = CompilePatterns([]string{`(unclosed`})
	assert.Error(t, err)
}
