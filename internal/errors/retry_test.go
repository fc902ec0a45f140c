package errors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		RetryIf:      IsRetryable,
	}
}

func TestDoRetriesTemporaryErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return Temporary(CodeNetworkTimeout, "timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func() error {
		attempts++
		return Permanent(CodeConfigInvalid, "bad config")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, HasCode(err, CodeConfigInvalid))
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func() error {
		attempts++
		return Temporary(CodeNetworkUnavailable, "still down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := Do(ctx, &Policy{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		RetryIf:      IsRetryable,
	}, func() error {
		attempts++
		cancel()
		return Temporary(CodeNetworkTimeout, "timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), fastPolicy(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", Temporary(CodeNetworkTimeout, "timeout")
		}
		return "payload", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "payload", got)
	assert.Equal(t, 2, attempts)
}

func TestWithTimeoutResult(t *testing.T) {
	got, err := WithTimeoutResult(func() (int, error) {
		return 42, nil
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = WithTimeoutResult(func() (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 0, nil
	}, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
