package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qbui/audio-processor/internal/domain"
)

// captureSleep records requested delays without waiting.
func captureSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Retryable:  AllowKinds(domain.ErrKindFetch),
		sleep:      captureSleep(&delays),
	}

	calls := 0
	result, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", domain.NewFetchError("b1", "transient", nil)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestDo_ExponentialBackoffDelays(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Retryable:  AllowKinds(domain.ErrKindFetch),
		sleep:      captureSleep(&delays),
	}

	_, err := Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		return 0, domain.NewFetchError("b1", "always failing", nil)
	})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestDo_NonRetryableSurfacesImmediately(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Retryable:  AllowKinds(domain.ErrKindFetch),
		sleep:      captureSleep(&delays),
	}

	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.NewTranscodeError("b1", "deterministic", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)

	var attemptsErr *AttemptsError
	require.ErrorAs(t, err, &attemptsErr)
	assert.Equal(t, 0, attemptsErr.Attempts)
	assert.True(t, domain.IsKind(err, domain.ErrKindTranscode))
}

func TestDo_ExhaustionCarriesRetryCount(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Retryable:  AllowKinds(domain.ErrKindASR),
		sleep:      captureSleep(&delays),
	}

	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.NewASRError("b1", "vendor down", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var attemptsErr *AttemptsError
	require.ErrorAs(t, err, &attemptsErr)
	assert.Equal(t, 2, attemptsErr.Attempts)
}

func TestDo_NilClassifierRetriesEverything(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		sleep:      captureSleep(&delays),
	}

	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("plain error")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, delays, 1)
}

func TestDo_ZeroRetriesSingleAttempt(t *testing.T) {
	var delays []time.Duration
	cfg := Config{
		MaxRetries: 0,
		BaseDelay:  time.Second,
		sleep:      captureSleep(&delays),
	}

	calls := 0
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)

	var attemptsErr *AttemptsError
	require.ErrorAs(t, err, &attemptsErr)
	assert.Equal(t, 0, attemptsErr.Attempts)
}

func TestDo_SuccessFirstTry(t *testing.T) {
	result, err := Do(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Second}, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestDo_CanceledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{
		MaxRetries: 5,
		BaseDelay:  time.Second,
	}

	calls := 0
	_, err := Do(ctx, cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestAttemptsError_Unwrap(t *testing.T) {
	cause := domain.NewFetchError("b1", "not found", nil)
	err := &AttemptsError{Attempts: 2, Err: cause}

	assert.Equal(t, cause.Error(), err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.True(t, domain.IsKind(err, domain.ErrKindFetch))
}

func TestAllowKinds(t *testing.T) {
	retryable := AllowKinds(domain.ErrKindFetch, domain.ErrKindStorage)

	assert.True(t, retryable(domain.NewFetchError("b1", "x", nil)))
	assert.True(t, retryable(domain.NewStorageError("b1", "x", nil)))
	assert.False(t, retryable(domain.NewTranscodeError("b1", "x", nil)))
	assert.False(t, retryable(errors.New("plain")))
}
