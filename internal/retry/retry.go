// Package retry wraps fallible operations with exponential backoff.
//
// Retry eligibility is decided by an optional allow-list classifier: when
// configured, anything outside it surfaces on the first attempt. Errors are
// never swallowed; exhausted or non-retryable errors propagate wrapped in
// an AttemptsError recording how many retries were consumed.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/qbui/audio-processor/internal/domain"
)

// Config controls retry behavior for a single call site.
type Config struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// total attempt count is MaxRetries+1.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Subsequent retries
	// wait BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// Retryable classifies errors as transient. A nil classifier retries
	// every error (legacy mode).
	Retryable func(error) bool

	Logger *slog.Logger

	// sleep is injectable for tests; defaults to a context-aware wait.
	sleep func(ctx context.Context, d time.Duration) error
}

// AttemptsError wraps an error with the number of retries consumed before
// it propagated: 0 when the error surfaced on the first attempt, MaxRetries
// when all attempts were exhausted.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return e.Err.Error()
}

func (e *AttemptsError) Unwrap() error {
	return e.Err
}

// AllowKinds builds a classifier that treats only the given pipeline error
// kinds as transient.
func AllowKinds(kinds ...domain.ErrorKind) func(error) bool {
	return func(err error) bool {
		return domain.IsKind(err, kinds...)
	}
}

// Do runs op, retrying transient failures with exponential backoff.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := cfg.sleep
	if sleep == nil {
		sleep = waitContext
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, &AttemptsError{Attempts: attempt, Err: err}
		}

		if attempt < cfg.MaxRetries {
			delay := cfg.BaseDelay * (1 << uint(attempt))
			logger.Warn("Operation failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err),
			)
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return zero, &AttemptsError{Attempts: attempt, Err: lastErr}
			}
		}
	}

	return zero, &AttemptsError{Attempts: cfg.MaxRetries, Err: lastErr}
}

func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
