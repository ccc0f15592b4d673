package backoff

import (
	"context"
	"errors"
	"time"
)

// ErrAttemptsExhausted is returned when all retry attempts have failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// RetryAfterError signals that the failed operation advised a minimum wait
// before the next attempt (HTTP 429 with Retry-After).
type RetryAfterError struct {
	After time.Duration
	Cause error
}

func (e *RetryAfterError) Error() string {
	if e.Cause != nil {
		return "retry after " + e.After.String() + ": " + e.Cause.Error()
	}
	return "retry after " + e.After.String()
}

func (e *RetryAfterError) Unwrap() error { return e.Cause }

// Retry executes fn up to maxAttempts times, sleeping between attempts
// according to the policy. When fn returns a *RetryAfterError, the advisory
// delay is used instead of the computed backoff if it is longer.
//
// fn receives the current attempt number (1-indexed). Context cancellation
// is checked before each attempt and during sleeps.
func Retry[T any](ctx context.Context, policy Policy, maxAttempts int, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := fn(attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		wait := Compute(policy, attempt)
		var ra *RetryAfterError
		if errors.As(err, &ra) && ra.After > wait {
			wait = ra.After
		}
		if err := Sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, errors.Join(ErrAttemptsExhausted, lastErr)
}
