// Package retry runs an operation under a fixed-cooldown retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the real-clock Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep returns immediately unless ctx is already cancelled.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Policy describes how many times to try, how long to cool down between
// tries and which errors are worth another try.
type Policy struct {
	MaxAttempts int
	Cooldown    time.Duration
	Retryable   func(error) bool
	Sleep       Sleeper
	// OnRetry is called before each cooldown. attempt is the 1-based attempt
	// that just failed.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err came from a policy running out of attempts.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// policy runs out of attempts.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is the value-returning form of Policy.Do.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := max(p.MaxAttempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}

		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
		if attempt >= maxAttempts {
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, p.Cooldown)
		}
		if err := sleep(ctx, p.Cooldown); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}
	}
}
