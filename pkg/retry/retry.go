// Package retry implements a bounded retry policy whose backoff and sleep
// are injectable, so callers can be tested without real delays.
package retry

import (
	"context"
	"fmt"
	"time"
)

type BackoffFunc func(attempt int) time.Duration

type SleepFunc func(ctx context.Context, d time.Duration) error

type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Sleep       SleepFunc
	// Retryable decides whether an error is worth another attempt. A nil
	// Retryable retries every error.
	Retryable func(error) bool
}

// Linear waits attempt × base after the given failed attempt.
func Linear(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func New(maxAttempts int, backoff BackoffFunc) Policy {
	return Policy{MaxAttempts: maxAttempts, Backoff: backoff, Sleep: Sleep}
}

// Do runs fn until it succeeds, the attempts are exhausted, the error is not
// retryable or ctx is done. No wait happens after the last attempt.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if p.Backoff != nil {
			if sErr := sleep(ctx, p.Backoff(attempt)); sErr != nil {
				return sErr
			}
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}
