// Package retry wraps a fallible call with bounded attempts and exponential
// backoff. Nothing in the core applies it implicitly.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Policy struct {
	Attempts int
	Backoff  time.Duration
	// Retryable decides whether err is worth another attempt. Nil retries
	// everything.
	Retryable func(error) bool
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 5, Backoff: 200 * time.Millisecond}
}

func Do(ctx context.Context, policy Policy, fn func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := policy.Backoff
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			return fmt.Errorf("retry failed after %d attempts: %w", attempts, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, policy Policy, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, policy, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
