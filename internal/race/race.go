// Package race runs one request against several redundant endpoints and keeps
// the first success.
package race

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 8 * time.Second

type Options struct {
	// Timeout bounds each endpoint attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// Limit bounds how many endpoints are in flight at once. Zero means all.
	Limit int
	// Stop reports errors that end the race immediately instead of waiting
	// for the remaining endpoints.
	Stop func(error) bool
}

type outcome[T any] struct {
	target string
	value  T
	err    error
}

// First calls fn for every target concurrently and returns the first value
// that comes back without error, together with the target that produced it.
// When every target fails the errors are joined.
func First[T any](ctx context.Context, targets []string, opts Options, fn func(ctx context.Context, target string) (T, error)) (T, string, error) {
	var zero T
	if len(targets) == 0 {
		return zero, "", errors.New("no endpoints configured")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan outcome[T], len(targets))
	group, groupCtx := errgroup.WithContext(ctx)
	if opts.Limit > 0 {
		group.SetLimit(opts.Limit)
	}
	go func() {
		for _, target := range targets {
			target := target
			group.Go(func() error {
				if err := groupCtx.Err(); err != nil {
					results <- outcome[T]{target: target, err: err}
					return nil
				}
				attemptCtx, attemptCancel := context.WithTimeout(groupCtx, timeout)
				defer attemptCancel()
				value, err := fn(attemptCtx, target)
				results <- outcome[T]{target: target, value: value, err: err}
				return nil
			})
		}
		_ = group.Wait()
	}()

	errs := make([]error, 0, len(targets))
	for range targets {
		select {
		case <-ctx.Done():
			return zero, "", ctx.Err()
		case res := <-results:
			if res.err == nil {
				return res.value, res.target, nil
			}
			if opts.Stop != nil && opts.Stop(res.err) {
				return zero, res.target, fmt.Errorf("%s: %w", res.target, res.err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", res.target, res.err))
		}
	}
	return zero, "", fmt.Errorf("all %d endpoints failed: %w", len(targets), errors.Join(errs...))
}
