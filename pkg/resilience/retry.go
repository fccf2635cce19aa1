// Package resilience provides resiliency patterns around generation backends.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdhe/readcoach/pkg/provider"
)

// RetryOnce executes fn, retrying a single time after a fixed backoff when
// the backend reports a transient unavailable condition. This is the only
// built-in retry anywhere in the system; every other failure propagates
// immediately.
func RetryOnce(ctx context.Context, backoff time.Duration, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry: context cancelled: %w", ctx.Err())
	default:
	}

	err := fn(ctx)
	if err == nil || !errors.Is(err, provider.ErrUnavailable) {
		return err
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry: context cancelled during backoff: %w", ctx.Err())
	case <-time.After(backoff):
	}

	return fn(ctx)
}

// IsTransient reports whether err represents a condition that should count
// as a circuit breaker failure: backend overload or unavailability.
func IsTransient(err error) bool {
	return errors.Is(err, provider.ErrRateLimited) || errors.Is(err, provider.ErrUnavailable)
}
