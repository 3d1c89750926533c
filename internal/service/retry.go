package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/spec-kit/support-router/internal/repository"
)

// retryRead repeats an idempotent read while the store reports itself
// unavailable. Every other failure is returned at once.
func retryRead[T any](ctx context.Context, attempts int, read func(context.Context) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 25 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	return backoff.Retry(ctx, func() (T, error) {
		v, err := read(ctx)
		if err != nil && !errors.Is(err, repository.ErrUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(attempts)))
}
