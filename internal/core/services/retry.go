package services

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// retry calls fn until it succeeds, fails permanently or the attempt
// budget runs out. Only transient model errors are retried.
func retry[T any](ctx context.Context, s domain.RetrySettings, fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if s.InitialInterval > 0 {
		b.InitialInterval = s.InitialInterval
	}
	if s.MaxInterval > 0 {
		b.MaxInterval = s.MaxInterval
	}
	if s.Multiplier >= 1 {
		b.Multiplier = s.Multiplier
	}
	b.MaxElapsedTime = 0

	attempts := max(s.MaxAttempts, 1)
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	return backoff.RetryWithData(func() (T, error) {
		v, err := fn(ctx)
		if err != nil && !domain.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy)
}
