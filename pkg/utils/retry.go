package utils

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy bounds one call to an external collaborator.
type RetryPolicy struct {
	// Timeout applies to every single attempt
	Timeout   time.Duration
	Attempts  uint
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Call runs fn with a per attempt timeout and retries with a doubling delay.
// Errors rejected by retryable are returned at once. The last error is returned as is.
func Call[T any](ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts == 0 {
		attempts = 1
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(policy.BaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
	if policy.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(policy.MaxDelay))
	}
	if retryable != nil {
		opts = append(opts, retry.RetryIf(retryable))
	}

	return retry.DoWithData(func() (T, error) {
		if policy.Timeout <= 0 {
			return fn(ctx)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
		return fn(attemptCtx)
	}, opts...)
}
