package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quka-ai/knowledge-sync/pkg/rollback"
	"github.com/quka-ai/knowledge-sync/pkg/types"
	"github.com/quka-ai/knowledge-sync/pkg/utils"
)

var (
	// ErrValidation marks malformed input, rejected before any side effect.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	// ErrUpstreamTimeout means the work may still complete, callers answer "processing".
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrUpstreamService = errors.New("upstream service failed")
	// ErrConfiguration is raised when query and stored vectors disagree on dimensions.
	// It is never retried.
	ErrConfiguration = errors.New("embedding configuration mismatch")
	ErrRolledBack    = errors.New("all changes have been rolled back")
	// ErrJobNotRetryable is returned when retrying a job that has not failed.
	ErrJobNotRetryable = errors.New("job is not in failed state")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// RollbackError is returned when a mutation failed and its earlier side effects were compensated.
type RollbackError struct {
	Scope  string
	Cause  error
	Result rollback.Result
}

func (e *RollbackError) Error() string {
	msg := fmt.Sprintf("%s failed, %s: %s", e.Scope, ErrRolledBack.Error(), e.Cause.Error())
	if n := len(e.Result.Failed); n > 0 {
		msg += fmt.Sprintf(" (%d compensations failed)", n)
	}
	return msg
}

func (e *RollbackError) Unwrap() []error {
	return []error{ErrRolledBack, e.Cause}
}

// classify maps a raw collaborator error onto the taxonomy.
func classify(name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrUpstreamTimeout), errors.Is(err, ErrUpstreamService), errors.Is(err, types.ErrInvalidContent):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrUpstreamTimeout, name, err)
	case dimensionMismatch(err.Error()):
		return fmt.Errorf("%w: %s: %w", ErrConfiguration, name, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstreamService, name, err)
}

// dimensionMismatch matches pgvector errors raised on comparing or storing a
// vector whose length differs from the column.
func dimensionMismatch(msg string) bool {
	return strings.Contains(msg, "different vector dimensions") ||
		(strings.Contains(msg, "expected ") && strings.Contains(msg, " dimensions, not "))
}

// retryable excludes failures another attempt cannot fix.
func retryable(err error) bool {
	return !errors.Is(err, ErrConfiguration) &&
		!errors.Is(err, ErrValidation) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, types.ErrInvalidContent)
}

// call runs fn under policy and classifies what is left after the retries,
// a deadline hit between attempts included.
func call[T any](ctx context.Context, policy utils.RetryPolicy, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	res, err := utils.Call(ctx, policy, retryable, fn)
	if err != nil {
		return res, classify(name, err)
	}
	return res, nil
}
