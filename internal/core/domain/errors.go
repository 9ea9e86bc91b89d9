package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput marks bad/oversized/empty queries. Resolved at the
	// boundary before any external call; never counted as a dependency
	// failure.
	ErrInvalidInput = errors.New("invalid input")

	ErrRetrievalUnavailable  = errors.New("retrieval service unavailable")
	ErrRetrievalTimeout      = errors.New("retrieval timeout")
	ErrGenerationRateLimited = errors.New("generation rate limited")
	ErrGenerationTimeout     = errors.New("generation timeout")
	ErrGenerationUnavailable = errors.New("generation service unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// RetryAfterError carries a retry-after hint alongside a semantic kind,
// so breaker-open rejections and upstream throttling surface the
// remaining cool-down to the caller.
type RetryAfterError struct {
	Kind       error
	RetryAfter time.Duration
	Err        error
}

func (e *RetryAfterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (retry after %s)", e.Kind, e.RetryAfter)
	}
	return fmt.Sprintf("%v (retry after %s): %v", e.Kind, e.RetryAfter, e.Err)
}

func (e *RetryAfterError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// RetryAfterOf extracts the retry-after hint from an error chain.
func RetryAfterOf(err error) (time.Duration, bool) {
	var retryErr *RetryAfterError
	if errors.As(err, &retryErr) {
		return retryErr.RetryAfter, true
	}
	return 0, false
}
