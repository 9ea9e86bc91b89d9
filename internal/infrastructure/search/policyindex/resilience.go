package policyindex

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "policy index status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("policy index %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("policy index %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// ClassifyError counts transport failures, timeouts and 5xx toward the
// retrieval breaker. Caller mistakes (4xx) and context cancellation do
// not trip a breaker that guards a healthy index. A deadline expiry is
// how a hung index shows up (the http.Client timeout surfaces as
// context.DeadlineExceeded), so it does count.
func ClassifyError(err error) resilience.Classification {
	if err == nil {
		return resilience.Classification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.Classification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.Classification{Retryable: false, RecordFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode == http.StatusRequestTimeout {
			return resilience.Classification{Retryable: true, RecordFailure: true}
		}
		return resilience.Classification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Classification{Retryable: true, RecordFailure: true}
	}
	return resilience.Classification{Retryable: false, RecordFailure: true}
}

func (c *Client) mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsCircuitOpen(err) {
		var retryAfter = defaultTimeout
		if c.breaker != nil {
			retryAfter = c.breaker.CooldownRemaining()
		}
		return &domain.RetryAfterError{
			Kind:       domain.ErrRetrievalUnavailable,
			RetryAfter: retryAfter,
			Err:        err,
		}
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrRetrievalTimeout, "search", err)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode < 500 &&
		statusErr.StatusCode != http.StatusTooManyRequests {
		return domain.WrapError(domain.ErrInvalidInput, "search", err)
	}
	return domain.WrapError(domain.ErrRetrievalUnavailable, "search", err)
}
