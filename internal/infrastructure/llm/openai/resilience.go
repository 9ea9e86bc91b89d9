package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/infrastructure/resilience"
)

// Retry hint surfaced on upstream throttling when the provider sends no
// explicit value.
const defaultRateLimitRetryAfter = 10 * time.Second

// ClassifyError counts transport failures, timeouts, 429 and 5xx toward
// the generation breaker. Other 4xx are request mistakes and context
// cancellation is the caller's choice; neither trips the circuit.
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

	if status, ok := statusCodeOf(err); ok {
		if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
			return resilience.Classification{Retryable: false, RecordFailure: true}
		}
		return resilience.Classification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Classification{Retryable: false, RecordFailure: true}
	}
	return resilience.Classification{Retryable: false, RecordFailure: true}
}

func statusCodeOf(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

func (c *Client) mapError(err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsCircuitOpen(err) {
		retryAfter := defaultRateLimitRetryAfter
		if c.breaker != nil {
			retryAfter = c.breaker.CooldownRemaining()
		}
		return &domain.RetryAfterError{
			Kind:       domain.ErrGenerationUnavailable,
			RetryAfter: retryAfter,
			Err:        err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrGenerationTimeout, "complete", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	if status, ok := statusCodeOf(err); ok {
		switch {
		case status == http.StatusTooManyRequests:
			return &domain.RetryAfterError{
				Kind:       domain.ErrGenerationRateLimited,
				RetryAfter: defaultRateLimitRetryAfter,
				Err:        err,
			}
		case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
			return domain.WrapError(domain.ErrGenerationTimeout, "complete", err)
		case status >= 500:
			return domain.WrapError(domain.ErrGenerationUnavailable, "complete", err)
		default:
			return domain.WrapError(domain.ErrInvalidInput, "complete", err)
		}
	}
	return domain.WrapError(domain.ErrGenerationUnavailable, "complete", err)
}
