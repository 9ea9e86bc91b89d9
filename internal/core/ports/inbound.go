package ports

import (
	"context"

	"github.com/cwhealth/policy-qa/internal/core/domain"
)

// PolicyAnswerer is the inbound contract for the answer pipeline.
type PolicyAnswerer interface {
	Answer(ctx context.Context, question string, filter domain.SearchFilter) (*domain.AnswerResult, error)
}

// BreakerReporter exposes dependency breaker state for diagnostics.
type BreakerReporter interface {
	Snapshots() []domain.BreakerSnapshot
}
