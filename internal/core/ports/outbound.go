package ports

import (
	"context"

	"github.com/cwhealth/policy-qa/internal/core/domain"
)

// PassageSearcher is the retrieval service boundary. Returns ranked
// passages with relevance scores; everything past that contract is the
// index's business.
type PassageSearcher interface {
	Search(ctx context.Context, query string, top int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error)
}

// AnswerGenerator is the completion service boundary. Instructions are
// appended on a critique-triggered regeneration pass.
type AnswerGenerator interface {
	Complete(ctx context.Context, question string, contexts []domain.RetrievedDocument, instructions []string) (domain.Completion, error)
}

// AuditPublisher hands an audit record to the transport. Callers treat
// this as fire-and-forget; failures are logged and swallowed.
type AuditPublisher interface {
	PublishAnswerAudit(ctx context.Context, record domain.AuditRecord) error
}

// AuditStore persists audit records on the worker side.
type AuditStore interface {
	Insert(ctx context.Context, record domain.AuditRecord) error
}
