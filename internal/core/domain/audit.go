package domain

import "time"

// AuditRecord is the best-effort trail of one answered question. It is
// published after the response has already been returned to the caller;
// losing one must never affect the request path.
type AuditRecord struct {
	ID         string         `json:"id"`
	Question   string         `json:"question"`
	Found      bool           `json:"found"`
	Confidence ConfidenceTier `json:"confidence"`
	Action     ActionTag      `json:"action"`
	ChunksUsed int            `json:"chunks_used"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}
