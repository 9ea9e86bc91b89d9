package domain

// CritiqueResult is the self-critique verdict on a generated answer.
type CritiqueResult struct {
	IsRelevant        bool     `json:"is_relevant"`
	IsGrounded        bool     `json:"is_grounded"`
	IsSupported       bool     `json:"is_supported"`
	OverallPass       bool     `json:"overall_pass"`
	Confidence        float64  `json:"confidence"`
	Issues            []string `json:"issues,omitempty"`
	UnsupportedClaims []string `json:"unsupported_claims,omitempty"`
	ShouldRegenerate  bool     `json:"should_regenerate"`
}

type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

type MatchType string

const (
	// MatchVerified means the evidence came from an exact reference match.
	MatchVerified MatchType = "verified"
	// MatchRelated means the evidence came from a fallback search.
	MatchRelated MatchType = "related"
)

// EvidenceItem is the externally visible citation unit, distinct from the
// internal RetrievedDocument which also carries scoring metadata.
type EvidenceItem struct {
	Snippet         string    `json:"snippet"`
	Citation        string    `json:"citation"`
	Title           string    `json:"title"`
	ReferenceNumber string    `json:"reference_number"`
	Section         string    `json:"section,omitempty"`
	AppliesTo       string    `json:"applies_to,omitempty"`
	Score           float64   `json:"score"`
	MatchType       MatchType `json:"match_type"`
}

// Citation is a machine-readable reference emitted by the completion
// service alongside the answer text.
type Citation struct {
	ReferenceNumber string `json:"reference_number"`
}

// Completion is the raw output of the completion service.
type Completion struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

// AnswerResult is the single outbound shape of the pipeline. A refusal is
// a well-formed result with Found=false, never an error.
type AnswerResult struct {
	Response         string         `json:"response"`
	Summary          string         `json:"summary"`
	Evidence         []EvidenceItem `json:"evidence"`
	Confidence       ConfidenceTier `json:"confidence"`
	ConfidenceScore  float64        `json:"confidence_score"`
	NeedsHumanReview bool           `json:"needs_human_review"`
	SafetyFlags      []string       `json:"safety_flags,omitempty"`
	Found            bool           `json:"found"`
	ChunksUsed       int            `json:"chunks_used"`
}
