package domain

type SearchFilter struct {
	AppliesTo string
}

// RetrievedDocument is one ranked passage returned by the retrieval
// service. Owned transiently per request, never persisted.
type RetrievedDocument struct {
	ID              string  `json:"id,omitempty"`
	Content         string  `json:"content"`
	Title           string  `json:"title"`
	ReferenceNumber string  `json:"reference_number"`
	Section         string  `json:"section,omitempty"`
	AppliesTo       string  `json:"applies_to,omitempty"`
	SourceFile      string  `json:"source_file,omitempty"`
	Score           float64 `json:"score"`
	RerankerScore   float64 `json:"reranker_score,omitempty"`
	SubQueryIndex   int     `json:"sub_query_index,omitempty"`
}

type QualityTag string

const (
	QualityRelevant   QualityTag = "relevant"
	QualityAmbiguous  QualityTag = "ambiguous"
	QualityIrrelevant QualityTag = "irrelevant"
)

// QualityAssessment is the corrective gate's verdict on one document.
// Computed deterministically from (query, document), no hidden state.
type QualityAssessment struct {
	DocumentIndex int        `json:"document_index"`
	Tag           QualityTag `json:"tag"`
	Score         float64    `json:"score"`
	Reasons       []string   `json:"reasons,omitempty"`
}

type ActionTag string

const (
	ActionProceed   ActionTag = "proceed"
	ActionDecompose ActionTag = "decompose"
	ActionRefuse    ActionTag = "refuse"
)

// CorrectiveAction is the gate's decision for one retrieval round.
type CorrectiveAction struct {
	Action          ActionTag  `json:"action"`
	ApprovedIndices []int      `json:"approved_indices,omitempty"`
	SubQueries      []SubQuery `json:"sub_queries,omitempty"`
	Message         string     `json:"message,omitempty"`
}

// RerankResult is a retrieved document after diversity adjustment. The
// slice ordering is the contract surface consumed downstream.
type RerankResult struct {
	Document      RetrievedDocument `json:"document"`
	AdjustedScore float64           `json:"adjusted_score"`
	OriginalRank  int               `json:"original_rank"`
}
