package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/rules"
)

const (
	relevantThreshold  = 0.6
	ambiguousThreshold = 0.3

	overlapCap      = 0.4
	domainSignalCap = 0.2
	negationCap     = 0.2
	titleCap        = 0.2
)

const reasonNegationMismatch = "negation mismatch: query implies a restriction the document does not state"

// QualityGate is the pre-generation corrective retrieval gate: it scores
// each retrieved passage against the query and decides whether to
// proceed, decompose further, or refuse.
type QualityGate struct {
	rules      *rules.Set
	decomposer *Decomposer
}

func NewQualityGate(ruleSet *rules.Set, decomposer *Decomposer) *QualityGate {
	return &QualityGate{rules: ruleSet, decomposer: decomposer}
}

// Assess scores every document. Deterministic per (query, document).
func (g *QualityGate) Assess(query domain.Query, docs []domain.RetrievedDocument) []domain.QualityAssessment {
	queryTokens := significantTokenSet(query.NormalizedText, g.rules)
	queryNegated := g.hasNegation(query.NormalizedText)

	assessments := make([]domain.QualityAssessment, 0, len(docs))
	for i, doc := range docs {
		assessments = append(assessments, g.assessOne(queryTokens, queryNegated, i, doc))
	}
	return assessments
}

func (g *QualityGate) assessOne(queryTokens map[string]struct{}, queryNegated bool, index int, doc domain.RetrievedDocument) domain.QualityAssessment {
	var score float64
	var reasons []string

	contentTokens := toTokenSet(doc.Content)
	overlap := tokenOverlap(queryTokens, contentTokens)
	overlapScore := overlapCap * overlap
	score += overlapScore
	reasons = append(reasons, fmt.Sprintf("term overlap %.2f", overlap))

	signalHits := 0
	lowerContent := strings.ToLower(doc.Content)
	for _, term := range g.rules.DomainSignalTerms {
		if containsPhrase(lowerContent, term) {
			signalHits++
		}
	}
	signalScore := domainSignalCap * minFloat(1, float64(signalHits)/4)
	score += signalScore
	if signalHits > 0 {
		reasons = append(reasons, fmt.Sprintf("%d domain signal terms", signalHits))
	}

	// Negation alignment is lexical, not semantic: presence on both sides
	// is rewarded even when coincidental. A query that implies a
	// prohibition matched against a document that states none is the
	// dangerous case and is penalized hardest.
	docNegated := g.hasNegation(lowerContent)
	switch {
	case queryNegated && docNegated:
		score += negationCap
		reasons = append(reasons, "negation aligned")
	case !queryNegated && !docNegated:
		score += negationCap / 2
	case queryNegated && !docNegated:
		score -= 0.15
		reasons = append(reasons, reasonNegationMismatch)
	default:
		score -= 0.05
		reasons = append(reasons, "document negation absent from query")
	}

	titleOverlap := tokenOverlap(queryTokens, toTokenSet(doc.Title))
	score += titleCap * titleOverlap
	if titleOverlap > 0 {
		reasons = append(reasons, fmt.Sprintf("title overlap %.2f", titleOverlap))
	}

	score = clamp01(score)

	tag := domain.QualityIrrelevant
	switch {
	case score >= relevantThreshold:
		tag = domain.QualityRelevant
	case score >= ambiguousThreshold:
		tag = domain.QualityAmbiguous
	}

	return domain.QualityAssessment{
		DocumentIndex: index,
		Tag:           tag,
		Score:         score,
		Reasons:       reasons,
	}
}

// Decide applies the corrective policy as a strict priority list; only
// the first matching case fires.
func (g *QualityGate) Decide(query domain.Query, assessments []domain.QualityAssessment) domain.CorrectiveAction {
	relevant := filterByTag(assessments, domain.QualityRelevant)
	ambiguous := filterByTag(assessments, domain.QualityAmbiguous)

	switch {
	case len(relevant) >= 2:
		return domain.CorrectiveAction{
			Action:          domain.ActionProceed,
			ApprovedIndices: indicesOf(relevant),
			Message:         fmt.Sprintf("%d relevant documents", len(relevant)),
		}
	case len(relevant) >= 1 && len(ambiguous) >= 1:
		approved := append(indicesOf(relevant), indicesOf(topNByScore(ambiguous, 2))...)
		return domain.CorrectiveAction{
			Action:          domain.ActionProceed,
			ApprovedIndices: approved,
			Message:         "relevant plus top ambiguous documents",
		}
	case len(ambiguous) >= 2:
		if g.decomposer != nil {
			if result := g.decomposer.Decompose(query); result.NeedsDecomposition {
				return domain.CorrectiveAction{
					Action:     domain.ActionDecompose,
					SubQueries: result.SubQueries,
					Message:    "ambiguous matches only; retrying with sub-queries",
				}
			}
		}
		return domain.CorrectiveAction{
			Action:          domain.ActionProceed,
			ApprovedIndices: indicesOf(ambiguous),
			Message:         "ambiguous documents only",
		}
	default:
		return domain.CorrectiveAction{
			Action:  domain.ActionRefuse,
			Message: "no sufficiently relevant policy documents found",
		}
	}
}

// DecideFinal is the post-decomposition round: same policy but with the
// decompose branch disabled, since sub-queries never decompose further.
func (g *QualityGate) DecideFinal(query domain.Query, assessments []domain.QualityAssessment) domain.CorrectiveAction {
	gate := QualityGate{rules: g.rules}
	return gate.Decide(query, assessments)
}

func (g *QualityGate) hasNegation(text string) bool {
	for _, term := range g.rules.NegationTerms {
		if containsPhrase(text, term) {
			return true
		}
	}
	return false
}

func filterByTag(assessments []domain.QualityAssessment, tag domain.QualityTag) []domain.QualityAssessment {
	var out []domain.QualityAssessment
	for _, a := range assessments {
		if a.Tag == tag {
			out = append(out, a)
		}
	}
	return out
}

func topNByScore(assessments []domain.QualityAssessment, n int) []domain.QualityAssessment {
	sorted := make([]domain.QualityAssessment, len(assessments))
	copy(sorted, assessments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func indicesOf(assessments []domain.QualityAssessment) []int {
	out := make([]int, 0, len(assessments))
	for _, a := range assessments {
		out = append(out, a.DocumentIndex)
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
