package usecase

import (
	"sort"
	"strings"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/rules"
)

const (
	DefaultMMRLambda          = 0.7
	DefaultMaxDiversified     = 10
	DefaultLowPriorityPenalty = 0.6
)

// ApplyCategoryPenalty down-weights documents matching the low-priority
// category keywords (rarely-invoked contingency policies) so a
// keyword-dense rare document cannot dominate a general query. Runs
// before MMR selection and re-sorts by the adjusted score.
func ApplyCategoryPenalty(docs []domain.RetrievedDocument, ruleSet *rules.Set, penalty float64) []domain.RetrievedDocument {
	if penalty <= 0 || penalty >= 1 {
		penalty = DefaultLowPriorityPenalty
	}

	out := make([]domain.RetrievedDocument, len(docs))
	copy(out, docs)
	for i := range out {
		haystack := strings.ToLower(out[i].Title + " " + out[i].Content)
		for _, keyword := range ruleSet.LowPriorityKeywords {
			if containsPhrase(haystack, keyword) {
				out[i].Score *= penalty
				break
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ReferenceNumber < out[j].ReferenceNumber
	})
	return out
}

type mmrCandidate struct {
	doc          domain.RetrievedDocument
	originalRank int
	normalized   float64
}

// Diversify applies greedy Maximal Marginal Relevance over the candidate
// set: highest relevance first, then repeatedly the candidate maximizing
// lambda*relevance - (1-lambda)*same_source_penalty. Relevance is min-max
// normalized so the penalty weight is comparable across score scales.
func Diversify(docs []domain.RetrievedDocument, lambda float64, maxResults int) []domain.RerankResult {
	if len(docs) == 0 {
		return nil
	}
	if lambda <= 0 || lambda > 1 {
		lambda = DefaultMMRLambda
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxDiversified
	}

	minScore := docs[0].Score
	maxScore := docs[0].Score
	for _, doc := range docs[1:] {
		if doc.Score < minScore {
			minScore = doc.Score
		}
		if doc.Score > maxScore {
			maxScore = doc.Score
		}
	}
	scoreRange := maxScore - minScore
	normalize := func(v float64) float64 {
		if scoreRange <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / scoreRange
	}

	remaining := make([]mmrCandidate, 0, len(docs))
	for i, doc := range docs {
		remaining = append(remaining, mmrCandidate{
			doc:          doc,
			originalRank: i,
			normalized:   normalize(doc.Score),
		})
	}

	selectedSources := make(map[string]struct{})
	selected := make([]domain.RerankResult, 0, maxResults)
	for len(remaining) > 0 && len(selected) < maxResults {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], lambda, selectedSources)
		for idx := 1; idx < len(remaining); idx++ {
			score := mmrScore(remaining[idx], lambda, selectedSources)
			if score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}

		best := remaining[bestIdx]
		selected = append(selected, domain.RerankResult{
			Document:      best.doc,
			AdjustedScore: best.doc.Score,
			OriginalRank:  best.originalRank,
		})
		selectedSources[sourceKey(best.doc)] = struct{}{}
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func mmrScore(c mmrCandidate, lambda float64, selectedSources map[string]struct{}) float64 {
	penalty := 0.0
	if _, ok := selectedSources[sourceKey(c.doc)]; ok {
		penalty = 1.0
	}
	return lambda*c.normalized - (1-lambda)*penalty
}

func sourceKey(doc domain.RetrievedDocument) string {
	if doc.SourceFile != "" {
		return doc.SourceFile
	}
	if doc.ReferenceNumber != "" {
		return doc.ReferenceNumber
	}
	return doc.Title
}
