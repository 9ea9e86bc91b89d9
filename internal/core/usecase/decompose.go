package usecase

import (
	"regexp"
	"strings"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/rules"
)

const (
	minSubQueries = 2
	maxSubQueries = 4
)

// Decomposer splits compound questions into independently retrievable
// sub-queries. Detection order: comparison, multi-topic, conditional,
// then a topic-group fallback. Sub-queries never decompose further.
type Decomposer struct {
	rules *rules.Set
}

func NewDecomposer(ruleSet *rules.Set) *Decomposer {
	return &Decomposer{rules: ruleSet}
}

var (
	comparisonTriggers = []*regexp.Regexp{
		regexp.MustCompile(`\bcompare\b`),
		regexp.MustCompile(`\bdifference between\b`),
		regexp.MustCompile(`\bvs\.?\b`),
		regexp.MustCompile(`\bversus\b`),
		regexp.MustCompile(`\bcompared (?:to|with)\b`),
	}
	multiTopicTriggers = []*regexp.Regexp{
		regexp.MustCompile(`\bboth\b`),
		regexp.MustCompile(`\ball policies\b`),
		regexp.MustCompile(`\bmultiple\b`),
		regexp.MustCompile(`\bas well as\b`),
	}
	conditionalTrigger = regexp.MustCompile(`\bif\b.+\b(?:then|what|does|do|can|should|is|are)\b`)

	comparisonSplit = regexp.MustCompile(`\s+(?:and|vs\.?|versus|with|to)\s+`)
	topicSplit      = regexp.MustCompile(`\s*(?:,|\band\b|\bas well as\b)\s*`)
)

func (d *Decomposer) Decompose(query domain.Query) domain.DecompositionResult {
	text := strings.ToLower(strings.TrimSpace(query.NormalizedText))
	if text == "" {
		return domain.DecompositionResult{Type: domain.DecompositionNone}
	}

	if matchesAny(text, comparisonTriggers) {
		if subs := d.extractComparison(text); len(subs) >= minSubQueries {
			return buildResult(domain.DecompositionComparison, subs)
		}
	}
	if matchesAny(text, multiTopicTriggers) {
		if subs := d.extractTopics(text); len(subs) >= minSubQueries {
			return buildResult(domain.DecompositionMultiTopic, subs)
		}
	}
	if conditionalTrigger.MatchString(text) {
		if subs := d.extractConditional(text); len(subs) >= minSubQueries {
			return buildResult(domain.DecompositionConditional, subs)
		}
	}
	// No explicit trigger: two or more distinct topic groups in one
	// question still implies a multi-topic decomposition.
	if subs := d.extractTopicGroups(text); len(subs) >= minSubQueries {
		return buildResult(domain.DecompositionMultiTopic, subs)
	}

	return domain.DecompositionResult{Type: domain.DecompositionNone}
}

func buildResult(kind domain.DecompositionType, texts []string) domain.DecompositionResult {
	if len(texts) > maxSubQueries {
		texts = texts[:maxSubQueries]
	}
	subs := make([]domain.SubQuery, 0, len(texts))
	for i, text := range texts {
		subs = append(subs, domain.SubQuery{Text: text, Index: i, Type: kind})
	}
	return domain.DecompositionResult{
		NeedsDecomposition: true,
		Type:               kind,
		SubQueries:         subs,
	}
}

// extractComparison reconstructs two retrievable forms per compared
// topic: the policy itself and its requirements.
func (d *Decomposer) extractComparison(text string) []string {
	body := text
	for _, prefix := range []string{"compare the ", "compare ", "what is the difference between ", "difference between "} {
		if strings.HasPrefix(body, prefix) {
			body = strings.TrimPrefix(body, prefix)
			break
		}
	}
	body = strings.Trim(body, " ?.!")

	parts := comparisonSplit.Split(body, 2)
	if len(parts) != 2 {
		return nil
	}

	var subs []string
	for _, part := range parts {
		topic := trimTopic(part)
		if topic == "" {
			continue
		}
		subs = append(subs, topic+" policy", topic+" requirements")
	}
	return subs
}

func (d *Decomposer) extractTopics(text string) []string {
	body := strings.Trim(text, " ?.!")
	parts := topicSplit.Split(body, -1)

	var subs []string
	for _, part := range parts {
		topic := trimTopic(part)
		if topic == "" || len(splitAlphaNumLower(topic)) > 6 {
			continue
		}
		subs = append(subs, topic+" policy")
	}
	return subs
}

func (d *Decomposer) extractConditional(text string) []string {
	idx := strings.Index(text, "if ")
	if idx < 0 {
		return nil
	}
	rest := text[idx+len("if "):]

	var condition, consequence string
	if comma := strings.Index(rest, ","); comma > 0 {
		condition = rest[:comma]
		consequence = rest[comma+1:]
	} else if then := strings.Index(rest, " then "); then > 0 {
		condition = rest[:then]
		consequence = rest[then+len(" then "):]
	} else if what := strings.Index(rest, " what "); what > 0 {
		condition = rest[:what]
		consequence = rest[what+1:]
	}

	condition = trimTopic(condition)
	consequence = strings.Trim(consequence, " ?.!")
	if condition == "" || consequence == "" {
		return nil
	}
	return []string{condition + " policy", consequence}
}

func (d *Decomposer) extractTopicGroups(text string) []string {
	var subs []string
	for _, group := range d.rules.TopicGroups {
		for _, keyword := range group.Keywords {
			if containsPhrase(text, keyword) {
				subs = append(subs, group.Topic+" policy")
				break
			}
		}
	}
	return subs
}

// trimTopic removes question scaffolding so the remaining phrase is a
// retrievable topic.
func trimTopic(part string) string {
	part = strings.Trim(part, " ?.!,")
	for _, noise := range []string{"policies", "policy", "the ", "a ", "an "} {
		part = strings.TrimSuffix(part, " "+noise)
		part = strings.TrimPrefix(part, noise)
	}
	return strings.TrimSpace(part)
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// MergeRoundRobin interleaves sub-query result lists (index 0 from each
// list, then index 1, ...) with deduplication, preserving diversity over
// raw rank.
func MergeRoundRobin(lists [][]domain.RetrievedDocument) []domain.RetrievedDocument {
	seen := make(map[string]struct{})
	var merged []domain.RetrievedDocument

	maxLen := 0
	for _, list := range lists {
		if len(list) > maxLen {
			maxLen = len(list)
		}
	}

	for rank := 0; rank < maxLen; rank++ {
		for listIdx, list := range lists {
			if rank >= len(list) {
				continue
			}
			doc := list[rank]
			key := dedupeKey(doc)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			doc.SubQueryIndex = listIdx
			merged = append(merged, doc)
		}
	}
	return merged
}

// dedupeKey prefers the explicit id, then the reference number, then a
// content prefix.
func dedupeKey(doc domain.RetrievedDocument) string {
	if doc.ID != "" {
		return "id:" + doc.ID
	}
	if doc.ReferenceNumber != "" {
		return "ref:" + doc.ReferenceNumber
	}
	content := strings.ToLower(doc.Content)
	if len(content) > 64 {
		content = content[:64]
	}
	return "content:" + content
}
