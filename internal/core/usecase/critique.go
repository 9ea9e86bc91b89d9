package usecase

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/rules"
)

const (
	relevanceOverlapThreshold = 0.3
	minGroundingTerms         = 2
	critiquePassConfidence    = 0.6
	regenerateConfidenceFloor = 0.5
)

const (
	issueNotRelevant   = "answer does not address the question"
	issueNotGrounded   = "answer lacks citations or grounding markers"
	issueNotSupported  = "answer contains claims not supported by the retrieved policies"
	issueShortContexts = "answer generated from very few context passages"
)

var citationToken = regexp.MustCompile(`(?i)(ref(erence)?\s*#?\s*[a-z0-9][a-z0-9.-]*|\[\d+\])`)

// Critic heuristically evaluates a generated answer for topical
// relevance, grounding, and speculative language. It can request one
// stricter regeneration pass.
type Critic struct {
	rules *rules.Set
}

func NewCritic(ruleSet *rules.Set) *Critic {
	return &Critic{rules: ruleSet}
}

func (c *Critic) Critique(answer string, query domain.Query, contexts []domain.RetrievedDocument) domain.CritiqueResult {
	lowerAnswer := strings.ToLower(answer)
	var result domain.CritiqueResult

	queryTokens := significantTokenSet(query.NormalizedText, c.rules)
	overlap := tokenOverlap(queryTokens, toTokenSet(lowerAnswer))
	result.IsRelevant = overlap >= relevanceOverlapThreshold

	hasCitation := citationToken.MatchString(answer) || c.hasAttribution(lowerAnswer)
	groundingHits := 0
	for _, term := range c.rules.GroundingTerms {
		if containsPhrase(lowerAnswer, term) {
			groundingHits++
		}
	}
	result.IsGrounded = hasCitation && groundingHits >= minGroundingTerms

	result.UnsupportedClaims = c.findUnsupportedClaims(lowerAnswer, contexts)
	result.IsSupported = len(result.UnsupportedClaims) == 0

	if !result.IsRelevant {
		result.Issues = append(result.Issues, issueNotRelevant)
	}
	if !result.IsGrounded {
		result.Issues = append(result.Issues, issueNotGrounded)
	}
	if !result.IsSupported {
		result.Issues = append(result.Issues, issueNotSupported)
	}
	if len(contexts) < 2 {
		result.Issues = append(result.Issues, issueShortContexts)
	}

	result.Confidence = c.confidence(result, overlap, hasCitation, groundingHits)
	result.OverallPass = result.IsRelevant && result.IsGrounded && result.IsSupported &&
		result.Confidence >= critiquePassConfidence
	result.ShouldRegenerate = c.shouldRegenerate(result)
	return result
}

func (c *Critic) confidence(result domain.CritiqueResult, overlap float64, hasCitation bool, groundingHits int) float64 {
	var confidence float64

	if result.IsRelevant {
		confidence += 0.3
	} else {
		confidence += 0.2 * minFloat(1, overlap/relevanceOverlapThreshold)
	}

	switch {
	case result.IsGrounded:
		confidence += 0.3
	case hasCitation || groundingHits >= minGroundingTerms:
		confidence += 0.15
	}

	support := 0.4 - 0.1*float64(len(result.UnsupportedClaims))
	if support < 0 {
		support = 0
	}
	confidence += support

	return clamp01(confidence)
}

func (c *Critic) shouldRegenerate(result domain.CritiqueResult) bool {
	if !result.IsGrounded {
		return true
	}
	if len(result.UnsupportedClaims) >= 2 {
		return true
	}
	if result.Confidence < regenerateConfidenceFloor {
		return true
	}
	return len(result.Issues) >= 2
}

func (c *Critic) hasAttribution(lowerAnswer string) bool {
	for _, phrase := range c.rules.AttributionPhrases {
		if strings.Contains(lowerAnswer, phrase) {
			return true
		}
	}
	return false
}

// findUnsupportedClaims flags generalization and speculation phrases that
// do not appear verbatim in any supplied context.
func (c *Critic) findUnsupportedClaims(lowerAnswer string, contexts []domain.RetrievedDocument) []string {
	var claims []string
	check := func(phrases []string, label string) {
		for _, phrase := range phrases {
			if !containsPhrase(lowerAnswer, phrase) {
				continue
			}
			if phraseInContexts(phrase, contexts) {
				continue
			}
			claims = append(claims, fmt.Sprintf("%s: %q", label, phrase))
		}
	}
	check(c.rules.GeneralizationPhrases, "generalization")
	check(c.rules.SpeculationPhrases, "speculation")
	return claims
}

func phraseInContexts(phrase string, contexts []domain.RetrievedDocument) bool {
	for _, ctx := range contexts {
		if containsPhrase(strings.ToLower(ctx.Content), phrase) {
			return true
		}
	}
	return false
}

// RegenerationInstructions converts critique findings into stricter,
// issue-specific instructions for the next generation request.
func RegenerationInstructions(result domain.CritiqueResult) []string {
	var instructions []string
	if !result.IsGrounded {
		instructions = append(instructions,
			"Cite the specific policy reference number (Ref #N) for every statement you make.")
	}
	if !result.IsSupported {
		instructions = append(instructions,
			"Remove speculative or generalized language; state only what the provided policy excerpts say.")
	}
	if !result.IsRelevant {
		instructions = append(instructions,
			"Answer the question directly and only from the provided policy excerpts.")
	}
	if len(instructions) == 0 {
		instructions = append(instructions,
			"Answer strictly from the provided policy excerpts and cite each one you use.")
	}
	return instructions
}
