package usecase

import (
	"github.com/cwhealth/policy-qa/internal/core/domain"
)

const (
	highConfidenceThreshold   = 0.75
	mediumConfidenceThreshold = 0.5
)

const (
	safetyFlagNegationMismatch = "negation_mismatch"
	safetyFlagLowConfidence    = "low_confidence"
	safetyFlagRegenFailed      = "regeneration_failed"
)

// ConfidenceInput collects the signals the router combines: the gate's
// decision, the approved assessments, the diversified results and the
// critique verdict.
type ConfidenceInput struct {
	Action             domain.CorrectiveAction
	Assessments        []domain.QualityAssessment
	Reranked           []domain.RerankResult
	Critique           domain.CritiqueResult
	RegenerationFailed bool
}

// ConfidenceVerdict is what routing decides: a tier, a numeric score,
// whether a human should look, and machine-readable safety flags.
type ConfidenceVerdict struct {
	Tier             domain.ConfidenceTier
	Score            float64
	NeedsHumanReview bool
	SafetyFlags      []string
}

// ScoreConfidence combines retrieval-quality, grounding and critique
// signals into a single tier. A refusal upstream or a failed
// regeneration forces the low tier; the system never fabricates an
// answer once retrieval or critique has signaled insufficient grounding.
func ScoreConfidence(in ConfidenceInput) ConfidenceVerdict {
	verdict := ConfidenceVerdict{}

	if mismatch := hasNegationMismatch(in); mismatch {
		verdict.SafetyFlags = append(verdict.SafetyFlags, safetyFlagNegationMismatch)
		verdict.NeedsHumanReview = true
	}

	if in.Action.Action == domain.ActionRefuse || in.RegenerationFailed {
		if in.RegenerationFailed {
			verdict.SafetyFlags = append(verdict.SafetyFlags, safetyFlagRegenFailed)
		}
		verdict.SafetyFlags = append(verdict.SafetyFlags, safetyFlagLowConfidence)
		verdict.Tier = domain.ConfidenceLow
		verdict.Score = 0
		verdict.NeedsHumanReview = true
		return verdict
	}

	retrieval := retrievalQuality(in)
	verdict.Score = clamp01(0.5*retrieval + 0.5*in.Critique.Confidence)

	switch {
	case verdict.Score >= highConfidenceThreshold && in.Critique.OverallPass:
		verdict.Tier = domain.ConfidenceHigh
	case verdict.Score >= mediumConfidenceThreshold:
		verdict.Tier = domain.ConfidenceMedium
	default:
		verdict.Tier = domain.ConfidenceLow
	}

	if verdict.Tier == domain.ConfidenceLow {
		verdict.SafetyFlags = append(verdict.SafetyFlags, safetyFlagLowConfidence)
		verdict.NeedsHumanReview = true
	}
	return verdict
}

func retrievalQuality(in ConfidenceInput) float64 {
	if len(in.Assessments) > 0 {
		sum := 0.0
		for _, a := range in.Assessments {
			sum += a.Score
		}
		return sum / float64(len(in.Assessments))
	}
	if len(in.Reranked) > 0 {
		return clamp01(in.Reranked[0].AdjustedScore)
	}
	return 0
}

func hasNegationMismatch(in ConfidenceInput) bool {
	for _, a := range in.Assessments {
		for _, reason := range a.Reasons {
			if reason == reasonNegationMismatch {
				return true
			}
		}
	}
	return false
}
