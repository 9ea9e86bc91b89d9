package usecase

import (
	"testing"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/rules"
)

func newTestCritic(t *testing.T) *Critic {
	t.Helper()
	return NewCritic(rules.MustLoad())
}

func testContexts() []domain.RetrievedDocument {
	return []domain.RetrievedDocument{
		{ReferenceNumber: "IC-101", Content: "Hand hygiene must be performed before and after every patient contact using soap or an alcohol based hand rub."},
		{ReferenceNumber: "IC-102", Content: "Gloves are required when contact with blood or body fluids is anticipated."},
	}
}

func TestCritiquePassesGroundedAnswer(t *testing.T) {
	critic := newTestCritic(t)
	query := domain.Query{NormalizedText: "hand hygiene before patient contact"}
	answer := "According to Ref #IC-101, the hand hygiene policy requires staff to perform hand hygiene before and after every patient contact. See the procedure in the referenced section."

	result := critic.Critique(answer, query, testContexts())
	if !result.IsRelevant {
		t.Fatalf("expected relevant answer")
	}
	if !result.IsGrounded {
		t.Fatalf("expected grounded answer")
	}
	if !result.IsSupported {
		t.Fatalf("expected supported answer, claims: %v", result.UnsupportedClaims)
	}
	if !result.OverallPass {
		t.Fatalf("expected overall pass, confidence %.2f issues %v", result.Confidence, result.Issues)
	}
	if result.ShouldRegenerate {
		t.Fatalf("did not expect regeneration, issues: %v", result.Issues)
	}
}

func TestCritiqueFlagsMissingCitations(t *testing.T) {
	critic := newTestCritic(t)
	query := domain.Query{NormalizedText: "hand hygiene before patient contact"}
	answer := "Staff wash hands before touching anyone."

	result := critic.Critique(answer, query, testContexts())
	if result.IsGrounded {
		t.Fatalf("expected is_grounded=false for citation-free answer")
	}
	if !result.ShouldRegenerate {
		t.Fatalf("ungrounded answers must always regenerate")
	}
}

func TestCritiqueFlagsSpeculativeLanguage(t *testing.T) {
	critic := newTestCritic(t)
	query := domain.Query{NormalizedText: "hand hygiene before patient contact"}
	answer := "According to Ref #IC-101, the hand hygiene policy requires cleaning before patient contact. Most hospitals typically also require it after removing gloves, and it might apply to visitors."

	result := critic.Critique(answer, query, testContexts())
	if result.IsSupported {
		t.Fatalf("expected unsupported claims to be flagged")
	}
	if len(result.UnsupportedClaims) < 2 {
		t.Fatalf("expected at least 2 unsupported claims, got %v", result.UnsupportedClaims)
	}
	if !result.ShouldRegenerate {
		t.Fatalf("two or more unsupported claims must trigger regeneration")
	}
}

func TestCritiqueAllowsPhrasesPresentInContexts(t *testing.T) {
	critic := newTestCritic(t)
	query := domain.Query{NormalizedText: "hand hygiene before patient contact"}
	contexts := []domain.RetrievedDocument{
		{ReferenceNumber: "IC-101", Content: "Hand hygiene is typically performed with an alcohol based hand rub per this policy and procedure standard."},
	}
	answer := "According to Ref #IC-101, hand hygiene is typically performed with an alcohol based hand rub, per the policy procedure."

	result := critic.Critique(answer, query, contexts)
	if !result.IsSupported {
		t.Fatalf("phrase present verbatim in context should not be an unsupported claim: %v", result.UnsupportedClaims)
	}
}

func TestCritiqueConfidenceFloorsAtZero(t *testing.T) {
	critic := newTestCritic(t)
	query := domain.Query{NormalizedText: "foley catheter insertion documentation requirements"}
	answer := "I think it probably might perhaps possibly be fine, presumably, and usually most hospitals generally agree as a rule, commonly, in general, i believe."

	result := critic.Critique(answer, query, nil)
	if result.Confidence < 0 {
		t.Fatalf("confidence must be floored at 0, got %.2f", result.Confidence)
	}
	if result.OverallPass {
		t.Fatalf("expected failure for pure speculation")
	}
}

func TestRegenerationInstructionsAreIssueSpecific(t *testing.T) {
	instructions := RegenerationInstructions(domain.CritiqueResult{
		IsRelevant:  true,
		IsGrounded:  false,
		IsSupported: true,
	})
	if len(instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %v", instructions)
	}
	if instructions[0] == "" || !containsPhrase(instructions[0], "reference number") {
		t.Fatalf("expected grounding-specific instruction, got %q", instructions[0])
	}
}
