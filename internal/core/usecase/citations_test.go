package usecase

import (
	"strings"
	"testing"

	"github.com/cwhealth/policy-qa/internal/core/domain"
)

func sampleEvidence() []domain.EvidenceItem {
	return []domain.EvidenceItem{
		{ReferenceNumber: "IC-101", Title: "Hand Hygiene", Section: "2.1", AppliesTo: "All Staff"},
		{ReferenceNumber: "IC-102", Title: "PPE Use", Section: "3.4", AppliesTo: "Clinical Staff"},
		{ReferenceNumber: "IC-101", Title: "Hand Hygiene duplicate"},
	}
}

func TestFormatCitationsDeduplicatesAndNumbers(t *testing.T) {
	out := FormatCitations("The policy requires hand hygiene.", sampleEvidence(), true, 5)

	if len(out.References) != 2 {
		t.Fatalf("expected 2 deduplicated references, got %d: %v", len(out.References), out.References)
	}
	if !strings.HasPrefix(out.References[0], "1. Ref #IC-101 — Hand Hygiene (Section: 2.1; Applies To: All Staff)") {
		t.Fatalf("unexpected first reference line: %q", out.References[0])
	}
	if !strings.HasPrefix(out.References[1], "2. Ref #IC-102") {
		t.Fatalf("unexpected second reference line: %q", out.References[1])
	}
	if !strings.Contains(out.Response, "References:") {
		t.Fatalf("expected reference block in response")
	}
}

func TestFormatCitationsTruncatesWithOverflowNote(t *testing.T) {
	evidence := []domain.EvidenceItem{
		{ReferenceNumber: "R-1", Title: "One"},
		{ReferenceNumber: "R-2", Title: "Two"},
		{ReferenceNumber: "R-3", Title: "Three"},
		{ReferenceNumber: "R-4", Title: "Four"},
	}
	out := FormatCitations("answer text here.", evidence, true, 2)

	if len(out.References) != 3 {
		t.Fatalf("expected 2 refs + overflow note, got %v", out.References)
	}
	if !strings.Contains(out.References[2], "2 additional reference(s)") {
		t.Fatalf("expected overflow note, got %q", out.References[2])
	}
}

func TestFormatCitationsPassThroughOnRefusal(t *testing.T) {
	out := FormatCitations("No relevant policy was found.", sampleEvidence(), false, 5)
	if len(out.References) != 0 {
		t.Fatalf("refusal path must not fabricate citations, got %v", out.References)
	}
	if out.Response != "No relevant policy was found." {
		t.Fatalf("refusal response must pass through unchanged, got %q", out.Response)
	}

	out = FormatCitations("", sampleEvidence(), true, 5)
	if out.Response != "" || len(out.References) != 0 {
		t.Fatalf("empty answer must pass through")
	}

	out = FormatCitations("answer", nil, true, 5)
	if len(out.References) != 0 {
		t.Fatalf("no evidence must mean no reference block")
	}
}

func TestFormatCitationsIsIdempotent(t *testing.T) {
	first := FormatCitations("The policy requires hand hygiene.", sampleEvidence(), true, 5)
	second := FormatCitations(first.Response, sampleEvidence(), true, 5)

	if second.Response != first.Response {
		t.Fatalf("reformatting duplicated the reference block:\n%s", second.Response)
	}
	if strings.Count(second.Response, "References:") != 1 {
		t.Fatalf("expected exactly one reference block, got %d", strings.Count(second.Response, "References:"))
	}
}

func TestSummarizeTakesFirstSentence(t *testing.T) {
	out := FormatCitations("Hand hygiene is required. Additional detail follows here.", sampleEvidence(), true, 5)
	if out.Summary != "Hand hygiene is required." {
		t.Fatalf("unexpected summary %q", out.Summary)
	}
}
