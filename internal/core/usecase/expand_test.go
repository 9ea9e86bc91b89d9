package usecase

import (
	"strings"
	"testing"

	"github.com/cwhealth/policy-qa/internal/core/rules"
)

func newTestExpander(t *testing.T) *Expander {
	t.Helper()
	return NewExpander(rules.MustLoad(), DefaultExpanderConfig())
}

func TestExpandSpecificCompoundSuppressesGenericExpansion(t *testing.T) {
	expander := newTestExpander(t)

	query, expansion := expander.Expand("How often should a peripheral IV be replaced?")
	for _, term := range expansion.AddedTerms {
		if strings.Contains(term, "foley") || strings.Contains(term, "picc") {
			t.Fatalf("peripheral IV query acquired unrelated term %q", term)
		}
	}
	if !strings.Contains(query.SearchText, "peripheral intravenous catheter") {
		t.Fatalf("expected specific expansion in search text, got %q", query.SearchText)
	}
}

func TestExpandGenericCatheterStillExpands(t *testing.T) {
	expander := newTestExpander(t)

	_, expansion := expander.Expand("What is the catheter care policy?")
	found := false
	for _, term := range expansion.AddedTerms {
		if strings.Contains(term, "foley") || strings.Contains(term, "urinary") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected generic catheter expansion, got %v", expansion.AddedTerms)
	}
}

func TestExpandExtractsLocationContextWithoutOrphanedPunctuation(t *testing.T) {
	expander := newTestExpander(t)

	query, _ := expander.Expand("Can family members be present at the bedside, during rounds?")
	if query.LocationContext != "at the bedside" {
		t.Fatalf("expected location context, got %q", query.LocationContext)
	}
	if strings.Contains(query.NormalizedText, " ,") || strings.Contains(query.NormalizedText, "  ") {
		t.Fatalf("orphaned punctuation left after location removal: %q", query.NormalizedText)
	}
}

func TestExpandLocationOnlyQueryNormalizesToEmpty(t *testing.T) {
	expander := newTestExpander(t)

	query, _ := expander.Expand("in a patient room")
	if !query.IsEmpty() {
		t.Fatalf("expected empty normalized query, got %q", query.NormalizedText)
	}
}

func TestExpandAppliesAbbreviationsAndMisspellings(t *testing.T) {
	expander := newTestExpander(t)

	query, expansion := expander.Expand("What is the hand hygeine policy for PPE use?")
	if !strings.Contains(query.NormalizedText, "hygiene") {
		t.Fatalf("expected misspelling correction, got %q", query.NormalizedText)
	}
	if !strings.Contains(query.NormalizedText, "personal protective equipment") {
		t.Fatalf("expected abbreviation expansion, got %q", query.NormalizedText)
	}
	if len(expansion.Misspellings) != 1 || expansion.Misspellings[0].Original != "hygeine" {
		t.Fatalf("expected recorded misspelling correction, got %v", expansion.Misspellings)
	}
	if len(expansion.Abbreviations) != 1 || expansion.Abbreviations[0].Original != "ppe" {
		t.Fatalf("expected recorded abbreviation, got %v", expansion.Abbreviations)
	}
}

func TestExpandStripsPossessives(t *testing.T) {
	expander := newTestExpander(t)

	query, _ := expander.Expand("What does the Joint Commission's standard require?")
	if strings.Contains(query.NormalizedText, "'s") {
		t.Fatalf("possessive not stripped: %q", query.NormalizedText)
	}
}

func TestExpandStepsAreToggleable(t *testing.T) {
	cfg := DefaultExpanderConfig()
	cfg.ExpandCompounds = false
	expander := NewExpander(rules.MustLoad(), cfg)

	query, expansion := expander.Expand("peripheral IV policy")
	if len(expansion.AddedTerms) != 0 {
		t.Fatalf("expected no compound expansion when disabled, got %v", expansion.AddedTerms)
	}
	if query.SearchText != query.NormalizedText {
		t.Fatalf("search text should equal normalized text when expansion disabled")
	}
}
