package usecase

import (
	"fmt"
	"strings"

	"github.com/cwhealth/policy-qa/internal/core/domain"
)

const (
	DefaultMaxReferences = 5

	referencesHeader = "References:"
	summaryMaxChars  = 200
)

// FormattedAnswer is the formatter's output: the caller-facing response
// with the reference block appended, a short summary, and the rendered
// reference lines.
type FormattedAnswer struct {
	Summary    string
	Response   string
	References []string
}

// FormatCitations deduplicates evidence by reference identifier (first
// occurrence wins, order preserved), truncates to maxRefs and appends a
// deterministic 1-indexed reference block. On a refusal path (empty
// answer, found=false, or no evidence) it is a pass-through: citations
// are never fabricated.
func FormatCitations(answer string, evidence []domain.EvidenceItem, found bool, maxRefs int) FormattedAnswer {
	if maxRefs <= 0 {
		maxRefs = DefaultMaxReferences
	}

	out := FormattedAnswer{
		Summary:  summarize(answer),
		Response: answer,
	}
	if answer == "" || !found || len(evidence) == 0 {
		return out
	}
	// Reformatting an already-formatted answer must not duplicate the
	// reference block.
	if strings.Contains(answer, "\n"+referencesHeader) {
		return out
	}

	deduped := dedupeEvidence(evidence)
	kept := deduped
	overflow := 0
	if len(kept) > maxRefs {
		overflow = len(kept) - maxRefs
		kept = kept[:maxRefs]
	}

	lines := make([]string, 0, len(kept)+1)
	for i, item := range kept {
		lines = append(lines, referenceLine(i+1, item))
	}
	if overflow > 0 {
		lines = append(lines, fmt.Sprintf("… plus %d additional reference(s) not shown", overflow))
	}

	out.References = lines
	out.Response = answer + "\n\n" + referencesHeader + "\n" + strings.Join(lines, "\n")
	return out
}

func dedupeEvidence(evidence []domain.EvidenceItem) []domain.EvidenceItem {
	seen := make(map[string]struct{}, len(evidence))
	out := make([]domain.EvidenceItem, 0, len(evidence))
	for _, item := range evidence {
		key := item.ReferenceNumber
		if key == "" {
			key = item.Title
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func referenceLine(n int, item domain.EvidenceItem) string {
	line := fmt.Sprintf("%d. Ref #%s — %s", n, item.ReferenceNumber, item.Title)

	var details []string
	if item.Section != "" {
		details = append(details, "Section: "+item.Section)
	}
	if item.AppliesTo != "" {
		details = append(details, "Applies To: "+item.AppliesTo)
	}
	if len(details) > 0 {
		line += " (" + strings.Join(details, "; ") + ")"
	}
	return line
}

func summarize(answer string) string {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ""
	}
	if idx := strings.Index(answer, ". "); idx > 0 {
		answer = answer[:idx+1]
	}
	if len(answer) > summaryMaxChars {
		answer = answer[:summaryMaxChars-1] + "…"
	}
	return answer
}
