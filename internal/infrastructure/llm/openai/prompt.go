package openai

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cwhealth/policy-qa/internal/core/domain"
)

const systemPreamble = `You are a hospital policy assistant. Answer the question using ONLY the policy excerpts below.
Cite the reference number (for example "Ref #HH-01") for every statement you make.
If the excerpts do not answer the question, say so plainly instead of guessing.`

func buildSystemPrompt(contexts []domain.RetrievedDocument, instructions []string) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nPolicy excerpts:\n")

	for _, doc := range contexts {
		b.WriteString(fmt.Sprintf("\nRef #%s — %s", doc.ReferenceNumber, doc.Title))
		if doc.Section != "" {
			b.WriteString(fmt.Sprintf(" (Section: %s)", doc.Section))
		}
		b.WriteString("\n")
		b.WriteString(doc.Content)
		b.WriteString("\n")
	}

	if len(instructions) > 0 {
		b.WriteString("\nAdditional instructions:\n")
		for _, instruction := range instructions {
			b.WriteString("- ")
			b.WriteString(instruction)
			b.WriteString("\n")
		}
	}
	return b.String()
}

var citationPattern = regexp.MustCompile(`(?i)ref\s*#\s*([a-z0-9][a-z0-9.-]*)`)

// parseCitations extracts the Ref #N tokens back out of the answer text
// as machine-readable citations, first occurrence wins.
func parseCitations(text string) []domain.Citation {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	citations := make([]domain.Citation, 0, len(matches))
	for _, match := range matches {
		ref := strings.TrimRight(match[1], ".-")
		key := strings.ToLower(ref)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, domain.Citation{ReferenceNumber: ref})
	}
	return citations
}
