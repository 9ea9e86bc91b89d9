package usecase

import (
	"strings"
	"unicode"

	"github.com/cwhealth/policy-qa/internal/core/rules"
)

func tokenOverlap(query, text map[string]struct{}) float64 {
	if len(query) == 0 || len(text) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := text[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// significantTokenSet drops stopwords so overlap ratios reflect content
// words only.
func significantTokenSet(s string, ruleSet *rules.Set) map[string]struct{} {
	out := make(map[string]struct{})
	for _, token := range splitAlphaNumLower(s) {
		if ruleSet.IsStopword(token) {
			continue
		}
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func containsPhrase(text, phrase string) bool {
	textTokens := splitAlphaNumLower(text)
	phraseTokens := splitAlphaNumLower(phrase)
	return phraseSpanAt(textTokens, phraseTokens) >= 0
}

// phraseSpanAt returns the first token index where phrase occurs as a
// contiguous token subsequence, or -1.
func phraseSpanAt(tokens, phrase []string) int {
	if len(phrase) == 0 || len(tokens) < len(phrase) {
		return -1
	}
	for start := 0; start+len(phrase) <= len(tokens); start++ {
		match := true
		for i, p := range phrase {
			if tokens[start+i] != p {
				match = false
				break
			}
		}
		if match {
			return start
		}
	}
	return -1
}
