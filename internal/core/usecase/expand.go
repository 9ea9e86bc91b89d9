package usecase

import (
	"regexp"
	"strings"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/rules"
)

// ExpanderConfig toggles each normalization step independently.
type ExpanderConfig struct {
	StripPossessives    bool
	ExtractLocations    bool
	ExpandAbbreviations bool
	CorrectMisspellings bool
	ExpandCompounds     bool
}

func DefaultExpanderConfig() ExpanderConfig {
	return ExpanderConfig{
		StripPossessives:    true,
		ExtractLocations:    true,
		ExpandAbbreviations: true,
		CorrectMisspellings: true,
		ExpandCompounds:     true,
	}
}

// Expander rewrites a raw question into a canonical search query plus
// auxiliary context. All rewriting is table-driven from the rule set.
type Expander struct {
	rules *rules.Set
	cfg   ExpanderConfig
}

func NewExpander(ruleSet *rules.Set, cfg ExpanderConfig) *Expander {
	return &Expander{rules: ruleSet, cfg: cfg}
}

var (
	spaceBeforePunct = regexp.MustCompile(`\s+([,;:.!?])`)
	repeatedPunct    = regexp.MustCompile(`([,;:.!?])(\s*[,;:])+`)
	multiSpace       = regexp.MustCompile(`\s{2,}`)
)

// Expand normalizes the raw query and records everything it did. The
// returned query may normalize to empty (e.g. a location phrase alone);
// callers must treat that as an insufficient query, not crash.
func (e *Expander) Expand(raw string) (domain.Query, domain.Expansion) {
	text := strings.ToLower(strings.TrimSpace(raw))
	var expansion domain.Expansion
	query := domain.Query{RawText: strings.TrimSpace(raw)}

	if e.cfg.StripPossessives {
		text = e.stripPossessives(text)
	}
	if e.cfg.ExtractLocations {
		text, query.LocationContext = e.extractLocation(text)
	}
	if e.cfg.ExpandAbbreviations {
		text = e.replaceTokens(text, abbreviationPairs(e.rules.Abbreviations), &expansion.Abbreviations)
	}
	if e.cfg.CorrectMisspellings {
		text = e.replaceTokens(text, misspellingPairs(e.rules.Misspellings), &expansion.Misspellings)
	}

	text = cleanupPunctuation(text)
	query.NormalizedText = text
	query.SearchText = text

	if e.cfg.ExpandCompounds && text != "" {
		added := e.expandCompounds(text)
		if len(added) > 0 {
			expansion.AddedTerms = added
			query.SearchText = text + " " + strings.Join(added, " ")
		}
	}
	return query, expansion
}

func (e *Expander) stripPossessives(text string) string {
	for _, noun := range e.rules.PossessiveNouns {
		noun = strings.ToLower(noun)
		text = strings.ReplaceAll(text, noun+"'s", noun)
		text = strings.ReplaceAll(text, noun+"’s", noun)
	}
	return text
}

// extractLocation moves location-context phrases into a side channel
// instead of leaving orphaned punctuation behind.
func (e *Expander) extractLocation(text string) (string, string) {
	var extracted []string
	for _, phrase := range e.rules.LocationPhrases {
		phrase = strings.ToLower(phrase)
		if !strings.Contains(text, phrase) {
			continue
		}
		extracted = append(extracted, phrase)
		text = strings.ReplaceAll(text, phrase, " ")
	}
	return text, strings.Join(extracted, "; ")
}

func abbreviationPairs(abbrevs []rules.Abbreviation) map[string]string {
	out := make(map[string]string, len(abbrevs))
	for _, a := range abbrevs {
		out[strings.ToLower(a.Short)] = strings.ToLower(a.Full)
	}
	return out
}

func misspellingPairs(misspellings []rules.Misspelling) map[string]string {
	out := make(map[string]string, len(misspellings))
	for _, m := range misspellings {
		out[strings.ToLower(m.Wrong)] = strings.ToLower(m.Right)
	}
	return out
}

func (e *Expander) replaceTokens(text string, replacements map[string]string, applied *[]domain.ReplacedTerm) string {
	fields := strings.Fields(text)
	changed := false
	for i, field := range fields {
		bare := strings.Trim(field, ",;:.!?\"'()")
		replacement, ok := replacements[bare]
		if !ok {
			continue
		}
		fields[i] = strings.Replace(field, bare, replacement, 1)
		*applied = append(*applied, domain.ReplacedTerm{Original: bare, Replaced: replacement})
		changed = true
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

// expandCompounds applies priority-stopping expansion: rules are ordered
// most-specific-first, and a fired rule claims its token span so no
// broader rule can also fire on it. A query about peripheral IVs must
// never acquire Foley-catheter terms.
func (e *Expander) expandCompounds(text string) []string {
	tokens := splitAlphaNumLower(text)
	claimed := make([]bool, len(tokens))
	present := toTokenSet(text)

	var added []string
	seen := make(map[string]struct{})
	for _, rule := range e.rules.CompoundTerms {
		phrase := splitAlphaNumLower(rule.Match)
		for start := 0; start+len(phrase) <= len(tokens); start++ {
			if !phraseMatchesAt(tokens, phrase, start) {
				continue
			}
			if spanClaimed(claimed, start, len(phrase)) {
				continue
			}
			claimSpan(claimed, start, len(phrase))
			for _, term := range rule.Terms {
				term = strings.ToLower(term)
				if _, ok := seen[term]; ok {
					continue
				}
				if _, inQuery := present[term]; inQuery {
					continue
				}
				seen[term] = struct{}{}
				added = append(added, term)
			}
		}
	}
	return added
}

func phraseMatchesAt(tokens, phrase []string, start int) bool {
	for i, p := range phrase {
		if tokens[start+i] != p {
			return false
		}
	}
	return true
}

func spanClaimed(claimed []bool, start, length int) bool {
	for i := start; i < start+length; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func claimSpan(claimed []bool, start, length int) {
	for i := start; i < start+length; i++ {
		claimed[i] = true
	}
}

func cleanupPunctuation(text string) string {
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = repeatedPunct.ReplaceAllString(text, "$1")
	text = multiSpace.ReplaceAllString(text, " ")
	text = strings.Trim(text, " ,;:")
	return strings.TrimSpace(text)
}
