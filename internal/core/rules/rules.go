// Package rules holds the data-driven heuristic tables used by the
// answer pipeline: expansion rules, topic groups, and the vocabularies
// behind quality scoring and self-critique. Keeping them as data makes
// the heuristics testable from the tables themselves.
package rules

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rawRules []byte

type Abbreviation struct {
	Short string `yaml:"short"`
	Full  string `yaml:"full"`
}

type Misspelling struct {
	Wrong string `yaml:"wrong"`
	Right string `yaml:"right"`
}

// CompoundTerm is one priority-stopping expansion rule. Rules are
// evaluated most-specific-first (longest token match); once a rule fires
// for a token span, no broader rule may also fire for that span.
type CompoundTerm struct {
	Match string   `yaml:"match"`
	Terms []string `yaml:"terms"`
}

func (c CompoundTerm) TokenLength() int {
	return len(strings.Fields(c.Match))
}

// TopicGroup names a cluster of related domain keywords. Two or more
// distinct groups matched in one query implies a multi-topic question.
type TopicGroup struct {
	Name     string   `yaml:"name"`
	Topic    string   `yaml:"topic"`
	Keywords []string `yaml:"keywords"`
}

type Set struct {
	PossessiveNouns       []string       `yaml:"possessive_nouns"`
	LocationPhrases       []string       `yaml:"location_phrases"`
	Abbreviations         []Abbreviation `yaml:"abbreviations"`
	Misspellings          []Misspelling  `yaml:"misspellings"`
	CompoundTerms         []CompoundTerm `yaml:"compound_terms"`
	TopicGroups           []TopicGroup   `yaml:"topic_groups"`
	NegationTerms         []string       `yaml:"negation_terms"`
	DomainSignalTerms     []string       `yaml:"domain_signal_terms"`
	LowPriorityKeywords   []string       `yaml:"low_priority_keywords"`
	GeneralizationPhrases []string       `yaml:"generalization_phrases"`
	SpeculationPhrases    []string       `yaml:"speculation_phrases"`
	GroundingTerms        []string       `yaml:"grounding_terms"`
	AttributionPhrases    []string       `yaml:"attribution_phrases"`
	Stopwords             []string       `yaml:"stopwords"`

	stopwordSet map[string]struct{}
}

func Load() (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(rawRules, &set); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(set.CompoundTerms) == 0 {
		return nil, fmt.Errorf("rules: compound_terms table is empty")
	}
	if len(set.TopicGroups) == 0 {
		return nil, fmt.Errorf("rules: topic_groups table is empty")
	}

	// Longest phrase first so specific matches suppress generic ones.
	sort.SliceStable(set.CompoundTerms, func(i, j int) bool {
		return set.CompoundTerms[i].TokenLength() > set.CompoundTerms[j].TokenLength()
	})

	set.stopwordSet = make(map[string]struct{}, len(set.Stopwords))
	for _, word := range set.Stopwords {
		set.stopwordSet[strings.ToLower(word)] = struct{}{}
	}
	return &set, nil
}

func MustLoad() *Set {
	set, err := Load()
	if err != nil {
		panic(err)
	}
	return set
}

func (s *Set) IsStopword(token string) bool {
	_, ok := s.stopwordSet[strings.ToLower(token)]
	return ok
}
