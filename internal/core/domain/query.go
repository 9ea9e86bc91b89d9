package domain

import "strings"

// Query is the validated, normalized form of a user question. RawText is
// kept for audit and critique; SearchText is what the retrieval service
// sees (normalized text plus appended expansion terms).
type Query struct {
	RawText         string `json:"raw_text"`
	NormalizedText  string `json:"normalized_text"`
	SearchText      string `json:"search_text"`
	LocationContext string `json:"location_context,omitempty"`
}

func (q Query) IsEmpty() bool {
	return strings.TrimSpace(q.NormalizedText) == ""
}

// ReplacedTerm records a single rewrite applied during expansion.
type ReplacedTerm struct {
	Original string `json:"original"`
	Replaced string `json:"replaced"`
}

// Expansion describes everything the normalizer did to a query. Produced
// once per request and read-only thereafter.
type Expansion struct {
	Abbreviations []ReplacedTerm `json:"abbreviations,omitempty"`
	Misspellings  []ReplacedTerm `json:"misspellings,omitempty"`
	AddedTerms    []string       `json:"added_terms,omitempty"`
}

type DecompositionType string

const (
	DecompositionNone        DecompositionType = "none"
	DecompositionComparison  DecompositionType = "comparison"
	DecompositionMultiTopic  DecompositionType = "multi_topic"
	DecompositionConditional DecompositionType = "conditional"
)

// SubQuery is a query-shaped value produced by decomposition. Sub-queries
// never decompose further.
type SubQuery struct {
	Text  string            `json:"text"`
	Index int               `json:"index"`
	Type  DecompositionType `json:"type"`
}

type DecompositionResult struct {
	NeedsDecomposition bool              `json:"needs_decomposition"`
	Type               DecompositionType `json:"type"`
	SubQueries         []SubQuery        `json:"sub_queries,omitempty"`
}
