package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/rules"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	fn      func(query string) []domain.RetrievedDocument
	err     error
}

func (s *fakeSearcher) Search(_ context.Context, query string, _ int, _ domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.fn(query), nil
}

type fakeGenerator struct {
	mu           sync.Mutex
	calls        int
	instructions [][]string
	completions  []domain.Completion
}

func (g *fakeGenerator) Complete(_ context.Context, _ string, _ []domain.RetrievedDocument, instructions []string) (domain.Completion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.calls
	g.calls++
	g.instructions = append(g.instructions, instructions)
	if idx >= len(g.completions) {
		idx = len(g.completions) - 1
	}
	return g.completions[idx], nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (p *recordingPublisher) PublishAnswerAudit(_ context.Context, record domain.AuditRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, record)
	return nil
}

func newTestUseCase(t *testing.T, searcher *fakeSearcher, generator *fakeGenerator, audit *AuditDispatcher) *AnswerUseCase {
	t.Helper()
	ruleSet, err := rules.Load()
	if err != nil {
		t.Fatalf("rules.Load() error = %v", err)
	}
	return NewAnswerUseCase(searcher, generator, audit, ruleSet, DefaultAnswerConfig(), nil)
}

func handHygieneDoc() domain.RetrievedDocument {
	return domain.RetrievedDocument{
		ID:              "doc-hh-01",
		ReferenceNumber: "HH-01",
		Title:           "Hand Hygiene Policy",
		SourceFile:      "hand-hygiene.pdf",
		Score:           0.9,
		Content: "The hand hygiene policy defines the standard procedure for infection " +
			"prevention. Staff compare personal protective equipment use with hand washing " +
			"steps, and all policies apply to patient care areas.",
	}
}

func ppeDoc() domain.RetrievedDocument {
	return domain.RetrievedDocument{
		ID:              "doc-ppe-01",
		ReferenceNumber: "PPE-01",
		Title:           "Personal Protective Equipment Policy",
		SourceFile:      "ppe.pdf",
		Score:           0.85,
		Content: "The personal protective equipment policy sets standard procedure steps " +
			"for gowns and gloves. Compare these policies with hand hygiene guidance during " +
			"patient care and infection precaution training.",
	}
}

func TestAnswerComparisonQuestionDecomposesAndCitesBothPolicies(t *testing.T) {
	searcher := &fakeSearcher{fn: func(query string) []domain.RetrievedDocument {
		if strings.Contains(query, "hand hygiene") {
			return []domain.RetrievedDocument{handHygieneDoc()}
		}
		return []domain.RetrievedDocument{ppeDoc()}
	}}
	generator := &fakeGenerator{completions: []domain.Completion{{
		Text: "According to the hand hygiene policy Ref #HH-01, wash hands before patient " +
			"contact. The personal protective equipment policy Ref #PPE-01 requires gowns " +
			"and gloves. See the relevant section of each procedure.",
		Citations: []domain.Citation{{ReferenceNumber: "HH-01"}, {ReferenceNumber: "PPE-01"}},
	}}}
	uc := newTestUseCase(t, searcher, generator, nil)

	result, err := uc.Answer(context.Background(), "Compare hand hygiene and PPE policies", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !result.Found {
		t.Fatalf("Found = false, want true")
	}
	if result.Confidence != domain.ConfidenceHigh {
		t.Fatalf("Confidence = %q, want %q (score %.2f)", result.Confidence, domain.ConfidenceHigh, result.ConfidenceScore)
	}
	if len(searcher.queries) != 4 {
		t.Fatalf("searcher queries = %d, want 4 sub-queries: %v", len(searcher.queries), searcher.queries)
	}
	if len(result.Evidence) != 2 {
		t.Fatalf("Evidence count = %d, want 2", len(result.Evidence))
	}
	for _, item := range result.Evidence {
		if item.MatchType != domain.MatchVerified {
			t.Fatalf("evidence %s MatchType = %q, want %q", item.ReferenceNumber, item.MatchType, domain.MatchVerified)
		}
	}
	if !strings.Contains(result.Response, "References:") {
		t.Fatalf("Response missing reference block: %q", result.Response)
	}
	if result.ChunksUsed != 2 {
		t.Fatalf("ChunksUsed = %d, want 2", result.ChunksUsed)
	}
}

func TestAnswerRefusesWhenOnlyOneDocumentIsRelevant(t *testing.T) {
	offTopic := func(id, content string) domain.RetrievedDocument {
		return domain.RetrievedDocument{ID: id, Title: "Campus Bulletin", Content: content, Score: 0.4}
	}
	searcher := &fakeSearcher{fn: func(string) []domain.RetrievedDocument {
		return []domain.RetrievedDocument{
			{
				ID:              "doc-vis-01",
				ReferenceNumber: "SEC-12",
				Title:           "Visitor Management Policy",
				Score:           0.8,
				Content: "Every visitor badge step is listed in the security policy. Follow " +
					"the standard procedure and documentation steps for patient safety.",
			},
			offTopic("doc-x1", "The cafeteria menu rotates weekly across campus kitchens."),
			offTopic("doc-x2", "Parking garage elevators close for maintenance on Sundays."),
			offTopic("doc-x3", "The gift shop stocks seasonal flowers near the lobby entrance."),
		}
	}}
	generator := &fakeGenerator{completions: []domain.Completion{{Text: "unused"}}}
	uc := newTestUseCase(t, searcher, generator, nil)

	result, err := uc.Answer(context.Background(), "what is the visitor badge process", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.Found {
		t.Fatalf("Found = true, want false")
	}
	if result.Confidence != domain.ConfidenceLow {
		t.Fatalf("Confidence = %q, want %q", result.Confidence, domain.ConfidenceLow)
	}
	if !result.NeedsHumanReview {
		t.Fatalf("NeedsHumanReview = false, want true")
	}
	if len(result.Evidence) != 0 {
		t.Fatalf("Evidence count = %d, want 0", len(result.Evidence))
	}
	if generator.calls != 0 {
		t.Fatalf("generator calls = %d, want 0 on refusal", generator.calls)
	}
}

func TestAnswerRegeneratesOnceWhenFirstDraftIsUngrounded(t *testing.T) {
	searcher := &fakeSearcher{fn: func(string) []domain.RetrievedDocument {
		return []domain.RetrievedDocument{
			{
				ID:              "doc-hh-01",
				ReferenceNumber: "HH-01",
				Title:           "Hand Hygiene Policy",
				Score:           0.9,
				Content: "The hand hygiene procedure in this policy requires washing hands " +
					"with soap. Standard infection prevention applies to patient care.",
			},
			{
				ID:              "doc-hh-02",
				ReferenceNumber: "HH-02",
				Title:           "Hand Hygiene Procedure Steps",
				Score:           0.8,
				Content: "This procedure sets the hand hygiene standard for clinical staff. " +
					"Follow the policy guideline for patient safety.",
			},
		}
	}}
	generator := &fakeGenerator{completions: []domain.Completion{
		{Text: "Wash for twenty seconds with soap and water before touching anything."},
		{
			Text: "Per the hand hygiene policy, follow the procedure in Ref #HH-01 before " +
				"every patient contact.",
			Citations: []domain.Citation{{ReferenceNumber: "HH-01"}},
		},
	}}
	uc := newTestUseCase(t, searcher, generator, nil)

	result, err := uc.Answer(context.Background(), "what is the hand hygiene procedure", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if generator.calls != 2 {
		t.Fatalf("generator calls = %d, want exactly 2", generator.calls)
	}
	if len(generator.instructions[0]) != 0 {
		t.Fatalf("first call instructions = %v, want none", generator.instructions[0])
	}
	if len(generator.instructions[1]) == 0 {
		t.Fatalf("second call received no regeneration instructions")
	}
	joined := strings.Join(generator.instructions[1], " ")
	if !strings.Contains(joined, "Cite") {
		t.Fatalf("regeneration instructions missing citation directive: %q", joined)
	}
	if !result.Found {
		t.Fatalf("Found = false, want true")
	}
	if !strings.Contains(result.Response, "Per the hand hygiene policy") {
		t.Fatalf("Response is not the regenerated draft: %q", result.Response)
	}
}

func TestAnswerRejectsEmptyAndOversizedQuestions(t *testing.T) {
	searcher := &fakeSearcher{fn: func(string) []domain.RetrievedDocument { return nil }}
	generator := &fakeGenerator{completions: []domain.Completion{{Text: "unused"}}}
	uc := newTestUseCase(t, searcher, generator, nil)

	if _, err := uc.Answer(context.Background(), "   ", domain.SearchFilter{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("empty question error = %v, want ErrInvalidInput", err)
	}

	long := strings.Repeat("hand hygiene ", 100)
	if _, err := uc.Answer(context.Background(), long, domain.SearchFilter{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("oversized question error = %v, want ErrInvalidInput", err)
	}
	if len(searcher.queries) != 0 {
		t.Fatalf("searcher called %d times on invalid input, want 0", len(searcher.queries))
	}
}

func TestAnswerEnqueuesAuditRecord(t *testing.T) {
	publisher := &recordingPublisher{}
	audit := NewAuditDispatcher(publisher, 4)

	searcher := &fakeSearcher{fn: func(query string) []domain.RetrievedDocument {
		if strings.Contains(query, "hand hygiene") {
			return []domain.RetrievedDocument{handHygieneDoc()}
		}
		return []domain.RetrievedDocument{ppeDoc()}
	}}
	generator := &fakeGenerator{completions: []domain.Completion{{
		Text: "According to the hand hygiene policy Ref #HH-01 and the personal protective " +
			"equipment policy Ref #PPE-01, follow each procedure section.",
		Citations: []domain.Citation{{ReferenceNumber: "HH-01"}, {ReferenceNumber: "PPE-01"}},
	}}}
	uc := newTestUseCase(t, searcher, generator, audit)

	result, err := uc.Answer(context.Background(), "Compare hand hygiene and PPE policies", domain.SearchFilter{})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	audit.Close()

	if len(publisher.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(publisher.records))
	}
	record := publisher.records[0]
	if record.ID == "" {
		t.Fatalf("audit record missing id")
	}
	if record.Question != "Compare hand hygiene and PPE policies" {
		t.Fatalf("audit question = %q", record.Question)
	}
	if record.Found != result.Found || record.Confidence != result.Confidence {
		t.Fatalf("audit record diverges from result: %+v", record)
	}
	if record.DurationMs < 0 {
		t.Fatalf("audit duration = %d, want >= 0", record.DurationMs)
	}
}
