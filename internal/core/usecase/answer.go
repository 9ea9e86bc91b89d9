package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/ports"
	"github.com/cwhealth/policy-qa/internal/core/rules"
)

const refusalMessage = "I could not find a policy that directly answers this question. " +
	"Please rephrase the question or consult the policy office."

const evidenceSnippetChars = 240

// AnswerConfig carries the pipeline knobs.
type AnswerConfig struct {
	TopK               int
	MaxQueryChars      int
	MMRLambda          float64
	MaxDiversified     int
	LowPriorityPenalty float64
	MaxReferences      int
}

func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		TopK:               10,
		MaxQueryChars:      500,
		MMRLambda:          DefaultMMRLambda,
		MaxDiversified:     DefaultMaxDiversified,
		LowPriorityPenalty: DefaultLowPriorityPenalty,
		MaxReferences:      DefaultMaxReferences,
	}
}

// StageObserver receives pipeline stage outcomes for metrics. A nil
// observer is replaced with a no-op.
type StageObserver interface {
	DecompositionDetected(kind domain.DecompositionType)
	GateDecision(action domain.ActionTag)
	CritiqueRegeneration()
}

type nopObserver struct{}

func (nopObserver) DecompositionDetected(domain.DecompositionType) {}
func (nopObserver) GateDecision(domain.ActionTag)                  {}
func (nopObserver) CritiqueRegeneration()                          {}

// AnswerUseCase runs the full answer-quality pipeline: expand, decompose,
// retrieve, gate, diversify, generate, critique, score, cite.
type AnswerUseCase struct {
	searcher  ports.PassageSearcher
	generator ports.AnswerGenerator
	audit     *AuditDispatcher

	expander   *Expander
	decomposer *Decomposer
	gate       *QualityGate
	critic     *Critic

	cfg      AnswerConfig
	observer StageObserver
}

func NewAnswerUseCase(
	searcher ports.PassageSearcher,
	generator ports.AnswerGenerator,
	audit *AuditDispatcher,
	ruleSet *rules.Set,
	cfg AnswerConfig,
	observer StageObserver,
) *AnswerUseCase {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultAnswerConfig().TopK
	}
	if cfg.MaxQueryChars <= 0 {
		cfg.MaxQueryChars = DefaultAnswerConfig().MaxQueryChars
	}
	if observer == nil {
		observer = nopObserver{}
	}
	decomposer := NewDecomposer(ruleSet)
	return &AnswerUseCase{
		searcher:   searcher,
		generator:  generator,
		audit:      audit,
		expander:   NewExpander(ruleSet, DefaultExpanderConfig()),
		decomposer: decomposer,
		gate:       NewQualityGate(ruleSet, decomposer),
		critic:     NewCritic(ruleSet),
		cfg:        cfg,
		observer:   observer,
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, question string, filter domain.SearchFilter) (*domain.AnswerResult, error) {
	start := time.Now()

	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is empty"))
	}
	if len(trimmed) > uc.cfg.MaxQueryChars {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer",
			fmt.Errorf("question exceeds %d characters", uc.cfg.MaxQueryChars))
	}

	query, expansion := uc.expander.Expand(trimmed)
	if query.IsEmpty() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("question is empty after normalization"))
	}
	if len(expansion.AddedTerms) > 0 {
		slog.Debug("query_expanded", "added_terms", expansion.AddedTerms)
	}

	docs, err := uc.retrieve(ctx, query, filter)
	if err != nil {
		return nil, err
	}

	assessments := uc.gate.Assess(query, docs)
	action := uc.gate.Decide(query, assessments)
	uc.observer.GateDecision(action.Action)

	if action.Action == domain.ActionDecompose {
		docs, assessments, action, err = uc.correctiveRound(ctx, query, filter, action, docs, assessments)
		if err != nil {
			return nil, err
		}
	}

	if action.Action == domain.ActionRefuse {
		result := refusalResult(ScoreConfidence(ConfidenceInput{Action: action, Assessments: assessments}))
		uc.publishAudit(query, result, action.Action, start)
		return result, nil
	}

	approvedDocs, approvedAssessments := pickApproved(docs, assessments, action.ApprovedIndices)
	penalized := ApplyCategoryPenalty(approvedDocs, uc.gate.rules, uc.cfg.LowPriorityPenalty)
	reranked := Diversify(penalized, uc.cfg.MMRLambda, uc.cfg.MaxDiversified)
	contexts := documentsOf(reranked)

	completion, err := uc.generator.Complete(ctx, query.RawText, contexts, nil)
	if err != nil {
		return nil, err
	}
	critique := uc.critic.Critique(completion.Text, query, contexts)

	if critique.ShouldRegenerate {
		uc.observer.CritiqueRegeneration()
		completion, critique = uc.regenerate(ctx, query, contexts, completion, critique)
	}
	regenerationFailed := critique.ShouldRegenerate

	verdict := ScoreConfidence(ConfidenceInput{
		Action:             action,
		Assessments:        approvedAssessments,
		Reranked:           reranked,
		Critique:           critique,
		RegenerationFailed: regenerationFailed,
	})

	if verdict.Tier == domain.ConfidenceLow {
		result := refusalResult(verdict)
		uc.publishAudit(query, result, action.Action, start)
		return result, nil
	}

	evidence := buildEvidence(reranked, completion.Citations)
	formatted := FormatCitations(completion.Text, evidence, true, uc.cfg.MaxReferences)

	result := &domain.AnswerResult{
		Response:         formatted.Response,
		Summary:          formatted.Summary,
		Evidence:         evidence,
		Confidence:       verdict.Tier,
		ConfidenceScore:  verdict.Score,
		NeedsHumanReview: verdict.NeedsHumanReview,
		SafetyFlags:      verdict.SafetyFlags,
		Found:            true,
		ChunksUsed:       len(contexts),
	}
	uc.publishAudit(query, result, action.Action, start)
	return result, nil
}

// retrieve issues one search for a simple query, or one concurrent
// search per sub-query for a decomposed one, merged round-robin. Results
// are deterministic regardless of completion order.
func (uc *AnswerUseCase) retrieve(ctx context.Context, query domain.Query, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	decomposition := uc.decomposer.Decompose(query)
	if !decomposition.NeedsDecomposition {
		return uc.searcher.Search(ctx, query.SearchText, uc.cfg.TopK, filter)
	}

	uc.observer.DecompositionDetected(decomposition.Type)
	return uc.searchSubQueries(ctx, decomposition.SubQueries, filter)
}

func (uc *AnswerUseCase) searchSubQueries(ctx context.Context, subs []domain.SubQuery, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	lists := make([][]domain.RetrievedDocument, len(subs))
	errs := make([]error, len(subs))

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(idx int, text string) {
			defer wg.Done()
			lists[idx], errs[idx] = uc.searcher.Search(ctx, text, uc.cfg.TopK, filter)
		}(i, sub.Text)
	}
	wg.Wait()

	merged := MergeRoundRobin(lists)
	if len(merged) == 0 {
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
	}
	for i, err := range errs {
		if err != nil {
			slog.Warn("sub_query_search_failed", "sub_query_index", i, "error", err)
		}
	}
	return merged, nil
}

// correctiveRound re-retrieves with the gate's generated sub-queries and
// re-decides without the decompose option: sub-queries never decompose
// further.
func (uc *AnswerUseCase) correctiveRound(
	ctx context.Context,
	query domain.Query,
	filter domain.SearchFilter,
	action domain.CorrectiveAction,
	docs []domain.RetrievedDocument,
	assessments []domain.QualityAssessment,
) ([]domain.RetrievedDocument, []domain.QualityAssessment, domain.CorrectiveAction, error) {
	retried, err := uc.searchSubQueries(ctx, action.SubQueries, filter)
	if err != nil {
		return nil, nil, domain.CorrectiveAction{}, err
	}
	if len(retried) == 0 {
		// Fall back to the original round, ambiguous documents and all.
		final := uc.gate.DecideFinal(query, assessments)
		return docs, assessments, final, nil
	}

	newAssessments := uc.gate.Assess(query, retried)
	final := uc.gate.DecideFinal(query, newAssessments)
	return retried, newAssessments, final, nil
}

func (uc *AnswerUseCase) regenerate(
	ctx context.Context,
	query domain.Query,
	contexts []domain.RetrievedDocument,
	first domain.Completion,
	firstCritique domain.CritiqueResult,
) (domain.Completion, domain.CritiqueResult) {
	instructions := RegenerationInstructions(firstCritique)
	second, err := uc.generator.Complete(ctx, query.RawText, contexts, instructions)
	if err != nil {
		slog.Warn("regeneration_failed", "error", err)
		return first, firstCritique
	}
	return second, uc.critic.Critique(second.Text, query, contexts)
}

func (uc *AnswerUseCase) publishAudit(query domain.Query, result *domain.AnswerResult, action domain.ActionTag, start time.Time) {
	if uc.audit == nil {
		return
	}
	uc.audit.Enqueue(domain.AuditRecord{
		ID:         uuid.NewString(),
		Question:   query.RawText,
		Found:      result.Found,
		Confidence: result.Confidence,
		Action:     action,
		ChunksUsed: result.ChunksUsed,
		DurationMs: time.Since(start).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	})
}

func refusalResult(verdict ConfidenceVerdict) *domain.AnswerResult {
	return &domain.AnswerResult{
		Response:         refusalMessage,
		Summary:          refusalMessage,
		Evidence:         []domain.EvidenceItem{},
		Confidence:       domain.ConfidenceLow,
		ConfidenceScore:  verdict.Score,
		NeedsHumanReview: true,
		SafetyFlags:      verdict.SafetyFlags,
		Found:            false,
		ChunksUsed:       0,
	}
}

func pickApproved(docs []domain.RetrievedDocument, assessments []domain.QualityAssessment, indices []int) ([]domain.RetrievedDocument, []domain.QualityAssessment) {
	pickedDocs := make([]domain.RetrievedDocument, 0, len(indices))
	pickedAssessments := make([]domain.QualityAssessment, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(docs) {
			continue
		}
		pickedDocs = append(pickedDocs, docs[idx])
		for _, a := range assessments {
			if a.DocumentIndex == idx {
				pickedAssessments = append(pickedAssessments, a)
				break
			}
		}
	}
	return pickedDocs, pickedAssessments
}

func documentsOf(results []domain.RerankResult) []domain.RetrievedDocument {
	out := make([]domain.RetrievedDocument, 0, len(results))
	for _, r := range results {
		out = append(out, r.Document)
	}
	return out
}

func buildEvidence(results []domain.RerankResult, citations []domain.Citation) []domain.EvidenceItem {
	cited := make(map[string]struct{}, len(citations))
	for _, c := range citations {
		cited[strings.ToLower(c.ReferenceNumber)] = struct{}{}
	}

	evidence := make([]domain.EvidenceItem, 0, len(results))
	for _, r := range results {
		doc := r.Document
		matchType := domain.MatchRelated
		if _, ok := cited[strings.ToLower(doc.ReferenceNumber)]; ok {
			matchType = domain.MatchVerified
		}
		snippet := doc.Content
		if len(snippet) > evidenceSnippetChars {
			snippet = snippet[:evidenceSnippetChars] + "…"
		}
		evidence = append(evidence, domain.EvidenceItem{
			Snippet:         snippet,
			Citation:        fmt.Sprintf("Ref #%s — %s", doc.ReferenceNumber, doc.Title),
			Title:           doc.Title,
			ReferenceNumber: doc.ReferenceNumber,
			Section:         doc.Section,
			AppliesTo:       doc.AppliesTo,
			Score:           r.AdjustedScore,
			MatchType:       matchType,
		})
	}
	return evidence
}
