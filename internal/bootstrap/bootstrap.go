package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	httpadapter "github.com/cwhealth/policy-qa/internal/adapters/http"
	"github.com/cwhealth/policy-qa/internal/config"
	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/ports"
	"github.com/cwhealth/policy-qa/internal/core/rules"
	"github.com/cwhealth/policy-qa/internal/core/usecase"
	openaiclient "github.com/cwhealth/policy-qa/internal/infrastructure/llm/openai"
	natsqueue "github.com/cwhealth/policy-qa/internal/infrastructure/queue/nats"
	"github.com/cwhealth/policy-qa/internal/infrastructure/repository/postgres"
	"github.com/cwhealth/policy-qa/internal/infrastructure/resilience"
	"github.com/cwhealth/policy-qa/internal/infrastructure/search/policyindex"
	"github.com/cwhealth/policy-qa/internal/observability/metrics"
)

// APIApp holds everything the answer service needs at runtime.
type APIApp struct {
	Config   config.Config
	Router   *httpadapter.Router
	Metrics  *metrics.HTTPServerMetrics
	Breakers *resilience.Registry

	dispatcher *usecase.AuditDispatcher
	queue      *natsqueue.Queue
}

// NewAPI wires the full answer pipeline: retrieval and generation clients
// behind their circuit breakers, the use case with its quality stages, and
// the audit dispatcher that feeds the NATS queue.
func NewAPI(ctx context.Context, cfg config.Config) (*APIApp, error) {
	queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	registry := resilience.NewRegistry()

	retrievalDefaults := resilience.DefaultRetrievalConfig()
	retrievalBreaker := resilience.NewBreaker("retrieval", resilience.Config{
		FailureThreshold:    uint32(cfg.RetrievalBreakerThreshold),
		Cooldown:            cfg.RetrievalBreakerCooldown,
		RetryMaxAttempts:    retrievalDefaults.RetryMaxAttempts,
		RetryInitialBackoff: retrievalDefaults.RetryInitialBackoff,
		RetryMaxBackoff:     retrievalDefaults.RetryMaxBackoff,
		RetryMultiplier:     retrievalDefaults.RetryMultiplier,
	}, policyindex.ClassifyError)
	registry.Register(retrievalBreaker)

	generationBreaker := resilience.NewBreaker("generation", resilience.Config{
		FailureThreshold: uint32(cfg.GenerationBreakerThreshold),
		Cooldown:         cfg.GenerationBreakerCooldown,
		RetryMaxAttempts: resilience.DefaultGenerationConfig().RetryMaxAttempts,
	}, openaiclient.ClassifyError)
	registry.Register(generationBreaker)

	searcher := policyindex.New(cfg.SearchURL, cfg.SearchIndex, cfg.SearchAPIKey, retrievalBreaker)
	generator := openaiclient.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, generationBreaker)

	ruleSet, err := rules.Load()
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("load query rules: %w", err)
	}

	serverMetrics := metrics.NewHTTPServerMetrics("api")
	observer := serverMetrics.PipelineObserver("api")

	dispatcher := usecase.NewAuditDispatcher(queue, cfg.AuditQueueSize)

	answerer := usecase.NewAnswerUseCase(searcher, generator, dispatcher, ruleSet, usecase.AnswerConfig{
		TopK:               cfg.SearchTopK,
		MaxQueryChars:      cfg.MaxQueryChars,
		MMRLambda:          cfg.MMRLambda,
		MaxDiversified:     cfg.MMRMaxResults,
		LowPriorityPenalty: cfg.LowPriorityPenalty,
		MaxReferences:      cfg.MaxReferences,
	}, observer)

	router := httpadapter.NewRouter(
		instrumentAnswerer(answerer, serverMetrics, "api"),
		registry,
		httpadapter.Options{
			RateLimitRPS:   cfg.APIRateLimitRPS,
			RateLimitBurst: cfg.APIRateLimitBurst,
			MaxInFlight:    cfg.APIMaxInFlight,
			QueueWait:      cfg.APIQueueWait,
			MetricsHandler: serverMetrics.Handler(),
		},
	)

	return &APIApp{
		Config:     cfg,
		Router:     router,
		Metrics:    serverMetrics,
		Breakers:   registry,
		dispatcher: dispatcher,
		queue:      queue,
	}, nil
}

// Close drains the audit dispatcher before dropping the NATS connection so
// queued records are published rather than lost.
func (a *APIApp) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.queue != nil {
		a.queue.Close()
	}
}

// WorkerApp holds the audit persistence side: NATS consumer plus Postgres.
type WorkerApp struct {
	Config  config.Config
	Queue   *natsqueue.Queue
	Repo    *postgres.AuditRepository
	Metrics *metrics.WorkerMetrics

	db *sql.DB
}

// NewWorker connects to NATS and Postgres and prepares the audit schema.
func NewWorker(ctx context.Context, cfg config.Config) (*WorkerApp, error) {
	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	repo := postgres.NewAuditRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}

	queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &WorkerApp{
		Config:  cfg,
		Queue:   queue,
		Repo:    repo,
		Metrics: metrics.NewWorkerMetrics("worker"),
		db:      db,
	}, nil
}

func (a *WorkerApp) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Error("close postgres", "error", err)
		}
	}
}

// instrumentedAnswerer records pipeline outcome metrics around the use case.
type instrumentedAnswerer struct {
	inner   ports.PolicyAnswerer
	metrics *metrics.HTTPServerMetrics
	service string
}

func instrumentAnswerer(inner ports.PolicyAnswerer, m *metrics.HTTPServerMetrics, service string) ports.PolicyAnswerer {
	return &instrumentedAnswerer{inner: inner, metrics: m, service: service}
}

func (a *instrumentedAnswerer) Answer(ctx context.Context, question string, filter domain.SearchFilter) (*domain.AnswerResult, error) {
	start := time.Now()
	result, err := a.inner.Answer(ctx, question, filter)
	if err != nil {
		if _, open := domain.RetryAfterOf(err); open {
			switch {
			case domain.IsKind(err, domain.ErrRetrievalUnavailable):
				a.metrics.RecordBreakerRejection(a.service, "retrieval")
			case domain.IsKind(err, domain.ErrGenerationUnavailable), domain.IsKind(err, domain.ErrGenerationRateLimited):
				a.metrics.RecordBreakerRejection(a.service, "generation")
			}
		}
		return nil, err
	}
	a.metrics.RecordAnswer(a.service, result, time.Since(start))
	return result, nil
}
