package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwhealth/policy-qa/internal/bootstrap"
	"github.com/cwhealth/policy-qa/internal/config"
	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewWorker(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: app.Metrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("worker metrics shutdown error", "error", err)
		}
	}()

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeAnswerAudit(ctx, func(handlerCtx context.Context, record domain.AuditRecord) error {
		persistCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		app.Metrics.ObserveQueueLag("worker", time.Since(record.CreatedAt))
		app.Metrics.StartPersist()
		start := time.Now()
		err := app.Repo.Insert(persistCtx, record)
		app.Metrics.FinishPersist("worker", time.Since(start), err)
		if err != nil {
			slog.Error("persist audit record", "record_id", record.ID, "error", err)
		}
		return err
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
