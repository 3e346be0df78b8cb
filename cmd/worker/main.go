package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkovalev/crypto-investigator/internal/bootstrap"
	"github.com/mkovalev/crypto-investigator/internal/config"
	"github.com/mkovalev/crypto-investigator/internal/observability/logging"
	"github.com/mkovalev/crypto-investigator/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("investigator-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("investigator-worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server failed", "error", err)
		}
	}()

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string, enqueuedAt time.Time) error {
		workerMetrics.StartDocument()
		start := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		doc, processErr := app.ProcessUC.ProcessByID(processCtx, documentID)
		workerMetrics.FinishDocument("investigator-worker", time.Since(start), processErr)
		if processErr != nil {
			return processErr
		}

		// Lag from the event's own enqueue time; creation time only covers
		// pre-envelope events.
		lagSince := enqueuedAt
		if lagSince.IsZero() {
			lagSince = doc.CreatedAt
		}
		workerMetrics.ObserveQueueLag("investigator-worker", start.Sub(lagSince))
		workerMetrics.RecordChunksIndexed("investigator-worker", doc.ChunkCount)
		slog.Info("document indexed",
			"document_id", doc.ID,
			"chunks", doc.ChunkCount,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	})
	if err != nil {
		slog.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
