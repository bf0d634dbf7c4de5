package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicatlas/contribution-wizard/internal/bootstrap"
	"github.com/civicatlas/contribution-wizard/internal/config"
	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/observability/logging"
	"github.com/civicatlas/contribution-wizard/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Observers{
		Resilience: metrics.NewResilienceMetrics(workerMetrics.Registerer(), service),
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Events.SubscribeContributionEvents(ctx, func(handlerCtx context.Context, event domain.ContributionEvent) error {
		if !event.OccurredAt.IsZero() {
			workerMetrics.ObserveQueueLag(service, time.Since(event.OccurredAt))
		}

		renderCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
		defer cancel()

		started := time.Now()
		workerMetrics.StartRender()
		err := app.RenderUC.RenderByID(renderCtx, event.ID)
		workerMetrics.FinishRender(service, time.Since(started), err)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
