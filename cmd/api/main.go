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

	httpadapter "github.com/civicatlas/contribution-wizard/internal/adapters/http"
	"github.com/civicatlas/contribution-wizard/internal/bootstrap"
	"github.com/civicatlas/contribution-wizard/internal/config"
	"github.com/civicatlas/contribution-wizard/internal/core/usecase"
	"github.com/civicatlas/contribution-wizard/internal/observability/logging"
	"github.com/civicatlas/contribution-wizard/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Observers{
		Submissions: httpMetrics.Submissions("api"),
		Resilience:  metrics.NewResilienceMetrics(httpMetrics.Registerer(), "api"),
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Wizards:   app.Wizards,
		Records:   app.Repo,
		Documents: app.Repo,
		Sessions:  app.Sessions,
		Cities:    app.Cities,
		Catalog:   app.Catalog,
		Files:     app.Storage,
		Metrics:   httpMetrics,
	}).Handler()

	mux := http.NewServeMux()
	mux.Handle("/metrics", httpMetrics.Handler())
	mux.Handle("/", router)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go sweepIdleWizards(ctx, app.Wizards, cfg.SessionIdle(), httpMetrics)

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}

func sweepIdleWizards(ctx context.Context, wizards *usecase.WizardRegistry, maxIdle time.Duration, httpMetrics *metrics.HTTPServerMetrics) {
	interval := maxIdle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if closed := wizards.Sweep(maxIdle); closed > 0 {
				slog.Info("wizard_sessions_swept", "closed", closed)
			}
			httpMetrics.SetActiveWizards(wizards.Len())
		}
	}
}
