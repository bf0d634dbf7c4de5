package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/civicatlas/contribution-wizard/internal/config"
	"github.com/civicatlas/contribution-wizard/internal/core/ports"
	"github.com/civicatlas/contribution-wizard/internal/core/usecase"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/artifacts"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/auth/jwtsession"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/catalog"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/extractor/pdfmeta"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/imaging"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/mapsurface"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/markdown"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/notify"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/queue/nats"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/repository/postgres"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/resilience"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/storage/localfs"
)

const noticeCapacity = 32

type App struct {
	Config  config.Config
	Catalog config.Catalog

	Events    *nats.EventBus
	Repo      *postgres.ContributionRepository
	Storage   *localfs.Storage
	Artifacts *artifacts.Service
	Cities    *catalog.Resolver
	Sessions  ports.SessionProvider

	Wizards  *usecase.WizardRegistry
	RenderUC ports.ContributionRenderer

	closeFn func()
}

// Observers are optional metric sinks supplied by the binary.
type Observers struct {
	Submissions usecase.SubmissionObserver
	Resilience  resilience.Observer
}

func New(ctx context.Context, cfg config.Config, observers Observers) (*App, error) {
	cat, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewContributionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	policy := resilience.StorageConfig(
		cfg.ResilienceRetryMaxAttempts,
		time.Duration(cfg.ResilienceRetryBackoffMS)*time.Millisecond,
		cfg.ResilienceBreakerEnabled,
		cfg.ResilienceBreakerMinRequest,
	)
	policy.Observer = observers.Resilience
	executor := resilience.NewExecutor(policy)

	events, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	var sessions ports.SessionProvider
	if cfg.JWTSecret != "" {
		provider, err := jwtsession.NewProvider(jwtsession.Config{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
		})
		if err != nil {
			events.Close()
			_ = db.Close()
			return nil, fmt.Errorf("init session provider: %w", err)
		}
		sessions = provider
	} else {
		slog.Warn("jwt_secret_missing", "effect", "every submission is rejected as unauthenticated")
	}

	artifactService := artifacts.NewService(artifacts.Options{
		Repository:    repo,
		Storage:       storage,
		Inspector:     pdfmeta.NewInspector(),
		Executor:      executor,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	orchestrator := usecase.NewSubmissionOrchestrator(
		sessions,
		repo,
		artifactService,
		imaging.NewCompressor(cfg.CoverMaxDimension, cfg.CoverQuality),
		events,
		observers.Submissions,
		usecase.SubmissionOptions{SelfHealCity: cfg.SelfHealCity},
	)
	wizards := usecase.NewWizardRegistry(usecase.RegistryOptions{
		Records:  repo,
		Uploader: artifactService,
		NewSurface: func(sessionID string) ports.MapSurface {
			return mapsurface.New(sessionID)
		},
		NewNotices: func(sessionID string) usecase.NoticeSink {
			return notify.NewBuffer(sessionID, noticeCapacity)
		},
		Orchestrator: orchestrator,
	})
	renderUC := usecase.NewRenderContributionUseCase(repo, artifactService, markdown.NewRenderer())

	return &App{
		Config:  cfg,
		Catalog: cat,

		Events:    events,
		Repo:      repo,
		Storage:   storage,
		Artifacts: artifactService,
		Cities:    catalog.NewResolver(cat),
		Sessions:  sessions,

		Wizards:  wizards,
		RenderUC: renderUC,

		closeFn: func() {
			events.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
