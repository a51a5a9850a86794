package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kirillkom/crop-advisor/internal/config"
	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/features"
	"github.com/kirillkom/crop-advisor/internal/core/ports"
	"github.com/kirillkom/crop-advisor/internal/core/usecase"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/artifact"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/classifier/forest"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/classifier/onnx"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/classifier/remote"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/metadata"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/queue/nats"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/resilience"
	"github.com/kirillkom/crop-advisor/internal/observability/metrics"
)

const metricsService = "crop-advisor"

type App struct {
	Config config.Config

	Manifest   features.Manifest
	Codec      *features.Codec
	Classifier ports.Classifier
	Catalog    *metadata.Catalog
	Metrics    *metrics.HTTPServerMetrics

	ModelVersion string

	RecommendUC *usecase.RecommendUseCase
	BatchUC     *usecase.BatchUseCase
	// HistoryUC is nil when no Postgres DSN is configured.
	HistoryUC *usecase.HistoryUseCase

	closers []func()
}

// New loads every artifact and dependency up front. Any failure is returned so the
// binary exits before serving.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return start(ctx, &App{Config: cfg, Metrics: metrics.NewHTTPServerMetrics(metricsService)})
}

// start loads app and releases whatever was acquired when loading fails.
func start(ctx context.Context, app *App) (*App, error) {
	if err := app.load(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) load(ctx context.Context) error {
	cfg := a.Config
	var err error
	executor := resilience.NewExecutor(cfg.Resilience(), resilience.WithStateObserver(a.Metrics.ObserveBreaker))

	a.Manifest, err = artifact.LoadManifest(artifact.Resolve(cfg.ArtifactDir, cfg.ManifestPath))
	if err != nil {
		return fmt.Errorf("load feature manifest: %w", err)
	}
	a.Codec, err = artifact.LoadCodec(artifact.Resolve(cfg.ArtifactDir, cfg.CodecPath))
	if err != nil {
		return fmt.Errorf("load label encoders: %w", err)
	}

	var modelVersion string
	a.Classifier, modelVersion, err = a.openClassifier(cfg, executor)
	if err != nil {
		return fmt.Errorf("open %s classifier: %w", cfg.ModelBackend, err)
	}
	if got, want := a.Classifier.NumFeatures(), len(a.Manifest.Features); got != want {
		return domain.WrapError(domain.ErrCorruptArtifact, "check model width",
			fmt.Errorf("model expects %d features, manifest lists %d", got, want))
	}
	a.ModelVersion = firstNonEmpty(cfg.ModelVersion, modelVersion, a.Manifest.Version, cfg.ModelBackend)

	a.Catalog, err = metadata.Load(cfg.CropCatalogPath)
	if err != nil {
		return fmt.Errorf("load crop catalog: %w", err)
	}
	if missing := a.Catalog.Missing(a.Classifier.Labels()); len(missing) > 0 {
		slog.Warn("crop_metadata_missing", "labels", missing)
	}

	var opts []usecase.RecommendOption
	if cfg.PostgresDSN != "" {
		repo, err := a.openHistory(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		opts = append(opts, usecase.WithStore(repo))
		a.HistoryUC = usecase.NewHistoryUseCase(repo)
	}
	if cfg.NATSURL != "" {
		publisher, err := nats.Connect(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			return fmt.Errorf("init recommendation events: %w", err)
		}
		a.closers = append(a.closers, publisher.Close)
		opts = append(opts, usecase.WithPublisher(publisher))
	}

	ranker := usecase.NewRanker(a.Classifier, a.Catalog)
	a.RecommendUC = usecase.NewRecommendUseCase(a.Codec, ranker, a.ModelVersion, opts...)
	a.BatchUC = usecase.NewBatchUseCase(a.RecommendUC)

	slog.Info("model_loaded",
		"backend", cfg.ModelBackend,
		"model_version", a.ModelVersion,
		"features", len(a.Manifest.Features),
		"classes", len(a.Classifier.Labels()),
		"history", a.HistoryUC != nil,
		"events", cfg.NATSURL != "",
	)
	return nil
}

func (a *App) openClassifier(cfg config.Config, executor *resilience.Executor) (ports.Classifier, string, error) {
	switch cfg.ModelBackend {
	case config.BackendForest:
		model, err := forest.Load(artifact.Resolve(cfg.ArtifactDir, cfg.ModelPath))
		if err != nil {
			return nil, "", err
		}
		if cfg.ClassesPath != "" {
			classes, err := artifact.LoadClasses(artifact.Resolve(cfg.ArtifactDir, cfg.ClassesPath))
			if err != nil {
				return nil, "", err
			}
			if !slices.Equal(classes, model.Labels()) {
				return nil, "", domain.WrapError(domain.ErrCorruptArtifact, "check model classes",
					fmt.Errorf("classes file disagrees with the model's class order"))
			}
		}
		return model, model.Version(), nil

	case config.BackendONNX:
		classes, err := a.requireClasses(cfg)
		if err != nil {
			return nil, "", err
		}
		model, err := onnx.New(onnx.Config{
			ModelPath:   artifact.Resolve(cfg.ArtifactDir, cfg.ModelPath),
			LibraryPath: cfg.ONNXLibraryPath,
			InputName:   cfg.ONNXInputName,
			OutputName:  cfg.ONNXOutputName,
			NumFeatures: len(a.Manifest.Features),
			Classes:     classes,
		})
		if err != nil {
			return nil, "", err
		}
		a.closers = append(a.closers, func() { _ = model.Close() })
		return model, "", nil

	case config.BackendRemote:
		classes, err := a.requireClasses(cfg)
		if err != nil {
			return nil, "", err
		}
		client, err := remote.New(remote.Config{
			BaseURL:      cfg.RemoteModelURL,
			Timeout:      time.Duration(cfg.RemoteModelTimeoutSeconds) * time.Second,
			FeatureNames: a.Manifest.Features,
			Classes:      classes,
		}, executor)
		if err != nil {
			return nil, "", err
		}
		return client, "", nil

	default:
		return nil, "", fmt.Errorf("unsupported model backend %q", cfg.ModelBackend)
	}
}

func (a *App) requireClasses(cfg config.Config) ([]string, error) {
	if cfg.ClassesPath == "" {
		return nil, fmt.Errorf("CLASSES_PATH is required for the %s backend", cfg.ModelBackend)
	}
	return artifact.LoadClasses(artifact.Resolve(cfg.ArtifactDir, cfg.ClassesPath))
}

func (a *App) openHistory(ctx context.Context, dsn string) (*postgres.RecommendationRepository, error) {
	db, err := postgres.OpenDB(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() { closeDB(db) })

	repo := postgres.NewRecommendationRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("postgres_close_failed", "error", err)
	}
}

// Close releases dependencies in reverse order of acquisition.
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// History returns the read model, or nil when history is disabled.
func (a *App) History() ports.RecommendationReader {
	if a.HistoryUC == nil {
		return nil
	}
	return a.HistoryUC
}
