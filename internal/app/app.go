package app

import (
	"context"
	"fmt"

	"github.com/cozy-creator/lesion-server/internal/artifact"
	"github.com/cozy-creator/lesion-server/internal/config"
	"github.com/cozy-creator/lesion-server/internal/metrics"
	"github.com/cozy-creator/lesion-server/internal/model"
	"github.com/cozy-creator/lesion-server/internal/predictor"
	"github.com/cozy-creator/lesion-server/internal/services/resultcache"
	"github.com/cozy-creator/lesion-server/pkg/logger"
	"go.uber.org/zap"
)

type App struct {
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc

	predictor *predictor.Predictor
	metrics   *metrics.Metrics
	cache     *resultcache.Cache

	Logger *zap.Logger
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

func WithMetrics() OptionFunc {
	return func(app *App) error {
		app.metrics = metrics.New()
		return nil
	}
}

func WithResultCache() OptionFunc {
	return func(app *App) error {
		cache, err := resultcache.New(app.config.ResultCacheSize)
		if err != nil {
			return err
		}
		app.cache = cache
		return nil
	}
}

// WithModel fetches the configured artifact if needed and loads it. A model
// that fails to load leaves the app running with an unavailable predictor.
func WithModel() OptionFunc {
	return func(app *App) error {
		if app.config.Model.Source != "" {
			fetcher := artifact.NewFetcher(app.Logger, artifact.WithS3Config(app.config.S3))
			if err := fetcher.Fetch(app.ctx, app.config.Model.Source, app.config.Model.Artifact, false); err != nil {
				app.Logger.Error("failed to fetch model artifact", zap.Error(err))
			}
		}

		return app.LoadModel(model.NewLoader(LoaderConfig(app.config), app.Logger))
	}
}

// WithModelLoader loads the model through loader instead of the configured
// artifact.
func WithModelLoader(loader predictor.Loader) OptionFunc {
	return func(app *App) error {
		return app.LoadModel(loader)
	}
}

func NewApp(config *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logger.InitLogger(config)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())

	p, err := predictor.New(Catalogue(config),
		predictor.WithLogger(logger),
		predictor.WithLocale(config.Locale),
		predictor.WithImageSize(config.Model.ImageSize, config.Model.ImageSize),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create predictor: %w", err)
	}

	app := &App{
		ctx:        ctx,
		config:     config,
		Logger:     logger,
		cancelFunc: cancel,
		predictor:  p,
	}

	// Apply all options
	for _, opt := range options {
		if err := opt(app); err != nil {
			// Continue even if some options fail
			app.Logger.Error("failed to apply option", zap.Error(err))
		}
	}

	return app, nil
}

// LoadModel runs loader through the predictor and publishes the outcome.
func (app *App) LoadModel(loader predictor.Loader) error {
	err := app.predictor.Load(app.ctx, loader)

	status := app.predictor.Status()
	if app.metrics != nil {
		app.metrics.SetModel(string(status.Provenance), status.Ready)
	}

	return err
}

func (app *App) Close() {
	app.cancelFunc()
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) Predictor() *predictor.Predictor {
	return app.predictor
}

func (app *App) Metrics() *metrics.Metrics {
	return app.metrics
}

func (app *App) ResultCache() *resultcache.Cache {
	return app.cache
}

// Catalogue converts the configured classes into predictor labels.
func Catalogue(cfg *config.Config) predictor.Catalogue {
	classes := cfg.Classes
	if len(classes) == 0 {
		classes = config.DefaultClasses()
	}

	catalogue := make(predictor.Catalogue, len(classes))
	for i, c := range classes {
		catalogue[i] = predictor.Label{ID: c.ID, Name: c.Name, Localized: c.Localized}
	}

	return catalogue
}

func LoaderConfig(cfg *config.Config) model.LoaderConfig {
	size := int64(cfg.Model.ImageSize)
	return model.LoaderConfig{
		ArtifactPath:        cfg.Model.Artifact,
		BackboneWeightsPath: cfg.Model.BackboneWeights,
		InputShape:          []int64{1, size, size, 3},
		NumClasses:          len(Catalogue(cfg)),
		OnnxRuntimeLib:      cfg.Model.OnnxRuntimeLib,
		Seed:                cfg.Model.Seed,
	}
}
