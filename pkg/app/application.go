package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/diagramq/diagramq/internal/analyzer"
	"github.com/diagramq/diagramq/internal/artifacts"
	"github.com/diagramq/diagramq/internal/metrics"
	"github.com/diagramq/diagramq/internal/middleware"
	"github.com/diagramq/diagramq/internal/pipeline"
	"github.com/diagramq/diagramq/internal/providers"
	"github.com/diagramq/diagramq/internal/ratelimit"
	"github.com/diagramq/diagramq/internal/scheduler"
	"github.com/diagramq/diagramq/internal/services"
	"github.com/diagramq/diagramq/internal/tracing"
	"github.com/diagramq/diagramq/pkg/config"
	"github.com/diagramq/diagramq/pkg/persistence"
)

type Application struct {
	Config          *config.Config
	Engine          *gin.Engine
	Store           persistence.Store
	Artifacts       artifacts.Store
	Scheduler       *scheduler.Scheduler
	Tasks           services.TaskService
	Stats           services.StatsService
	Logger          *slog.Logger
	RateLimiter     ratelimit.Limiter
	TracingShutdown func(context.Context) error

	analyzerOverride analyzer.Client
}

// ApplicationOption configures the Application.
type ApplicationOption func(*Application) error

// WithAnalyzerClient overrides the configured analyzer backend. Tests use it
// to inject a deterministic client.
func WithAnalyzerClient(client analyzer.Client) ApplicationOption {
	return func(app *Application) error {
		app.analyzerOverride = client
		return nil
	}
}

// WithStore overrides the configured persistence backend.
func WithStore(store persistence.Store) ApplicationOption {
	return func(app *Application) error {
		app.Store = store
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	app := &Application{Config: cfg, Logger: logger}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	tracingShutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}
	app.TracingShutdown = tracingShutdown

	if app.Store == nil {
		store, err := openStore(cfg)
		if err != nil {
			return nil, err
		}
		app.Store = store
	}
	app.Artifacts = artifacts.NewLocalStore(cfg.DataDir)

	client := app.analyzerOverride
	if client == nil {
		client = newAnalyzerClient(cfg, logger)
	}
	registry, err := pipeline.DefaultRegistry(client)
	if err != nil {
		return nil, fmt.Errorf("pipeline registry: %w", err)
	}

	app.Scheduler = scheduler.New(app.Store.Tasks(), app.Artifacts, registry, scheduler.Options{
		Workers:       cfg.Workers,
		QueueCapacity: cfg.QueueCapacity,
		StageTimeout:  time.Duration(cfg.StageTimeoutSeconds) * time.Second,
		Logger:        logger,
	})
	app.Tasks = services.NewTaskService(app.Store.Tasks(), app.Artifacts, registry, app.Scheduler, logger)
	app.Stats = services.NewStatsService(app.Store.Tasks(), app.Scheduler)

	if cfg.RateLimit.Submit.RequestsPerMinute > 0 {
		rdb := providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
		app.RateLimiter = ratelimit.NewTokenBucketLimiter(rdb)
	}

	metrics.RegisterStoreCollector(app.Store.Tasks(), app.Scheduler.QueueDepth, logger)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
		middleware.TracingMiddleware(cfg.Tracing.ServiceName),
	)
	app.Engine = engine

	return app, nil
}

// Start recovers persisted work and launches the worker pool.
func (app *Application) Start(ctx context.Context) error {
	return app.Scheduler.Start(ctx)
}

// Stop drains the workers and closes the store.
func (app *Application) Stop() {
	app.Scheduler.Stop()
	if err := app.Store.Close(); err != nil {
		app.Logger.Warn("store close failed", "err", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "diagramq", "env", cfg.Env)
}

func openStore(cfg *config.Config) (persistence.Store, error) {
	var raw json.RawMessage
	if cfg.PersistenceProvider == "redis" {
		b, err := json.Marshal(map[string]any{
			"addr":     cfg.RedisAddr,
			"password": cfg.RedisPassword,
		})
		if err != nil {
			return nil, err
		}
		raw = b
	}
	store, err := persistence.Open(persistence.ProviderConfig{
		Type:   cfg.PersistenceProvider,
		Config: raw,
	}, persistence.PluginConfig{})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.PersistenceProvider, err)
	}
	return store, nil
}

func newAnalyzerClient(cfg *config.Config, logger *slog.Logger) analyzer.Client {
	if cfg.Analyzer.Mode == "openai" {
		return analyzer.NewHTTPClient(analyzer.Config{
			BaseURL:            cfg.Analyzer.BaseURL,
			APIKey:             cfg.Analyzer.APIKey,
			Model:              cfg.Analyzer.Model,
			MaxRetries:         cfg.Analyzer.MaxRetries,
			BackoffPolicy:      cfg.Analyzer.BackoffPolicy,
			BackoffBaseSeconds: cfg.Analyzer.BackoffBaseSeconds,
			BackoffMaxSeconds:  cfg.Analyzer.BackoffMaxSeconds,
			Logger:             logger,
		})
	}
	return &analyzer.Stub{}
}
