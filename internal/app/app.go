// Package app wires configuration, backends and the ingestion service for the
// HTTP server and the Cloud Functions entry point.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rpattn/sheetingest/internal/config"
	"github.com/rpattn/sheetingest/internal/db"
	"github.com/rpattn/sheetingest/internal/ingestion"
	"github.com/rpattn/sheetingest/internal/logger"
	"github.com/rpattn/sheetingest/internal/metrics"
	"github.com/rpattn/sheetingest/internal/middleware"
	"github.com/rpattn/sheetingest/internal/retry"
	"github.com/rpattn/sheetingest/internal/secrets"
	"github.com/rpattn/sheetingest/internal/storage"
	"github.com/rpattn/sheetingest/internal/warehouse"
)

// App holds the long lived pieces of the process.
type App struct {
	Config   config.App
	Log      *zap.Logger
	Service  *ingestion.Service
	Registry *prometheus.Registry

	closers []func() error
}

// New builds the application from cfg.
func New(ctx context.Context, cfg config.App) (*App, error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}

	log, err := a.newLogger(ctx)
	if err != nil {
		return nil, err
	}
	a.Log = log

	store, err := a.newSecretStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.Registry)

	a.Service = ingestion.NewService(
		config.NewResolver(store, cfg.ProjectID, log),
		a.fetcherFactory(),
		a.warehouseFactory(),
		ingestion.WithLogger(log),
		ingestion.WithMetrics(m),
		ingestion.WithFetchPolicy(a.policy(cfg.Retry.FetchAttempts)),
		ingestion.WithLoadPolicy(a.policy(cfg.Retry.LoadAttempts)),
		ingestion.WithReferenceSnapshot(cfg.ReferenceSnapshot),
	)
	return a, nil
}

// Handler returns the HTTP surface: the trigger on "/", health and metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", ingestion.NewHTTPHandler(timeoutRunner{runner: a.Service, timeout: a.Config.RunTimeout}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: a.Config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return corsHandler.Handler(middleware.LoggingMiddleware(a.Log)(mux))
}

// Close releases clients in reverse order of creation and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.Log != nil {
			a.Log.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	if a.Log != nil {
		_ = a.Log.Sync()
	}
}

func (a *App) newLogger(ctx context.Context) (*zap.Logger, error) {
	var cores []zapcore.Core
	if a.Config.CloudLogging {
		if a.Config.ProjectID == "" {
			return nil, fmt.Errorf("cloud logging requires project_id")
		}
		level, err := logger.ParseLevel(a.Config.LogLevel)
		if err != nil {
			return nil, err
		}
		client, err := logging.NewClient(ctx, "projects/"+a.Config.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud logging client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		cores = append(cores, logger.NewCloudCore(client.Logger(logger.LogID), level))
	}
	return logger.New(a.Config.LogLevel, cores...)
}

// newSecretStore opens the configured store. Without a project to read
// secrets from, every option is absent and runs fall back to defaults.
func (a *App) newSecretStore(ctx context.Context) (secrets.Store, error) {
	switch a.Config.Secrets.Backend {
	case config.SecretsBackendStatic:
		return secrets.NewStaticStore(a.Config.Secrets.Values), nil
	default:
		if a.Config.Secrets.Project == "" {
			a.Log.Warn("no secrets project configured, using defaults only")
			return secrets.NewStaticStore(nil), nil
		}
		return secrets.NewSecretManagerStore(ctx, a.Config.Secrets.Project)
	}
}

func (a *App) fetcherFactory() ingestion.FetcherFactory {
	cfg := a.Config.Storage
	return func(ctx context.Context, settings config.Settings) (storage.Fetcher, error) {
		if cfg.Backend == config.StorageBackendDir {
			return storage.NewDirFetcher(cfg.Dir), nil
		}
		return storage.NewGCSFetcher(ctx)
	}
}

func (a *App) warehouseFactory() ingestion.WarehouseFactory {
	cfg := a.Config.Warehouse
	var (
		once   sync.Once
		memory *warehouse.Memory
	)
	return func(ctx context.Context, settings config.Settings) (warehouse.Warehouse, error) {
		switch cfg.Backend {
		case config.WarehouseBackendMemory:
			once.Do(func() { memory = warehouse.NewMemory() })
			return memory, nil
		case config.WarehouseBackendPostgres:
			conn, err := db.NewConnection(ctx, cfg.Database)
			if err != nil {
				return nil, err
			}
			return warehouse.NewPostgres(conn), nil
		default:
			return warehouse.NewBigQuery(ctx, settings.ProjectID, settings.Dataset, cfg.Location)
		}
	}
}

func (a *App) policy(attempts int) retry.Policy {
	return retry.Policy{
		Attempts:   attempts,
		Initial:    a.Config.Retry.Initial,
		Max:        a.Config.Retry.Max,
		Multiplier: a.Config.Retry.Multiplier,
	}
}

// timeoutRunner bounds each run by the configured run timeout.
type timeoutRunner struct {
	runner  ingestion.Runner
	timeout time.Duration
}

func (t timeoutRunner) Run(ctx context.Context) (ingestion.Summary, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.runner.Run(ctx)
}
