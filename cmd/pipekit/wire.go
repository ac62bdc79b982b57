package main

import (
	"context"
	stderrors "errors"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/pipekit/bootstrap"
	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/di"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/observability"
	"github.com/kbukum/pipekit/server"
	"github.com/kbukum/pipekit/session"
	"github.com/kbukum/pipekit/storage"

	_ "github.com/kbukum/pipekit/storage/azblob"
	_ "github.com/kbukum/pipekit/storage/local"
	_ "github.com/kbukum/pipekit/storage/s3"
)

// Container IDs.
var (
	loggerID    = di.NewID[*logger.Logger]("logger")
	storageID   = di.NewID[storage.Storage]("storage")
	metricsID   = di.NewID[*observability.NodeMetrics]("node_metrics")
	catalogID   = di.NewID[*dag.Catalog]("catalog")
	providersID = di.NewID[*session.Providers]("providers")
)

type App = bootstrap.App[*Config]

// configure registers the shared services and the pipeline registry.
func configure(_ context.Context, app *App) error {
	cfg := app.Cfg
	c := app.Container

	if err := di.Instance(c, loggerID, app.Logger); err != nil {
		return err
	}
	if err := di.Provide(c, storageID, func(c *di.Container) (storage.Storage, error) {
		log := di.MustGet(c, loggerID)
		return storage.New(cfg.Storage, log.WithComponent("storage"))
	}); err != nil {
		return err
	}
	if err := di.Provide(c, metricsID, func(*di.Container) (*observability.NodeMetrics, error) {
		return observability.NewNodeMetrics(observability.Meter(cfg.Name))
	}); err != nil {
		return err
	}
	if err := di.Provide(c, catalogID, func(c *di.Container) (*dag.Catalog, error) {
		store, err := di.Get(c, storageID)
		if err != nil {
			return nil, err
		}
		return newCatalog(store)
	}); err != nil {
		return err
	}
	if err := di.Provide(c, providersID, func(c *di.Container) (*session.Providers, error) {
		catalog, err := di.Get(c, catalogID)
		if err != nil {
			return nil, err
		}
		metrics, err := di.Get(c, metricsID)
		if err != nil {
			return nil, err
		}
		log := di.MustGet(c, loggerID)
		opts := append(cfg.Session.Options(),
			session.WithLogger(log.WithComponent("session")),
			session.WithMetrics(metrics),
		)
		providers := session.NewProviders()
		if err := registerPipelines(providers, catalog, cfg.Pipelines, log, opts...); err != nil {
			return nil, err
		}
		return providers, nil
	}); err != nil {
		return err
	}

	// Observability starts first so exporters see every session.
	return app.RegisterComponent(telemetry(cfg, app.Logger))
}

// configureServer adds the HTTP server and session API.
func configureServer(_ context.Context, app *App) error {
	cfg := app.Cfg
	providers, err := di.Get(app.Container, providersID)
	if err != nil {
		return err
	}
	store, err := di.Get(app.Container, storageID)
	if err != nil {
		return err
	}

	api := server.NewAPI(providers,
		server.WithStorage(store),
		server.WithRunTimeout(cfg.Server.RunTimeoutDuration()),
		server.WithMaxSessions(cfg.Server.MaxSessions),
		server.WithLogger(app.Logger),
	)
	srv := server.New(cfg.Server, app.Logger)
	srv.ApplyDefaults(cfg.Name, api.HealthCheck)
	api.Register(srv.GinEngine(), cfg.Server.RunsPerMinute)

	return app.RegisterComponent(bootstrap.ComponentFunc("server", srv.Start, func(ctx context.Context) error {
		err := srv.Stop(ctx)
		api.Wait()
		return err
	}))
}

// telemetry installs the OTLP tracer and meter providers when enabled and
// flushes them on stop.
func telemetry(cfg *Config, log *logger.Logger) bootstrap.Component {
	var (
		tp *sdktrace.TracerProvider
		mp *sdkmetric.MeterProvider
	)
	start := func(ctx context.Context) error {
		if !cfg.Observability.Enabled {
			log.Debug("Observability disabled")
			return nil
		}
		var err error
		tp, err = observability.InitTracer(ctx, cfg.Observability.Tracer(cfg.Name, cfg.Version, cfg.Environment))
		if err != nil {
			return err
		}
		mp, err = observability.InitMeter(ctx, cfg.Observability.Meter(cfg.Name, cfg.Version, cfg.Environment))
		if err != nil {
			shutdownErr := tp.Shutdown(ctx)
			tp = nil
			return stderrors.Join(err, shutdownErr)
		}
		return nil
	}
	stop := func(ctx context.Context) error {
		var errs []error
		if tp != nil {
			errs = append(errs, tp.Shutdown(ctx))
		}
		if mp != nil {
			errs = append(errs, mp.Shutdown(ctx))
		}
		return stderrors.Join(errs...)
	}
	return bootstrap.ComponentFunc("observability", start, stop)
}
