package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/pipekit/di"
	"github.com/kbukum/pipekit/logger"
)

// App runs a binary through a uniform lifecycle. C is the config type; any
// struct embedding config.ServiceConfig satisfies Config.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
//	    return a.RegisterComponent(srv)
//	})
//	app.Run(ctx)
type App[C Config] struct {
	Name      string
	Version   string
	Cfg       C
	Container *di.Container
	Logger    *logger.Logger

	components      *registry
	gracefulTimeout time.Duration
	onConfigure     []func(ctx context.Context, app *App[C]) error

	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// NewApp creates an application from a typed config. It applies defaults,
// validates the config and initializes the logger.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	base := cfg.GetServiceConfig()

	o := resolveOptions(opts)
	app := &App[C]{
		Name:            base.Name,
		Version:         base.Version,
		Cfg:             cfg,
		Container:       di.New(),
		gracefulTimeout: 15 * time.Second,
	}
	if o.container != nil {
		app.Container = o.container
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.logger != nil {
		app.Logger = o.logger
	} else {
		app.Logger = logger.Init(base.Logging, base.Name)
	}
	app.components = newRegistry(app.Logger.WithComponent("bootstrap"))
	return app, nil
}

// RegisterComponent adds a component. Components start in registration order.
func (a *App[C]) RegisterComponent(c Component) error {
	return a.components.register(c)
}

// Components returns the registered component names in start order.
func (a *App[C]) Components() []string {
	return a.components.list()
}

// OnConfigure registers a callback for the configure phase, which runs
// before components start. Components it registers start with the rest.
func (a *App[C]) OnConfigure(fn func(ctx context.Context, app *App[C]) error) {
	a.onConfigure = append(a.onConfigure, fn)
}

// Run executes the lifecycle of a long-running service and blocks until a
// shutdown signal or ctx ends.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.startup(ctx); err != nil {
		a.stop()
		return err
	}
	a.Logger.Info("Application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)
	return a.stop()
}

// RunTask executes a finite task with the same lifecycle. SIGINT/SIGTERM
// cancel the task context.
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		a.stop()
		return err
	}

	taskCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	taskErr := task(taskCtx)
	if stopErr := a.stop(); stopErr != nil && taskErr == nil {
		return stopErr
	}
	return taskErr
}

// startup runs configure callbacks, starts components, then runs start
// and ready hooks.
func (a *App[C]) startup(ctx context.Context) error {
	start := time.Now()
	a.Logger.Info("Starting application", map[string]interface{}{
		"name":    a.Name,
		"version": a.Version,
	})

	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return fmt.Errorf("configuration failed: %w", err)
		}
	}
	if err := a.components.startAll(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if err := runHooks(ctx, a.onStart); err != nil {
		return fmt.Errorf("onStart hook failed: %w", err)
	}
	if err := runHooks(ctx, a.onReady); err != nil {
		return fmt.Errorf("onReady hook failed: %w", err)
	}

	a.Logger.Info("Application started", map[string]interface{}{
		"components":         a.components.list(),
		logger.FieldDuration: time.Since(start).Milliseconds(),
	})
	return nil
}

// WaitForSignal blocks until an OS interrupt/term signal or context cancellation.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("Received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

// stop runs stop hooks, stops components in reverse order and closes the
// container, all within the graceful timeout.
func (a *App[C]) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var shutdownErr error
	if err := runHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("OnStop hook error", map[string]interface{}{logger.FieldError: err.Error()})
		shutdownErr = err
	}
	if err := a.components.stopAll(ctx); err != nil {
		a.Logger.Error("Shutdown completed with errors", map[string]interface{}{logger.FieldError: err.Error()})
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	if err := a.Container.Close(); err != nil {
		a.Logger.Error("DI container close error", map[string]interface{}{logger.FieldError: err.Error()})
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	a.Logger.Info("Application shutdown complete")
	return shutdownErr
}
