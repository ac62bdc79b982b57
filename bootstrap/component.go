package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
)

// Component is a lifecycle-managed piece of infrastructure: an HTTP server,
// a telemetry exporter, a storage client.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ComponentFunc builds a Component from start and stop functions. Either may be nil.
func ComponentFunc(name string, start, stop func(ctx context.Context) error) Component {
	return &funcComponent{name: name, start: start, stop: stop}
}

type funcComponent struct {
	name        string
	start, stop func(ctx context.Context) error
}

func (c *funcComponent) Name() string { return c.name }

func (c *funcComponent) Start(ctx context.Context) error {
	if c.start == nil {
		return nil
	}
	return c.start(ctx)
}

func (c *funcComponent) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	return c.stop(ctx)
}

type componentEntry struct {
	component Component
	started   bool
}

// registry starts components in registration order and stops them in reverse.
type registry struct {
	mu      sync.Mutex
	entries []*componentEntry
	names   map[string]bool
	log     *logger.Logger
}

func newRegistry(log *logger.Logger) *registry {
	return &registry{names: make(map[string]bool), log: log}
}

func (r *registry) register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if r.names[name] {
		return errors.DuplicateRegistration("component", name)
	}
	r.names[name] = true
	r.entries = append(r.entries, &componentEntry{component: c})
	r.log.Debug("Component registered", map[string]interface{}{"component": name})
	return nil
}

func (r *registry) startAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		name := entry.component.Name()
		if err := entry.component.Start(ctx); err != nil {
			r.log.Error("Component start failed", map[string]interface{}{
				"component":       name,
				logger.FieldError: err.Error(),
			})
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		entry.started = true
		r.log.Debug("Component started", map[string]interface{}{"component": name})
	}
	return nil
}

func (r *registry) stopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]
		if !entry.started {
			continue
		}
		name := entry.component.Name()
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := entry.component.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", name, err))
			r.log.Error("Component stop failed", map[string]interface{}{
				"component":       name,
				logger.FieldError: err.Error(),
			})
		} else {
			r.log.Debug("Component stopped", map[string]interface{}{"component": name})
		}
		entry.started = false
		cancel()
	}
	return stderrors.Join(errs...)
}

func (r *registry) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.component.Name()
	}
	return out
}
