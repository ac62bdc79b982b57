package session

import (
	"slices"
	"sync"

	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/errors"
)

// Provider creates a fresh session. Options given by the caller are applied
// after the provider's own.
type Provider func(opts ...Option) (*Session, error)

// PipelineProvider returns a Provider creating sessions of p.
func PipelineProvider(p *dag.Pipeline, opts ...Option) Provider {
	return func(extra ...Option) (*Session, error) {
		return New(p, append(slices.Clone(opts), extra...)...)
	}
}

// Providers maps pipeline names to session providers.
type Providers struct {
	mu        sync.RWMutex
	providers map[string]Provider
	pipelines map[string]*dag.Pipeline
}

// NewProviders creates an empty provider registry.
func NewProviders() *Providers {
	return &Providers{
		providers: make(map[string]Provider),
		pipelines: make(map[string]*dag.Pipeline),
	}
}

// Register adds a provider under name.
func (r *Providers) Register(name string, p Provider) error {
	if name == "" || p == nil {
		return errors.InvalidInput("name", "provider needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return errors.DuplicateRegistration("provider", name)
	}
	r.providers[name] = p
	return nil
}

// Pipeline registers a provider for p under name. The pipeline stays
// available through Lookup.
func (r *Providers) Pipeline(name string, p *dag.Pipeline, opts ...Option) error {
	if err := r.Register(name, PipelineProvider(p, opts...)); err != nil {
		return err
	}
	r.mu.Lock()
	r.pipelines[name] = p
	r.mu.Unlock()
	return nil
}

// Lookup returns the pipeline registered with Pipeline under name.
func (r *Providers) Lookup(name string) (*dag.Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[name]
	return p, ok
}

// Names returns the registered names, sorted.
func (r *Providers) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CreateSession creates a session from the provider registered under name.
// An unknown name fails with PROVIDER_NOT_FOUND listing the known names.
func (r *Providers) CreateSession(name string, opts ...Option) (*Session, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.ProviderNotFound(name, r.Names())
	}
	return p(opts...)
}
