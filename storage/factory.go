package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
)

// StorageFactory creates a Storage implementation from config.
type StorageFactory func(cfg Config, log *logger.Logger) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]StorageFactory{
		ProviderMemory: func(Config, *logger.Logger) (Storage, error) { return NewMemory(), nil },
	}
)

// RegisterFactory registers a storage backend factory for the given provider name.
// Implementation packages call this (typically in an init function) to make
// themselves available to the New constructor.
func RegisterFactory(name string, f StorageFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates a Storage implementation based on the given Config.
// The provider field determines which backend is used. Ensure the desired
// provider package has been imported (e.g. _ "github.com/kbukum/pipekit/storage/local")
// so its factory is registered.
func New(cfg Config, log *logger.Logger) (Storage, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Validation(err.Error())
	}
	if log == nil {
		log = logger.Nop()
	}
	l := log.WithComponent("storage")

	factoriesMu.RLock()
	f, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, errors.NotFound("storage provider", cfg.Provider, Providers()...)
	}

	l.Info("initializing storage", map[string]interface{}{"provider": cfg.Provider})
	s, err := f(cfg, l)
	if err != nil {
		return nil, fmt.Errorf("storage: init %s: %w", cfg.Provider, err)
	}
	if cfg.Retry.Enabled() || cfg.Breaker.Enabled() {
		s = Resilient(s, cfg.Provider, cfg.Retry, cfg.Breaker, l)
	}
	return s, nil
}
