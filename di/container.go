package di

import (
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/kbukum/pipekit/errors"
)

// RegistrationMode determines how a component is resolved.
type RegistrationMode int

const (
	Lazy      RegistrationMode = iota // Initialize on first resolve
	Singleton                         // Pre-created instance
)

func (m RegistrationMode) String() string {
	if m == Singleton {
		return "singleton"
	}
	return "lazy"
}

// ID is a typed service identifier.
type ID[T any] struct {
	name string
}

// NewID creates a typed identifier.
func NewID[T any](name string) ID[T] {
	return ID[T]{name: name}
}

// Name returns the identifier's name.
func (id ID[T]) Name() string { return id.name }

func (id ID[T]) String() string { return id.name }

// RegistrationInfo describes a registered component for introspection.
type RegistrationInfo struct {
	Key         string
	Mode        RegistrationMode
	Initialized bool
}

type registration struct {
	key   string
	mode  RegistrationMode
	build func(*Container) (any, error)

	mu          sync.Mutex
	instance    any
	initialized bool
}

type state struct {
	mu      sync.RWMutex
	entries map[string]*registration
	order   []string
	groups  map[string][]any
	built   []*registration
	closed  bool
}

// Container resolves registered services. The value handed to providers
// carries the resolution path so dependency cycles fail instead of hanging.
type Container struct {
	s    *state
	path []string
}

// New creates an empty container.
func New() *Container {
	return &Container{s: &state{
		entries: make(map[string]*registration),
		groups:  make(map[string][]any),
	}}
}

func (c *Container) register(r *registration) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.closed {
		return errors.Internal(fmt.Errorf("container is closed"))
	}
	if _, exists := c.s.entries[r.key]; exists {
		return errors.DuplicateRegistration("service", r.key)
	}
	c.s.entries[r.key] = r
	c.s.order = append(c.s.order, r.key)
	return nil
}

// Provide registers a lazy constructor for id. It runs once, on first Get.
func Provide[T any](c *Container, id ID[T], constructor func(*Container) (T, error)) error {
	return c.register(&registration{
		key:  id.name,
		mode: Lazy,
		build: func(c *Container) (any, error) {
			return constructor(c)
		},
	})
}

// Instance registers an already constructed value for id.
func Instance[T any](c *Container, id ID[T], value T) error {
	r := &registration{key: id.name, mode: Singleton, instance: value, initialized: true}
	if err := c.register(r); err != nil {
		return err
	}
	c.s.mu.Lock()
	c.s.built = append(c.s.built, r)
	c.s.mu.Unlock()
	return nil
}

// Get resolves id, running its constructor on first use.
func Get[T any](c *Container, id ID[T]) (T, error) {
	var zero T
	v, err := c.resolve(id.name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.TypeMismatch(id.name, zero, v)
	}
	return typed, nil
}

// MustGet resolves id or panics. Use during startup wiring only.
func MustGet[T any](c *Container, id ID[T]) T {
	v, err := Get(c, id)
	if err != nil {
		panic(fmt.Sprintf("di: %v", err))
	}
	return v
}

func (c *Container) resolve(key string) (any, error) {
	for _, k := range c.path {
		if k == key {
			return nil, errors.CycleDetected(append(append([]string(nil), c.path...), key))
		}
	}

	c.s.mu.RLock()
	r, ok := c.s.entries[key]
	c.s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("service", key, c.keys()...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return r.instance, nil
	}

	child := &Container{s: c.s, path: append(append([]string(nil), c.path...), key)}
	instance, err := r.build(child)
	if err != nil {
		return nil, fmt.Errorf("di: resolve %s: %w", key, err)
	}
	r.instance = instance
	r.initialized = true

	c.s.mu.Lock()
	c.s.built = append(c.s.built, r)
	c.s.mu.Unlock()
	return instance, nil
}

// AddToGroup appends value to the group named by id.
func AddToGroup[T any](c *Container, id ID[T], value T) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.groups[id.name] = append(c.s.groups[id.name], value)
}

// GetGroup returns every value added to the group, in registration order.
// An unknown group is empty.
func GetGroup[T any](c *Container, id ID[T]) []T {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	members := c.s.groups[id.name]
	out := make([]T, 0, len(members))
	for _, m := range members {
		out = append(out, m.(T))
	}
	return out
}

// Registrations lists registered components in registration order.
func (c *Container) Registrations() []RegistrationInfo {
	c.s.mu.RLock()
	entries := make([]*registration, 0, len(c.s.order))
	for _, key := range c.s.order {
		entries = append(entries, c.s.entries[key])
	}
	c.s.mu.RUnlock()

	infos := make([]RegistrationInfo, 0, len(entries))
	for _, r := range entries {
		r.mu.Lock()
		infos = append(infos, RegistrationInfo{Key: r.key, Mode: r.mode, Initialized: r.initialized})
		r.mu.Unlock()
	}
	return infos
}

func (c *Container) keys() []string {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	keys := append([]string(nil), c.s.order...)
	sort.Strings(keys)
	return keys
}

// Close closes every resolved instance implementing io.Closer, in reverse
// construction order. Further registrations fail.
func (c *Container) Close() error {
	c.s.mu.Lock()
	if c.s.closed {
		c.s.mu.Unlock()
		return nil
	}
	c.s.closed = true
	built := c.s.built
	c.s.mu.Unlock()

	var errs []error
	for i := len(built) - 1; i >= 0; i-- {
		if closer, ok := built[i].instance.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", built[i].key, err))
			}
		}
	}
	return stderrors.Join(errs...)
}
