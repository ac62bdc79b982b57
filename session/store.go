package session

import (
	"sync"

	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/errors"
)

// Sentinels for store failures, usable with errors.Is.
var (
	// ErrDuplicateData is returned when a (node, port) key is published twice.
	ErrDuplicateData = errors.ErrDuplicateRegistration
	// ErrDataNotFound is returned when loading a key nothing was published to.
	ErrDataNotFound = errors.ErrNotFound
)

// Store holds the values nodes publish during a session. A key is written
// at most once.
type Store interface {
	Publish(node dag.Node, port string, value any) error
	Load(node dag.Node, port string) (any, error)
	// Keys returns the published keys as "node.port", in publish order.
	Keys() []string
}

type storeKey struct {
	node dag.Node
	port string
}

func (k storeKey) String() string { return k.node.Key() + "." + k.port }

// MemoryStore is the default in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[storeKey]any
	order  []storeKey
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[storeKey]any)}
}

// Publish stores value under (node, port).
func (s *MemoryStore) Publish(node dag.Node, port string, value any) error {
	k := storeKey{node: node, port: port}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[k]; exists {
		return errors.DuplicateRegistration("data", k.String())
	}
	s.values[k] = value
	s.order = append(s.order, k)
	return nil
}

// Load returns the value stored under (node, port).
func (s *MemoryStore) Load(node dag.Node, port string) (any, error) {
	k := storeKey{node: node, port: port}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k]
	if !ok {
		return nil, errors.NotFound("data", k.String())
	}
	return v, nil
}

// Keys returns the published keys in publish order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, len(s.order))
	for i, k := range s.order {
		keys[i] = k.String()
	}
	return keys
}

// PublishItem stores a typed value.
func PublishItem[T any](s Store, key dag.StorageKey[T], value T) error {
	return s.Publish(key.Node(), key.Port().Name(), value)
}

// LoadItem loads a typed value. A value of another type fails with
// TYPE_MISMATCH.
func LoadItem[T any](s Store, key dag.StorageKey[T]) (T, error) {
	var zero T
	raw, err := s.Load(key.Node(), key.Port().Name())
	if err != nil {
		return zero, err
	}
	v, ok := raw.(T)
	if !ok {
		return zero, errors.TypeMismatch(key.String(), zero, raw)
	}
	return v, nil
}
