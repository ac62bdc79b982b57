package dag

import (
	"sync"

	"github.com/kbukum/pipekit/errors"
)

// NodeRegistry tracks the nodes of a pipeline in registration order.
type NodeRegistry struct {
	mu    sync.RWMutex
	nodes []Node
	index map[string]Node
}

// NewNodeRegistry creates an empty registry.
func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{index: make(map[string]Node)}
}

// Register adds node. A key can only be registered once.
func (r *NodeRegistry) Register(node Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[node.key]; exists {
		return errors.DuplicateRegistration("node", node.key)
	}
	r.index[node.key] = node
	r.nodes = append(r.nodes, node)
	return nil
}

// Nodes returns the registered nodes in registration order.
func (r *NodeRegistry) Nodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Node(nil), r.nodes...)
}

// Get returns the node registered under key.
func (r *NodeRegistry) Get(key string) (Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.index[key]
	if !ok {
		return Node{}, errors.NotFound("node", key)
	}
	return n, nil
}

// Contains reports whether node is registered.
func (r *NodeRegistry) Contains(node Node) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[node.key]
	return ok
}

// Len returns the number of registered nodes.
func (r *NodeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
