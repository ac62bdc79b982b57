package dag

import (
	"sync"

	"github.com/kbukum/pipekit/errors"
)

// DependencyGraph maps each node to the nodes it must wait for.
type DependencyGraph struct {
	mu       sync.RWMutex
	registry *NodeRegistry
	deps     map[Node][]Node
}

// NewDependencyGraph creates a graph over the nodes of registry.
func NewDependencyGraph(registry *NodeRegistry) *DependencyGraph {
	return &DependencyGraph{registry: registry, deps: make(map[Node][]Node)}
}

// Register records the full dependency set of node. A node's set is
// registered exactly once; duplicates within deps are dropped.
func (g *DependencyGraph) Register(node Node, deps []Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.deps[node]; exists {
		return errors.DuplicateRegistration("dependencies", node.key)
	}
	g.deps[node] = dedupeNodes(deps)
	return nil
}

// Dependencies returns the dependency set of node, empty if none was registered.
func (g *DependencyGraph) Dependencies(node Node) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Node(nil), g.deps[node]...)
}

// Runnable returns, in registration order, every node outside completed
// whose whole dependency set is inside completed. It is evaluated from
// scratch on every call.
func (g *DependencyGraph) Runnable(completed NodeSet) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Node
	for _, n := range g.registry.Nodes() {
		if completed.Has(n) {
			continue
		}
		if completed.ContainsAll(g.deps[n]) {
			out = append(out, n)
		}
	}
	return out
}

// Levels groups the registered nodes by dependency depth.
func (g *DependencyGraph) Levels() ([][]Node, error) {
	g.mu.RLock()
	deps := make(map[Node][]Node, len(g.deps))
	for n, d := range g.deps {
		deps[n] = d
	}
	g.mu.RUnlock()
	return Levels(g.registry.Nodes(), deps)
}

func dedupeNodes(nodes []Node) []Node {
	seen := make(NodeSet, len(nodes))
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if seen.Has(n) {
			continue
		}
		seen.Add(n)
		out = append(out, n)
	}
	return out
}
