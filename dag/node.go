package dag

import (
	"strings"
)

// Node identifies one unit of work in a pipeline. Nodes are comparable and
// are used as map keys throughout.
type Node struct {
	key string
}

// NewNode creates a node with the given key.
func NewNode(key string) Node {
	return Node{key: key}
}

// Key returns the node key.
func (n Node) Key() string { return n.key }

func (n Node) String() string { return n.key }

// Port is a named slot on a node. T is the payload type; it is only
// checked by the typed Load and Publish helpers.
type Port[T any] struct {
	name string
}

// NewPort creates a typed port.
func NewPort[T any](name string) Port[T] {
	return Port[T]{name: name}
}

// Name returns the port name.
func (p Port[T]) Name() string { return p.name }

func (p Port[T]) String() string { return p.name }

// StorageKey locates a published value: a port on a specific node.
type StorageKey[T any] struct {
	node Node
	port Port[T]
}

// NewStorageKey creates a storage key.
func NewStorageKey[T any](node Node, port Port[T]) StorageKey[T] {
	return StorageKey[T]{node: node, port: port}
}

// Node returns the owning node.
func (k StorageKey[T]) Node() Node { return k.node }

// Port returns the port.
func (k StorageKey[T]) Port() Port[T] { return k.port }

func (k StorageKey[T]) String() string { return k.node.key + "." + k.port.name }

// Binding locates a port on a node. Optional marks an input the node can
// run without.
type Binding struct {
	Node     Node
	Port     string
	Optional bool
}

func (b Binding) String() string { return b.Node.key + "." + b.Port }

// SplitName splits a dotted port name into collection and entry. For a bare
// name the collection is empty.
func SplitName(name string) (collection, entry string) {
	c, e, ok := strings.Cut(name, ".")
	if !ok {
		return "", name
	}
	return c, e
}

// NodeSet is a set of nodes.
type NodeSet map[Node]struct{}

// NewNodeSet creates a set holding nodes.
func NewNodeSet(nodes ...Node) NodeSet {
	s := make(NodeSet, len(nodes))
	for _, n := range nodes {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts n.
func (s NodeSet) Add(n Node) { s[n] = struct{}{} }

// Has reports whether n is in the set.
func (s NodeSet) Has(n Node) bool {
	_, ok := s[n]
	return ok
}

// ContainsAll reports whether every node is in the set.
func (s NodeSet) ContainsAll(nodes []Node) bool {
	for _, n := range nodes {
		if !s.Has(n) {
			return false
		}
	}
	return true
}

func nodeKeys(nodes []Node) []string {
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.key
	}
	return keys
}
