package session

import (
	"sync"

	"github.com/kbukum/pipekit/dag"
)

// NodeState is the execution state of one node.
type NodeState string

// Node states.
const (
	NodePending   NodeState = "PENDING"
	NodeQueued    NodeState = "QUEUED"
	NodeRunning   NodeState = "RUNNING"
	NodeCompleted NodeState = "COMPLETED"
	NodeFailed    NodeState = "FAILED"
)

// SessionState is the lifecycle state of a session.
type SessionState string

// Session states.
const (
	SessionPending SessionState = "PENDING"
	SessionRunning SessionState = "RUNNING"
	SessionStopped SessionState = "STOPPED"
)

// NodeStates tracks the state of every node of a session. Nodes registered
// but never set are reported by Registered and read as PENDING.
type NodeStates struct {
	mu       sync.Mutex
	registry *dag.NodeRegistry
	states   map[dag.Node]NodeState
}

// NewNodeStates creates a state client over the nodes of registry.
func NewNodeStates(registry *dag.NodeRegistry) *NodeStates {
	return &NodeStates{registry: registry, states: make(map[dag.Node]NodeState)}
}

// Set overwrites the state of node. The last write wins.
func (s *NodeStates) Set(node dag.Node, state NodeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[node] = state
}

// Get returns the state of node, PENDING if never set.
func (s *NodeStates) Get(node dag.Node) NodeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[node]; ok {
		return st
	}
	return NodePending
}

// ByState returns the nodes in state, in registration order.
func (s *NodeStates) ByState(state NodeState) []dag.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dag.Node
	for _, n := range s.registry.Nodes() {
		st, ok := s.states[n]
		if !ok {
			st = NodePending
		}
		if st == state {
			out = append(out, n)
		}
	}
	return out
}

// Registered returns the nodes that have no explicit state yet.
func (s *NodeStates) Registered() []dag.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dag.Node
	for _, n := range s.registry.Nodes() {
		if _, ok := s.states[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Claim moves node from one state to another if it is currently in from.
// Exactly one of several concurrent callers succeeds.
func (s *NodeStates) Claim(node dag.Node, from, to NodeState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.states[node]
	if !ok {
		current = NodePending
	}
	if current != from {
		return false
	}
	s.states[node] = to
	return true
}

// AllIn reports whether every registered node is in state.
func (s *NodeStates) AllIn(state NodeState) bool {
	return len(s.ByState(state)) == s.registry.Len()
}

// SessionStates holds the lifecycle state of a session.
type SessionStates struct {
	mu    sync.Mutex
	state SessionState
}

// NewSessionStates creates a client in state PENDING.
func NewSessionStates() *SessionStates {
	return &SessionStates{state: SessionPending}
}

// Get returns the current state.
func (s *SessionStates) Get() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Set overwrites the current state.
func (s *SessionStates) Set(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Transition moves from one state to another if the current state is from.
func (s *SessionStates) Transition(from, to SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}
