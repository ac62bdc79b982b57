package session

import (
	"time"
)

// Report summarizes a session.
type Report struct {
	ID       string        `json:"id"`
	Pipeline string        `json:"pipeline"`
	State    SessionState  `json:"state"`
	Ticks    int           `json:"ticks"`
	Duration time.Duration `json:"duration"`
	Nodes    []NodeReport  `json:"nodes"`
}

// NodeReport holds the outcome of a single node.
type NodeReport struct {
	Node     string        `json:"node"`
	State    NodeState     `json:"state"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Failed returns the reports of failed nodes.
func (r Report) Failed() []NodeReport {
	var out []NodeReport
	for _, n := range r.Nodes {
		if n.State == NodeFailed {
			out = append(out, n)
		}
	}
	return out
}

// Report returns the current per-node states, durations and errors in
// registration order.
func (s *Session) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	duration := s.duration
	if s.state.Get() == SessionRunning {
		duration = time.Since(s.started)
	}
	r := Report{
		ID:       s.id.String(),
		Pipeline: s.name,
		State:    s.state.Get(),
		Ticks:    s.ticks,
		Duration: duration,
	}
	for _, n := range s.registry.Nodes() {
		nr := NodeReport{Node: n.Key(), State: s.nodes.Get(n)}
		if res, ok := s.results[n]; ok {
			nr.Duration = res.duration
			if res.err != nil {
				nr.Error = res.err.Error()
			}
		}
		r.Nodes = append(r.Nodes, nr)
	}
	return r
}
