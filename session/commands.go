package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
)

// Command is one step of a tick.
type Command interface {
	Name() string
	Execute(ctx context.Context) error
}

// PromoteRegisteredNodes moves nodes without a state into PENDING.
type PromoteRegisteredNodes struct {
	nodes *NodeStates
}

// Name returns the command name.
func (c *PromoteRegisteredNodes) Name() string { return "promote_registered_nodes" }

// Execute promotes every registered node.
func (c *PromoteRegisteredNodes) Execute(context.Context) error {
	for _, n := range c.nodes.Registered() {
		c.nodes.Set(n, NodePending)
	}
	return nil
}

// PromoteQueuedNodes queues every PENDING node whose dependencies have all
// completed.
type PromoteQueuedNodes struct {
	nodes *NodeStates
	deps  *dag.DependencyGraph
}

// Name returns the command name.
func (c *PromoteQueuedNodes) Name() string { return "promote_queued_nodes" }

// Execute queues the runnable nodes.
func (c *PromoteQueuedNodes) Execute(context.Context) error {
	completed := dag.NewNodeSet(c.nodes.ByState(NodeCompleted)...)
	for _, n := range c.deps.Runnable(completed) {
		c.nodes.Claim(n, NodePending, NodeQueued)
	}
	return nil
}

// ExecuteFrame claims and runs every QUEUED node.
type ExecuteFrame struct {
	session *Session
}

// Name returns the command name.
func (c *ExecuteFrame) Name() string { return "execute_frame" }

// Execute runs the frame. With nothing QUEUED it fails with DEADLOCK, unless
// every stuck node waits on a failed one; then the session stops and the
// failures are reported by Run.
func (c *ExecuteFrame) Execute(ctx context.Context) error {
	s := c.session
	queued := s.nodes.ByState(NodeQueued)
	if len(queued) == 0 {
		return c.stalled()
	}

	failed := c.run(ctx, queued)
	if len(failed) > 0 && s.opts.policy == FailFast {
		s.Stop()
		nodes := make([]string, len(failed))
		errs := make([]error, len(failed))
		for i, f := range failed {
			nodes[i] = f.node.Key()
			errs[i] = fmt.Errorf("%s: %w", f.node, f.err)
		}
		return errors.NodeFailed(nodes, stderrors.Join(errs...))
	}
	return nil
}

type frameFailure struct {
	node dag.Node
	err  error
}

// run executes nodes one at a time, or concurrently bounded by MaxParallel.
// Failures are returned in registration order.
func (c *ExecuteFrame) run(ctx context.Context, nodes []dag.Node) []frameFailure {
	s := c.session
	errs := make([]error, len(nodes))

	if s.opts.maxParallel <= 1 || len(nodes) == 1 {
		for i, n := range nodes {
			if s.nodes.Claim(n, NodeQueued, NodeRunning) {
				errs[i] = s.executeNode(ctx, n)
			}
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, min(s.opts.maxParallel, len(nodes)))
		for i, n := range nodes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				if s.nodes.Claim(n, NodeQueued, NodeRunning) {
					errs[i] = s.executeNode(ctx, n)
				}
			}()
		}
		wg.Wait()
	}

	var failed []frameFailure
	for i, err := range errs {
		if err != nil {
			failed = append(failed, frameFailure{node: nodes[i], err: err})
			s.log.Error("node failed", logger.Fields(logger.FieldNode, nodes[i].Key(), logger.FieldError, err.Error()))
		}
	}
	return failed
}

// stalled decides between a deadlock and a run that ended on failures.
func (c *ExecuteFrame) stalled() error {
	s := c.session
	failed := s.nodes.ByState(NodeFailed)
	blocked := dag.NewNodeSet(failed...)
	var pending []dag.Node
	for _, n := range s.registry.Nodes() {
		if st := s.nodes.Get(n); st != NodeCompleted && st != NodeFailed {
			pending = append(pending, n)
		}
	}
	// Every node settled but some failed: the run is over.
	if len(pending) == 0 {
		s.Stop()
		return nil
	}

	// Grow the set of nodes waiting on a failure until it is stable.
	for changed := len(failed) > 0; changed; {
		changed = false
		for _, n := range pending {
			if blocked.Has(n) {
				continue
			}
			for _, d := range s.deps.Dependencies(n) {
				if blocked.Has(d) {
					blocked.Add(n)
					changed = true
					break
				}
			}
		}
	}

	var stuck []dag.Node
	for _, n := range pending {
		if !blocked.Has(n) {
			stuck = append(stuck, n)
		}
	}
	if len(stuck) > 0 {
		s.log.Error("no runnable nodes", logger.Fields("pending", keysOf(pending)))
		return errors.Deadlock(keysOf(pending))
	}
	s.Stop()
	return nil
}

// CloseFrame stops the session once every node has completed.
type CloseFrame struct {
	nodes *NodeStates
	stop  func()
}

// Name returns the command name.
func (c *CloseFrame) Name() string { return "close_frame" }

// Execute stops the session when the pipeline is done.
func (c *CloseFrame) Execute(context.Context) error {
	if c.nodes.AllIn(NodeCompleted) {
		c.stop()
	}
	return nil
}
