package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/observability"
)

// Session executes one pipeline once.
type Session struct {
	id       uuid.UUID
	name     string
	pipeline *dag.Pipeline
	registry *dag.NodeRegistry
	deps     *dag.DependencyGraph
	exes     map[dag.Node]dag.Executable
	wiring   *wiring
	store    Store
	opts     options
	log      *logger.Logger

	nodes    *NodeStates
	state    *SessionStates
	commands []Command

	mu       sync.Mutex
	results  map[dag.Node]nodeResult
	ticks    int
	started  time.Time
	duration time.Duration
}

type nodeResult struct {
	duration time.Duration
	err      error
}

// New creates a session for p. Every required input of p must be given a
// value with WithInputs; unknown input names are rejected.
func New(p *dag.Pipeline, opts ...Option) (*Session, error) {
	if p == nil {
		return nil, errors.InvalidInput("pipeline", "pipeline is nil")
	}
	registry := p.Registry()
	deps, err := p.DependencyGraph(registry)
	if err != nil {
		return nil, err
	}
	exes := make(map[dag.Node]dag.Executable, registry.Len())
	for _, n := range registry.Nodes() {
		exe, ok := p.Executable(n)
		if !ok {
			return nil, errors.NotFound("executable", n.Key())
		}
		exes[n] = exe
	}
	s, err := newSession(p.Name(), p, registry, deps, exes, opts)
	if err != nil {
		return nil, err
	}
	if err := s.publishInputs(); err != nil {
		return nil, err
	}
	return s, nil
}

// FromGraph creates a session over hand-registered nodes. No port wiring is
// known, so executables can publish any port but load nothing. Dependencies
// on unregistered nodes are allowed and make the session deadlock.
func FromGraph(name string, registry *dag.NodeRegistry, deps *dag.DependencyGraph, exes map[dag.Node]dag.Executable, opts ...Option) (*Session, error) {
	for _, n := range registry.Nodes() {
		if _, ok := exes[n]; !ok {
			return nil, errors.NotFound("executable", n.Key())
		}
	}
	return newSession(name, nil, registry, deps, maps.Clone(exes), opts)
}

func newSession(name string, p *dag.Pipeline, registry *dag.NodeRegistry, deps *dag.DependencyGraph, exes map[dag.Node]dag.Executable, opts []Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.policy != FailFast && o.policy != ContinueOnFailure {
		return nil, errors.InvalidInput("failure_policy", fmt.Sprintf("unknown failure policy %q", o.policy))
	}
	if o.id == uuid.Nil {
		o.id = uuid.New()
	}
	if o.store == nil {
		o.store = NewMemoryStore()
	}
	log := o.log
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("session").WithFields(map[string]interface{}{
		logger.FieldSessionID: o.id.String(),
		logger.FieldPipeline:  name,
	})

	for n, exe := range exes {
		if o.metrics != nil {
			exe = dag.WithMetrics(exe, o.metrics, name)
		}
		if o.log != nil {
			exe = dag.WithLogging(exe, log)
		}
		if o.tracing {
			exe = dag.WithTracing(exe, observability.SpanNodeExecute)
		}
		exes[n] = exe
	}

	s := &Session{
		id:       o.id,
		name:     name,
		pipeline: p,
		registry: registry,
		deps:     deps,
		exes:     exes,
		wiring:   newWiring(p),
		store:    o.store,
		opts:     o,
		log:      log,
		nodes:    NewNodeStates(registry),
		state:    NewSessionStates(),
		results:  make(map[dag.Node]nodeResult),
	}
	s.commands = []Command{
		&PromoteRegisteredNodes{nodes: s.nodes},
		&PromoteQueuedNodes{nodes: s.nodes, deps: s.deps},
		&ExecuteFrame{session: s},
		&CloseFrame{nodes: s.nodes, stop: s.Stop},
	}
	return s, nil
}

func (s *Session) publishInputs() error {
	inputs := s.pipeline.Inputs()
	for _, name := range slices.Sorted(maps.Keys(s.opts.inputs)) {
		if _, ok := inputs.Get(name); !ok {
			return errors.NotFound("input", name, inputs.Names()...)
		}
		if err := s.store.Publish(InputsNode, name, s.opts.inputs[name]); err != nil {
			return err
		}
	}
	for _, param := range inputs.All() {
		if _, ok := s.opts.inputs[param.Name]; !ok && param.Required() {
			return errors.NotFound("input value", param.Name).
				WithDetail("pipeline", s.name)
		}
	}
	return nil
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Name returns the pipeline name.
func (s *Session) Name() string { return s.name }

// Pipeline returns the pipeline being run, nil for sessions built FromGraph.
func (s *Session) Pipeline() *dag.Pipeline { return s.pipeline }

// State returns the session state.
func (s *Session) State() SessionState { return s.state.Get() }

// NodeState returns the state of node.
func (s *Session) NodeState(node dag.Node) NodeState { return s.nodes.Get(node) }

// Nodes returns the node state client.
func (s *Session) Nodes() *NodeStates { return s.nodes }

// Store returns the data store.
func (s *Session) Store() Store { return s.store }

// Stop marks the session STOPPED. The loop exits before the next tick; a
// frame already executing finishes first. Stop is idempotent.
func (s *Session) Stop() {
	if s.state.Get() != SessionStopped {
		s.state.Set(SessionStopped)
		s.log.Debug("session stop requested")
	}
}

// Run ticks the pipeline frame until the session stops. It returns nil once
// every node has completed, DEADLOCK when no node can run, NODE_FAILED
// according to the failure policy, and CANCELED when ctx ends.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.Transition(SessionPending, SessionRunning) {
		return errors.InvalidInput("session", fmt.Sprintf("session %s is %s, not PENDING", s.id, s.state.Get()))
	}
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	if s.opts.tracing {
		var span trace.Span
		ctx, span = observability.StartSpan(ctx, observability.SpanSessionRun, trace.WithAttributes(
			attribute.String(observability.AttrPipeline, s.name),
			attribute.String(observability.AttrSessionID, s.id.String()),
		))
		defer span.End()
	}
	s.log.WithContext(ctx).Info("session started", map[string]interface{}{"nodes": s.registry.Len()})

	var err error
	for s.state.Get() == SessionRunning {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Canceled(ctxErr)
			break
		}
		if err = s.tick(ctx); err != nil {
			break
		}
	}
	s.Stop()
	if err == nil {
		err = s.failure()
	}
	return s.finish(ctx, err)
}

func (s *Session) tick(ctx context.Context) error {
	s.mu.Lock()
	s.ticks++
	tick := s.ticks
	s.mu.Unlock()

	if s.opts.tracing {
		var span trace.Span
		ctx, span = observability.StartSpan(ctx, observability.SpanSessionTick,
			trace.WithAttributes(attribute.Int(observability.AttrTick, tick)))
		defer span.End()
	}
	if s.opts.metrics != nil {
		s.opts.metrics.RecordTick(ctx, s.name)
	}
	for _, cmd := range s.commands {
		if err := cmd.Execute(ctx); err != nil {
			if s.opts.tracing {
				observability.SetSpanError(ctx, err)
			}
			return err
		}
	}
	return nil
}

// failure reports the nodes that failed during the run, if any.
func (s *Session) failure() error {
	failed := s.nodes.ByState(NodeFailed)
	if len(failed) == 0 {
		return nil
	}
	s.mu.Lock()
	errs := make([]error, 0, len(failed))
	for _, n := range failed {
		if r := s.results[n]; r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n, r.err))
		}
	}
	s.mu.Unlock()
	return errors.NodeFailed(keysOf(failed), stderrors.Join(errs...))
}

func (s *Session) finish(ctx context.Context, err error) error {
	s.mu.Lock()
	s.duration = time.Since(s.started)
	ticks, duration := s.ticks, s.duration
	s.mu.Unlock()

	status := "completed"
	if err != nil {
		status = "failed"
		if s.opts.tracing {
			observability.SetSpanError(ctx, err)
		}
	}
	if s.opts.metrics != nil {
		s.opts.metrics.RecordSession(ctx, s.name, status)
	}
	fields := map[string]interface{}{
		logger.FieldTick:     ticks,
		logger.FieldDuration: duration.Milliseconds(),
		logger.FieldState:    status,
	}
	log := s.log.WithContext(ctx)
	if err != nil {
		log.WithError(err).Error("session stopped", fields)
	} else {
		log.Info("session stopped", fields)
	}
	return err
}

// executeNode runs one claimed node and records its outcome.
func (s *Session) executeNode(ctx context.Context, node dag.Node) error {
	io := &nodeIO{node: node, store: s.store, wiring: s.wiring}
	start := time.Now()
	err := safeExecute(ctx, s.exes[node], io)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.results[node] = nodeResult{duration: elapsed, err: err}
	s.mu.Unlock()

	if err != nil {
		s.nodes.Set(node, NodeFailed)
		s.log.Debug("node state changed", logger.Fields(logger.FieldNode, node.Key(), logger.FieldState, NodeFailed))
		return err
	}
	s.nodes.Set(node, NodeCompleted)
	s.log.Debug("node state changed", logger.Fields(logger.FieldNode, node.Key(), logger.FieldState, NodeCompleted))
	return nil
}

// safeExecute turns a panic inside exe into an error.
func safeExecute(ctx context.Context, exe dag.Executable, io dag.PortIO) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Internal(fmt.Errorf("node %s panicked: %v", io.Node(), r))
		}
	}()
	return exe.Execute(ctx, io)
}

// Output returns the value of a pipeline output. An output bound to one
// node port yields that value; a union yields []any in union order; a
// collection name yields map[string]any keyed by entry.
func (s *Session) Output(name string) (any, error) {
	if s.pipeline == nil {
		return nil, errors.NotFound("output", name)
	}
	outputs := s.pipeline.Outputs()
	if param, ok := outputs.Get(name); ok {
		return s.loadParam(param)
	}
	entries := outputs.Collection(name)
	if entries.Len() == 0 {
		return nil, errors.NotFound("output", name, outputs.Names()...)
	}
	values := make(map[string]any, entries.Len())
	for _, param := range entries.All() {
		v, err := s.loadParam(param)
		if err != nil {
			return nil, err
		}
		values[param.Entry()] = v
	}
	return values, nil
}

// Outputs returns every pipeline output that has a value.
func (s *Session) Outputs() map[string]any {
	out := make(map[string]any)
	if s.pipeline == nil {
		return out
	}
	for _, param := range s.pipeline.Outputs().All() {
		if v, err := s.loadParam(param); err == nil {
			out[param.Name] = v
		}
	}
	return out
}

func (s *Session) loadParam(param dag.Param) (any, error) {
	keys := make([]storeKey, len(param.Bindings))
	for i, b := range param.Bindings {
		keys[i] = storeKey{node: b.Node, port: b.Port}
	}
	return loadKeys(s.store, keys)
}

func keysOf(nodes []dag.Node) []string {
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Key()
	}
	return keys
}
