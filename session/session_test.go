package session

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/errors"
)

// --- test helpers ---

var (
	portX  = dag.NewPort[float64]("x")
	portZ  = dag.NewPort[float64]("z")
	portZ1 = dag.NewPort[float64]("z1")
	portZ2 = dag.NewPort[float64]("z2")
	portX1 = dag.NewPort[float64]("x1")
	portX2 = dag.NewPort[float64]("x2")
)

var errBoom = stderrors.New("boom")

// recorder records node invocations in order.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, key)
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

func (r *recorder) index(key string) int { return slices.Index(r.calls(), key) }

func scale(rec *recorder, factor float64) dag.Executable {
	return dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		rec.add(io.Node().Key())
		x, err := dag.Load(io, portX)
		if err != nil {
			return err
		}
		return dag.Publish(io, portZ, x*factor)
	})
}

func record(rec *recorder, err error) dag.Executable {
	return dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		rec.add(io.Node().Key())
		return err
	})
}

type joined struct {
	mu     sync.Mutex
	x1, x2 float64
}

func diamondPipeline(t *testing.T, rec *recorder, got *joined) *dag.Pipeline {
	t.Helper()
	a := dag.MustTask("a", dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		rec.add("a")
		if err := dag.Publish(io, portZ1, 1.0); err != nil {
			return err
		}
		return dag.Publish(io, portZ2, 2.0)
	}), dag.Outputs("z1", "z2"))
	b := dag.MustTask("b", scale(rec, 10), dag.Inputs("x"), dag.Outputs("z"))
	c := dag.MustTask("c", scale(rec, 100), dag.Inputs("x"), dag.Outputs("z"))
	d := dag.MustTask("d", dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		rec.add("d")
		x1, err := dag.Load(io, portX1)
		if err != nil {
			return err
		}
		x2, err := dag.Load(io, portX2)
		if err != nil {
			return err
		}
		got.mu.Lock()
		got.x1, got.x2 = x1, x2
		got.mu.Unlock()
		return nil
	}), dag.Inputs("x1", "x2"))

	p, err := dag.Combine("diamond", []*dag.Pipeline{a, b, c, d}, dag.WithDependencies(
		dag.Wire(a.Out("z1"), b.In("x")),
		dag.Wire(a.Out("z2"), c.In("x")),
		dag.Wire(b.Out("z"), d.In("x1")),
		dag.Wire(c.Out("z"), d.In("x2")),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

// chainPipeline builds a -> b and an independent c -> d.
func chainPipeline(t *testing.T, rec *recorder, aErr error) *dag.Pipeline {
	t.Helper()
	a := dag.MustTask("a", record(rec, aErr), dag.Outputs("z"))
	b := dag.MustTask("b", record(rec, nil), dag.Inputs("x"))
	c := dag.MustTask("c", record(rec, nil), dag.Outputs("z"))
	d := dag.MustTask("d", record(rec, nil), dag.Inputs("x"))
	p, err := dag.Combine("chain", []*dag.Pipeline{a, c, b, d}, dag.WithDependencies(
		dag.Wire(a.Out("z"), b.In("x")),
		dag.Wire(c.Out("z"), d.In("x")),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func node(key string) dag.Node { return dag.NewNode(key) }

// --- diamond ---

func TestSession_Diamond(t *testing.T) {
	for _, parallel := range []int{1, 4} {
		rec := &recorder{}
		got := &joined{}
		s, err := New(diamondPipeline(t, rec, got), WithMaxParallel(parallel))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := s.Run(context.Background()); err != nil {
			t.Fatalf("parallel=%d: unexpected error: %v", parallel, err)
		}

		calls := rec.calls()
		if len(calls) != 4 {
			t.Fatalf("parallel=%d: expected every node to run once, got %v", parallel, calls)
		}
		if rec.index("a") > rec.index("b") || rec.index("a") > rec.index("c") {
			t.Fatalf("parallel=%d: a must run before b and c, got %v", parallel, calls)
		}
		if rec.index("d") != 3 {
			t.Fatalf("parallel=%d: d must run last, got %v", parallel, calls)
		}
		if got.x1 != 10.0 || got.x2 != 200.0 {
			t.Fatalf("parallel=%d: expected d to see 10 and 200, got %v and %v", parallel, got.x1, got.x2)
		}
		report := s.Report()
		if report.Ticks != 3 {
			t.Fatalf("parallel=%d: expected 3 ticks, got %d", parallel, report.Ticks)
		}
		for _, n := range report.Nodes {
			if n.State != NodeCompleted {
				t.Fatalf("parallel=%d: expected %s COMPLETED, got %s", parallel, n.Node, n.State)
			}
		}
	}
}

func TestSession_StateScenario(t *testing.T) {
	var s *Session
	var during SessionState
	p := dag.MustTask("a", dag.ExecutableFunc(func(context.Context, dag.PortIO) error {
		during = s.State()
		return nil
	}))
	s, err := New(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != SessionPending {
		t.Fatalf("expected PENDING before run, got %s", s.State())
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if during != SessionRunning {
		t.Fatalf("expected RUNNING during run, got %s", during)
	}
	if s.State() != SessionStopped {
		t.Fatalf("expected STOPPED after every node completed, got %s", s.State())
	}
	if s.NodeState(node("a")) != NodeCompleted {
		t.Fatalf("expected a COMPLETED, got %s", s.NodeState(node("a")))
	}
}

func TestSession_RunTwice(t *testing.T) {
	s, err := New(dag.MustTask("a", record(&recorder{}, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Run(context.Background()); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT on second run, got %v", err)
	}
}

func TestSession_StopBeforeRun(t *testing.T) {
	rec := &recorder{}
	s, _ := New(dag.MustTask("a", record(rec, nil)))
	s.Stop()
	s.Stop()
	if s.State() != SessionStopped {
		t.Fatalf("expected STOPPED, got %s", s.State())
	}
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected a stopped session not to run")
	}
	if len(rec.calls()) != 0 {
		t.Fatalf("expected no node to run, got %v", rec.calls())
	}
}

func TestSession_Canceled(t *testing.T) {
	rec := &recorder{}
	s, _ := New(dag.MustTask("a", record(rec, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); !errors.HasCode(err, errors.ErrCodeCanceled) {
		t.Fatalf("expected CANCELED, got %v", err)
	}
	if s.State() != SessionStopped || len(rec.calls()) != 0 {
		t.Fatalf("expected a stopped session with no executions")
	}
}

// --- deadlock ---

func graphSession(t *testing.T, keys []string, deps map[string][]string) *Session {
	t.Helper()
	registry := dag.NewNodeRegistry()
	exes := make(map[dag.Node]dag.Executable)
	for _, k := range keys {
		_ = registry.Register(node(k))
		exes[node(k)] = record(&recorder{}, nil)
	}
	graph := dag.NewDependencyGraph(registry)
	for _, k := range keys {
		var d []dag.Node
		for _, dk := range deps[k] {
			d = append(d, node(dk))
		}
		if err := graph.Register(node(k), d); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	s, err := FromGraph("graph", registry, graph, exes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestSession_Deadlock(t *testing.T) {
	tests := []struct {
		name    string
		deps    map[string][]string
		pending []string
	}{
		{
			name:    "cycle",
			deps:    map[string][]string{"a": {"c"}, "b": {"a"}, "c": {"b"}},
			pending: []string{"a", "b", "c"},
		},
		{
			name:    "unregistered dependency",
			deps:    map[string][]string{"b": {"a"}, "c": {"ghost"}},
			pending: []string{"c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := graphSession(t, []string{"a", "b", "c"}, tt.deps)
			err := s.Run(context.Background())
			if !stderrors.Is(err, errors.ErrDeadlock) {
				t.Fatalf("expected DEADLOCK, got %v", err)
			}
			appErr, _ := errors.AsAppError(err)
			if got := appErr.Details["pending"].([]string); !slices.Equal(got, tt.pending) {
				t.Fatalf("expected pending %v, got %v", tt.pending, got)
			}
			if s.State() != SessionStopped {
				t.Fatalf("expected STOPPED after deadlock, got %s", s.State())
			}
		})
	}
}

func TestSession_EmptyGraph(t *testing.T) {
	s := graphSession(t, nil, nil)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- failure policies ---

func TestSession_FailFast(t *testing.T) {
	rec := &recorder{}
	s, err := New(chainPipeline(t, rec, errBoom))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = s.Run(context.Background())
	if !errors.HasCode(err, errors.ErrCodeNodeFailed) || !stderrors.Is(err, errBoom) {
		t.Fatalf("expected NODE_FAILED wrapping boom, got %v", err)
	}
	want := map[string]NodeState{"a": NodeFailed, "c": NodeCompleted, "b": NodePending, "d": NodePending}
	for k, st := range want {
		if got := s.NodeState(node(k)); got != st {
			t.Errorf("node %s: expected %s, got %s", k, st, got)
		}
	}
	if s.State() != SessionStopped {
		t.Fatalf("expected STOPPED, got %s", s.State())
	}
}

func TestSession_ContinueOnFailure(t *testing.T) {
	rec := &recorder{}
	s, err := New(chainPipeline(t, rec, errBoom), WithFailurePolicy(ContinueOnFailure))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = s.Run(context.Background())
	if !errors.HasCode(err, errors.ErrCodeNodeFailed) || !stderrors.Is(err, errBoom) {
		t.Fatalf("expected NODE_FAILED wrapping boom, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if got := appErr.Details["nodes"].([]string); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("expected failed nodes [a], got %v", got)
	}
	want := map[string]NodeState{"a": NodeFailed, "c": NodeCompleted, "b": NodePending, "d": NodeCompleted}
	for k, st := range want {
		if got := s.NodeState(node(k)); got != st {
			t.Errorf("node %s: expected %s, got %s", k, st, got)
		}
	}
	failed := s.Report().Failed()
	if len(failed) != 1 || failed[0].Error != "boom" {
		t.Fatalf("expected one failed report with error boom, got %+v", failed)
	}
}

func TestSession_ContinueOnFailureSettles(t *testing.T) {
	independent := func(t *testing.T, rec *recorder) *dag.Pipeline {
		p, err := dag.Combine("two", []*dag.Pipeline{
			dag.MustTask("a", record(rec, errBoom)),
			dag.MustTask("b", record(rec, nil)),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return p
	}
	lastFails := func(t *testing.T, rec *recorder) *dag.Pipeline {
		a := dag.MustTask("a", record(rec, nil), dag.Outputs("z"))
		b := dag.MustTask("b", record(rec, errBoom), dag.Inputs("x"))
		p, err := dag.Combine("tail", []*dag.Pipeline{a, b},
			dag.WithDependencies(dag.Wire(a.Out("z"), b.In("x"))))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return p
	}

	tests := []struct {
		name       string
		build      func(*testing.T, *recorder) *dag.Pipeline
		parallel   int
		wantFailed string
		wantDone   string
	}{
		{"failed leaf", independent, 1, "a", "b"},
		{"failure in last frame", lastFails, 1, "b", "a"},
		{"failed leaf in parallel frame", independent, 4, "a", "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			rec := &recorder{}
			s, err := New(tt.build(t, rec), WithFailurePolicy(ContinueOnFailure), WithMaxParallel(tt.parallel))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			err = s.Run(ctx)
			if !errors.HasCode(err, errors.ErrCodeNodeFailed) || !stderrors.Is(err, errBoom) {
				t.Fatalf("expected NODE_FAILED wrapping boom, got %v", err)
			}
			if got := s.NodeState(node(tt.wantFailed)); got != NodeFailed {
				t.Errorf("node %s: expected FAILED, got %s", tt.wantFailed, got)
			}
			if got := s.NodeState(node(tt.wantDone)); got != NodeCompleted {
				t.Errorf("node %s: expected COMPLETED, got %s", tt.wantDone, got)
			}
			if s.State() != SessionStopped {
				t.Errorf("expected STOPPED, got %s", s.State())
			}
			if ticks := s.Report().Ticks; ticks > 4 {
				t.Errorf("expected the run to stop within 4 ticks, got %d", ticks)
			}
		})
	}
}

func TestSession_PanicRecovered(t *testing.T) {
	p := dag.MustTask("a", dag.ExecutableFunc(func(context.Context, dag.PortIO) error {
		panic("kaboom")
	}))
	s, _ := New(p)
	err := s.Run(context.Background())
	if !errors.HasCode(err, errors.ErrCodeNodeFailed) {
		t.Fatalf("expected NODE_FAILED, got %v", err)
	}
	if !strings.Contains(s.Report().Nodes[0].Error, "kaboom") {
		t.Fatalf("expected panic value in report, got %+v", s.Report().Nodes[0])
	}
}

func TestSession_InvalidPolicy(t *testing.T) {
	_, err := New(dag.MustTask("a", record(&recorder{}, nil)), WithFailurePolicy("sometimes"))
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

// --- inputs and outputs ---

func TestSession_Inputs(t *testing.T) {
	rec := &recorder{}
	p := dag.MustTask("scale", scale(rec, 3), dag.Inputs("x"), dag.Outputs("z"))

	if _, err := New(p); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND for missing input, got %v", err)
	}
	if _, err := New(p, WithInputs(map[string]any{"x": 1.0, "y": 2.0})); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown input, got %v", err)
	}

	s, err := New(p, WithInputs(map[string]any{"x": 2.0}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	z, err := s.Output("z")
	if err != nil || z != 6.0 {
		t.Fatalf("expected z=6, got %v (err=%v)", z, err)
	}
	if got := s.Outputs(); got["z"] != 6.0 {
		t.Fatalf("expected outputs to hold z, got %v", got)
	}
	if _, err := s.Output("nope"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestSession_OptionalInput(t *testing.T) {
	var loadErr error
	p := dag.MustTask("a", dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		_, loadErr = io.Load("hint")
		return nil
	}), dag.OptionalInputs("hint"))
	s, err := New(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stderrors.Is(loadErr, ErrDataNotFound) {
		t.Fatalf("expected missing optional input to load as not found, got %v", loadErr)
	}
}

func TestSession_OutputUnionAndCollection(t *testing.T) {
	emit := func(port string, v float64) dag.Executable {
		return dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
			return io.Publish(port, v)
		})
	}
	acc1 := dag.MustTask("acc1", emit("acc", 1), dag.Outputs("acc"))
	acc2 := dag.MustTask("acc2", emit("acc", 2), dag.Outputs("acc"))
	w := dag.MustTask("w", dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		if err := io.Publish("w.train", 0.5); err != nil {
			return err
		}
		return io.Publish("w.eval", 0.25)
	}), dag.Outputs("w.train", "w.eval"))

	p, err := dag.Combine("acc", []*dag.Pipeline{acc1, acc2, w}, dag.WithOutputs(
		dag.Expose("acc", acc2.Out("acc"), acc1.Out("acc")),
		dag.Expose("weights", w.Out("w")),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, _ := New(p)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acc, err := s.Output("acc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := acc.([]any); !ok || len(got) != 2 || got[0] != 2.0 || got[1] != 1.0 {
		t.Fatalf("expected union [2 1], got %v", acc)
	}
	weights, err := s.Output("weights")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := weights.(map[string]any); got["train"] != 0.5 || got["eval"] != 0.25 {
		t.Fatalf("unexpected collection output %v", got)
	}
}

func TestNodeIO(t *testing.T) {
	var publishErr, loadErr error
	p := dag.MustTask("a", dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		publishErr = io.Publish("undeclared", 1)
		_, loadErr = io.Load("unwired")
		return dag.Publish(io, portZ, 1.0)
	}), dag.Outputs("z"))
	s, _ := New(p)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.HasCode(publishErr, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for undeclared output, got %v", publishErr)
	}
	if !errors.HasCode(loadErr, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unwired input, got %v", loadErr)
	}
	if got := s.Store().Keys(); !slices.Equal(got, []string{"a.z"}) {
		t.Fatalf("expected only a.z published, got %v", got)
	}
}

func TestNodeIO_PublishTwice(t *testing.T) {
	p := dag.MustTask("a", dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		if err := io.Publish("z", 1.0); err != nil {
			return err
		}
		return io.Publish("z", 2.0)
	}), dag.Outputs("z"))
	s, _ := New(p)
	err := s.Run(context.Background())
	if !stderrors.Is(err, ErrDuplicateData) {
		t.Fatalf("expected duplicate data error, got %v", err)
	}
}

// --- parallel frames ---

func TestSession_ParallelFrameRunsEachNodeOnce(t *testing.T) {
	var counts sync.Map
	var running, peak atomic.Int32
	exe := dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		v, _ := counts.LoadOrStore(io.Node().Key(), new(atomic.Int32))
		v.(*atomic.Int32).Add(1)
		return nil
	})

	var members []*dag.Pipeline
	for i := range 16 {
		members = append(members, dag.MustTask(string(rune('a'+i)), exe))
	}
	p, err := dag.Combine("wide", members)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, _ := New(p, WithMaxParallel(4))
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := 0
	counts.Range(func(k, v any) bool {
		seen++
		if c := v.(*atomic.Int32).Load(); c != 1 {
			t.Errorf("node %v ran %d times", k, c)
		}
		return true
	})
	if seen != 16 {
		t.Fatalf("expected 16 nodes to run, got %d", seen)
	}
	if peak.Load() > 4 {
		t.Fatalf("expected at most 4 concurrent nodes, got %d", peak.Load())
	}
}

func TestSession_WithID(t *testing.T) {
	id := uuid.New()
	s, _ := New(dag.MustTask("a", record(&recorder{}, nil)), WithID(id))
	if s.ID() != id || s.Report().ID != id.String() {
		t.Fatalf("expected session id %s, got %s", id, s.ID())
	}
}
