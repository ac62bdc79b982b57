package dag

import (
	"context"
	"slices"
	"testing"

	"github.com/kbukum/pipekit/errors"
)

// --- test helpers ---

func noop() Executable {
	return ExecutableFunc(func(context.Context, PortIO) error { return nil })
}

func keys(nodes []Node) []string { return nodeKeys(nodes) }

func levelKeys(levels [][]Node) [][]string {
	out := make([][]string, len(levels))
	for i, l := range levels {
		out[i] = nodeKeys(l)
	}
	return out
}

func equalLevels(a, b [][]string) bool {
	return slices.EqualFunc(a, b, func(x, y []string) bool { return slices.Equal(x, y) })
}

// --- NodeRegistry ---

func TestNodeRegistry_LookupIdempotent(t *testing.T) {
	r := NewNodeRegistry()
	n := NewNode("a")
	if err := r.Register(n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := r.Get("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := r.Get("a")
	if first != second || first != n {
		t.Fatalf("expected the same node on every lookup, got %v and %v", first, second)
	}
	if !r.Contains(n) || r.Len() != 1 {
		t.Fatalf("expected registry to hold one node")
	}
}

func TestNodeRegistry_Errors(t *testing.T) {
	r := NewNodeRegistry()
	_ = r.Register(NewNode("a"))

	if err := r.Register(NewNode("a")); !errors.HasCode(err, errors.ErrCodeDuplicateRegistration) {
		t.Fatalf("expected DUPLICATE_REGISTRATION, got %v", err)
	}
	if _, err := r.Get("missing"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestNodeRegistry_PreservesOrder(t *testing.T) {
	r := NewNodeRegistry()
	for _, k := range []string{"c", "a", "b"} {
		_ = r.Register(NewNode(k))
	}
	if got := keys(r.Nodes()); !slices.Equal(got, []string{"c", "a", "b"}) {
		t.Fatalf("expected registration order, got %v", got)
	}
}

// --- DependencyGraph ---

func scenarioGraph(t *testing.T) (*DependencyGraph, map[string]Node) {
	t.Helper()
	r := NewNodeRegistry()
	nodes := make(map[string]Node)
	for _, k := range []string{"1", "2", "3", "4"} {
		nodes[k] = NewNode(k)
		_ = r.Register(nodes[k])
	}
	g := NewDependencyGraph(r)
	deps := map[string][]string{"1": {"2"}, "3": {"1", "2"}, "4": {"1"}}
	for _, k := range []string{"1", "2", "3", "4"} {
		var d []Node
		for _, dk := range deps[k] {
			d = append(d, nodes[dk])
		}
		if err := g.Register(nodes[k], d); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return g, nodes
}

func TestDependencyGraph_Runnable(t *testing.T) {
	g, nodes := scenarioGraph(t)

	tests := []struct {
		completed []string
		want      []string
	}{
		{completed: nil, want: []string{"2"}},
		{completed: []string{"1"}, want: []string{"2", "4"}},
		{completed: []string{"2"}, want: []string{"1"}},
		{completed: []string{"1", "2"}, want: []string{"3", "4"}},
		{completed: []string{"1", "2", "3", "4"}, want: nil},
	}
	for _, tt := range tests {
		set := NewNodeSet()
		for _, k := range tt.completed {
			set.Add(nodes[k])
		}
		got := keys(g.Runnable(set))
		if !slices.Equal(got, tt.want) {
			t.Errorf("Runnable(%v) = %v, want %v", tt.completed, got, tt.want)
		}
	}
}

func TestDependencyGraph_SubsetLaw(t *testing.T) {
	g, nodes := scenarioGraph(t)
	completed := NewNodeSet(nodes["2"], nodes["1"])
	for _, n := range g.Runnable(completed) {
		if !completed.ContainsAll(g.Dependencies(n)) {
			t.Fatalf("node %s runnable with unmet dependencies %v", n, g.Dependencies(n))
		}
	}
}

func TestDependencyGraph_RegisterOnce(t *testing.T) {
	g, nodes := scenarioGraph(t)
	err := g.Register(nodes["1"], nil)
	if !errors.HasCode(err, errors.ErrCodeDuplicateRegistration) {
		t.Fatalf("expected DUPLICATE_REGISTRATION, got %v", err)
	}
	if got := keys(g.Dependencies(nodes["1"])); !slices.Equal(got, []string{"2"}) {
		t.Fatalf("expected dependencies to stay [2], got %v", got)
	}
}

func TestDependencyGraph_DedupesDependencies(t *testing.T) {
	r := NewNodeRegistry()
	a, b := NewNode("a"), NewNode("b")
	_ = r.Register(a)
	_ = r.Register(b)
	g := NewDependencyGraph(r)
	_ = g.Register(b, []Node{a, a})
	if got := keys(g.Dependencies(b)); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("expected [a], got %v", got)
	}
}

func TestDependencyGraph_Levels(t *testing.T) {
	g, _ := scenarioGraph(t)
	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{{"2"}, {"1"}, {"3", "4"}}
	if got := levelKeys(levels); !equalLevels(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

// --- Levels ---

func TestLevels(t *testing.T) {
	a, b, c, d := NewNode("a"), NewNode("b"), NewNode("c"), NewNode("d")

	tests := []struct {
		name  string
		nodes []Node
		deps  map[Node][]Node
		want  [][]string
	}{
		{
			name:  "linear",
			nodes: []Node{a, b, c},
			deps:  map[Node][]Node{b: {a}, c: {b}},
			want:  [][]string{{"a"}, {"b"}, {"c"}},
		},
		{
			name:  "diamond",
			nodes: []Node{a, b, c, d},
			deps:  map[Node][]Node{b: {a}, c: {a}, d: {b, c}},
			want:  [][]string{{"a"}, {"b", "c"}, {"d"}},
		},
		{
			name:  "no edges",
			nodes: []Node{c, a, b},
			want:  [][]string{{"c", "a", "b"}},
		},
		{
			name:  "order within level follows input",
			nodes: []Node{a, d, c, b},
			deps:  map[Node][]Node{b: {a}, c: {a}},
			want:  [][]string{{"a", "d"}, {"c", "b"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := Levels(tt.nodes, tt.deps)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := levelKeys(levels); !equalLevels(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLevels_Cycle(t *testing.T) {
	a, b, c, d := NewNode("a"), NewNode("b"), NewNode("c"), NewNode("d")
	_, err := Levels([]Node{a, b, c, d}, map[Node][]Node{a: {c}, b: {a}, c: {b}, d: {a}})
	if !errors.HasCode(err, errors.ErrCodeCycleDetected) {
		t.Fatalf("expected CYCLE_DETECTED, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if got := appErr.Details["nodes"].([]string); !slices.Equal(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("expected stuck nodes [a b c d], got %v", got)
	}
}

func TestLevels_UnknownDependency(t *testing.T) {
	a := NewNode("a")
	_, err := Levels([]Node{a}, map[Node][]Node{a: {NewNode("ghost")}})
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, collection, entry string
	}{
		{"x", "", "x"},
		{"feats.a", "feats", "a"},
	}
	for _, tt := range tests {
		c, e := SplitName(tt.in)
		if c != tt.collection || e != tt.entry {
			t.Errorf("SplitName(%q) = %q, %q", tt.in, c, e)
		}
	}
}
