package session

import (
	stderrors "errors"
	"slices"
	"sync"
	"testing"

	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/errors"
)

func TestMemoryStore_WriteOnce(t *testing.T) {
	s := NewMemoryStore()
	a := dag.NewNode("a")

	if err := s.Publish(a, "z", 1.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Publish(a, "z", 2.0); !stderrors.Is(err, ErrDuplicateData) {
		t.Fatalf("expected ErrDuplicateData, got %v", err)
	}
	v, err := s.Load(a, "z")
	if err != nil || v != 1.0 {
		t.Fatalf("expected first value to be kept, got %v (err=%v)", v, err)
	}
	if _, err := s.Load(a, "missing"); !stderrors.Is(err, ErrDataNotFound) {
		t.Fatalf("expected ErrDataNotFound, got %v", err)
	}
}

func TestMemoryStore_Keys(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Publish(dag.NewNode("b"), "z", 1)
	_ = s.Publish(dag.NewNode("a"), "w.train", 2)
	if got := s.Keys(); !slices.Equal(got, []string{"b.z", "a.w.train"}) {
		t.Fatalf("expected publish order, got %v", got)
	}
}

func TestMemoryStore_ConcurrentPublish(t *testing.T) {
	s := NewMemoryStore()
	n := dag.NewNode("a")
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Publish(n, "z", i) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 {
		t.Fatalf("expected exactly one publish to succeed, got %d", succeeded)
	}
}

func TestTypedItems(t *testing.T) {
	s := NewMemoryStore()
	n := dag.NewNode("a")
	score := dag.NewStorageKey(n, dag.NewPort[float64]("score"))
	label := dag.NewStorageKey(n, dag.NewPort[string]("score"))

	if err := PublishItem(s, score, 0.75); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := LoadItem(s, score)
	if err != nil || got != 0.75 {
		t.Fatalf("expected 0.75, got %v (err=%v)", got, err)
	}
	if _, err := LoadItem(s, label); !errors.HasCode(err, errors.ErrCodeTypeMismatch) {
		t.Fatalf("expected TYPE_MISMATCH, got %v", err)
	}
}

func TestNodeStates(t *testing.T) {
	registry := dag.NewNodeRegistry()
	a, b, c := dag.NewNode("a"), dag.NewNode("b"), dag.NewNode("c")
	for _, n := range []dag.Node{a, b, c} {
		_ = registry.Register(n)
	}
	states := NewNodeStates(registry)

	if got := states.Get(b); got != NodePending {
		t.Fatalf("expected PENDING by default, got %s", got)
	}
	states.Set(c, NodeQueued)
	states.Set(a, NodeQueued)
	if got := keysOf(states.ByState(NodeQueued)); !slices.Equal(got, []string{"a", "c"}) {
		t.Fatalf("expected registration order [a c], got %v", got)
	}
	if got := keysOf(states.Registered()); !slices.Equal(got, []string{"b"}) {
		t.Fatalf("expected [b] without state, got %v", got)
	}
	states.Set(a, NodeFailed)
	states.Set(a, NodeCompleted)
	if got := states.Get(a); got != NodeCompleted {
		t.Fatalf("expected last write to win, got %s", got)
	}
	if states.Claim(b, NodeQueued, NodeRunning) {
		t.Fatal("expected claim of a PENDING node as QUEUED to fail")
	}
}

func TestNodeStates_ClaimOnce(t *testing.T) {
	registry := dag.NewNodeRegistry()
	n := dag.NewNode("a")
	_ = registry.Register(n)
	states := NewNodeStates(registry)
	states.Set(n, NodeQueued)

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if states.Claim(n, NodeQueued, NodeRunning) {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if claims != 1 {
		t.Fatalf("expected exactly one claim, got %d", claims)
	}
}

func TestSessionStates(t *testing.T) {
	s := NewSessionStates()
	if s.Get() != SessionPending {
		t.Fatalf("expected PENDING, got %s", s.Get())
	}
	if !s.Transition(SessionPending, SessionRunning) {
		t.Fatal("expected PENDING -> RUNNING")
	}
	if s.Transition(SessionPending, SessionRunning) {
		t.Fatal("expected second transition to fail")
	}
	s.Set(SessionStopped)
	if s.Get() != SessionStopped {
		t.Fatalf("expected STOPPED, got %s", s.Get())
	}
}
