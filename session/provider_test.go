package session

import (
	"context"
	"slices"
	"testing"

	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/errors"
)

func TestProviders(t *testing.T) {
	r := NewProviders()
	p := dag.MustTask("a", record(&recorder{}, nil))

	if err := r.Pipeline("single", p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("other", PipelineProvider(p)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register("single", PipelineProvider(p)); !errors.HasCode(err, errors.ErrCodeDuplicateRegistration) {
		t.Fatalf("expected DUPLICATE_REGISTRATION, got %v", err)
	}
	if got := r.Names(); !slices.Equal(got, []string{"other", "single"}) {
		t.Fatalf("expected sorted names, got %v", got)
	}
	if _, ok := r.Lookup("single"); !ok {
		t.Fatal("expected pipeline lookup to succeed")
	}

	first, err := r.CreateSession("single")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := r.CreateSession("single")
	if first == second || first.ID() == second.ID() {
		t.Fatal("expected a fresh session per call")
	}
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.State() != SessionPending {
		t.Fatalf("expected sessions to be independent, got %s", second.State())
	}
}

func TestProviders_NotFound(t *testing.T) {
	r := NewProviders()
	_ = r.Pipeline("b", dag.MustTask("b", record(&recorder{}, nil)))
	_ = r.Pipeline("a", dag.MustTask("a", record(&recorder{}, nil)))

	_, err := r.CreateSession("missing")
	if !errors.HasCode(err, errors.ErrCodeProviderNotFound) {
		t.Fatalf("expected PROVIDER_NOT_FOUND, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr.Details["name"] != "missing" {
		t.Fatalf("expected requested name in details, got %v", appErr.Details)
	}
	if got := appErr.Details["known"].([]string); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("expected known names [a b], got %v", got)
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.FailurePolicy != FailFast || cfg.MaxParallel != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.FailurePolicy = "sometimes"
	if err := cfg.Validate(); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}

	cfg = Config{FailurePolicy: ContinueOnFailure, MaxParallel: 3, TraceNodes: true}
	if n := len(cfg.Options()); n != 3 {
		t.Fatalf("expected 3 options, got %d", n)
	}
	s, err := New(dag.MustTask("a", record(&recorder{}, nil)), cfg.Options()...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.opts.policy != ContinueOnFailure || s.opts.maxParallel != 3 || !s.opts.tracing {
		t.Fatalf("options not applied: %+v", s.opts)
	}
}
