package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/session"
	"github.com/kbukum/pipekit/storage"
)

func newProviders(t *testing.T, store storage.Storage, cfg PipelinesConfig) *session.Providers {
	t.Helper()
	catalog, err := newCatalog(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	providers := session.NewProviders()
	if err := registerPipelines(providers, catalog, cfg, logger.Nop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return providers
}

func runOutput(t *testing.T, providers *session.Providers, name string, inputs map[string]any) any {
	t.Helper()
	s, err := providers.CreateSession(name, session.WithInputs(inputs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	z, err := s.Output("z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return z
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != serviceName {
		t.Errorf("expected name %q, got %q", serviceName, cfg.Name)
	}
	if cfg.Session.FailurePolicy != session.FailFast || cfg.Session.MaxParallel != 1 {
		t.Errorf("unexpected session defaults %+v", cfg.Session)
	}
	if cfg.Storage.Provider != storage.ProviderLocal {
		t.Errorf("expected local storage, got %q", cfg.Storage.Provider)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if !slices.Equal(cfg.Pipelines.Dirs, []string{"./pipelines"}) {
		t.Errorf("unexpected dirs %v", cfg.Pipelines.Dirs)
	}
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"failure policy", func(c *Config) { c.Session.FailurePolicy = "sometimes" }, "config.session"},
		{"storage provider", func(c *Config) { c.Storage.Provider = "ftp" }, "config.storage"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "config.server"},
		{"sample rate", func(c *Config) { c.Observability.SampleRate = 2 }, "config.observability"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestDiamond(t *testing.T) {
	providers := newProviders(t, storage.NewMemory(), PipelinesConfig{})

	p, ok := providers.Lookup("diamond")
	if !ok {
		t.Fatal("diamond not registered")
	}
	if got := p.Inputs().Names(); !slices.Equal(got, []string{"x", "bias"}) {
		t.Errorf("unexpected inputs %v", got)
	}
	if got := p.Outputs().Names(); !slices.Equal(got, []string{"z"}) {
		t.Errorf("unexpected outputs %v", got)
	}

	tests := []struct {
		name   string
		inputs map[string]any
		want   float64
	}{
		{"without bias", map[string]any{"x": 3.0}, 15},
		{"with bias", map[string]any{"x": 3.0, "bias": 1}, 16},
		{"negative", map[string]any{"x": -2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runOutput(t, providers, "diamond", tt.inputs); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDiamond_TypeMismatch(t *testing.T) {
	providers := newProviders(t, storage.NewMemory(), PipelinesConfig{})
	s, err := providers.CreateSession("diamond", session.WithInputs(map[string]any{"x": "three"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if failed := s.Report().Failed(); len(failed) != 1 || failed[0].Node != "a" {
		t.Errorf("expected node a to fail, got %+v", failed)
	}
}

func TestDiamondReport_WritesStorage(t *testing.T) {
	store := storage.NewMemory()
	providers := newProviders(t, store, PipelinesConfig{})

	if got := runOutput(t, providers, "diamond_report", map[string]any{"x": 2.0}); got != 8.0 {
		t.Errorf("expected 8, got %v", got)
	}
	data, err := store.Read(context.Background(), "reports/report.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "8\n" {
		t.Errorf("unexpected report %q", data)
	}
}

const chainYAML = `
name: chain
tasks:
  - name: a
    component: double
  - name: b
    component: square
wiring:
  - from: a.z
    to: b.x
`

func TestRegisterPipelines_Definitions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "chain.yaml"), []byte(chainYAML), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	providers := newProviders(t, storage.NewMemory(), PipelinesConfig{Dirs: []string{dir}, Load: []string{"chain"}})

	if got := providers.Names(); !slices.Contains(got, "chain") {
		t.Fatalf("chain not registered: %v", got)
	}
	if got := runOutput(t, providers, "chain", map[string]any{"x": 3.0}); got != 36.0 {
		t.Errorf("expected 36, got %v", got)
	}
}

func TestRegisterPipelines_MissingDefinition(t *testing.T) {
	catalog, err := newCatalog(storage.NewMemory())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = registerPipelines(session.NewProviders(), catalog,
		PipelinesConfig{Dirs: []string{t.TempDir()}, Load: []string{"absent"}}, logger.Nop())
	if !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestInputFlag(t *testing.T) {
	f := inputFlag{}
	for _, s := range []string{"x=3", "name=abc", `list=[1,2]`} {
		if err := f.Set(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if f["x"] != 3.0 {
		t.Errorf("expected 3, got %v", f["x"])
	}
	if f["name"] != "abc" {
		t.Errorf("expected abc, got %v", f["name"])
	}
	if list, ok := f["list"].([]any); !ok || len(list) != 2 {
		t.Errorf("expected a two element list, got %v", f["list"])
	}
	if err := f.Set("novalue"); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestParseRun(t *testing.T) {
	req, err := parseRun([]string{"-input", "x=2", "-policy", "continue", "-parallel", "4", "diamond"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.pipeline != "diamond" || req.policy != "continue" || req.parallel != 4 || req.inputs["x"] != 2.0 {
		t.Errorf("unexpected request %+v", req)
	}

	for _, args := range [][]string{
		{"-input", "x=2"},
		{"a", "b"},
		{"-policy", "sometimes", "diamond"},
	} {
		if _, err := parseRun(args); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestExecute_Version(t *testing.T) {
	var out bytes.Buffer
	if err := execute(context.Background(), []string{"version"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), `"version"`) {
		t.Errorf("unexpected output %s", out.String())
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	data := "name: pipekit-test\nlogging:\n  level: error\nstorage:\n  provider: memory\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func TestExecute_Run(t *testing.T) {
	var out bytes.Buffer
	args := []string{"-config", writeConfig(t), "run", "-input", "x=3", "diamond"}
	if err := execute(context.Background(), args, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result struct {
		Pipeline string         `json:"pipeline"`
		State    string         `json:"state"`
		Outputs  map[string]any `json:"outputs"`
	}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Pipeline != "diamond" || result.State != string(session.SessionStopped) {
		t.Errorf("unexpected result %+v", result)
	}
	if result.Outputs["z"] != 15.0 {
		t.Errorf("expected z=15, got %v", result.Outputs["z"])
	}
}

func TestExecute_Errors(t *testing.T) {
	cfg := writeConfig(t)
	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{"unknown pipeline", []string{"-config", cfg, "run", "nope"}, errors.ErrCodeProviderNotFound},
		{"missing input", []string{"-config", cfg, "run", "diamond"}, errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := execute(context.Background(), tt.args, &out)
			if !errors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}

	var out bytes.Buffer
	if err := execute(context.Background(), []string{"-config", cfg, "bogus"}, &out); err == nil {
		t.Error("expected error for unknown command")
	}
}
