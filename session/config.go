package session

import (
	"github.com/kbukum/pipekit/validation"
)

// FailurePolicy decides what a node error does to the rest of the session.
type FailurePolicy string

const (
	// FailFast stops the session at the end of the frame a node failed in.
	FailFast FailurePolicy = "fail_fast"
	// ContinueOnFailure keeps running every node that does not depend on a
	// failed one and reports all failures once nothing else can run.
	ContinueOnFailure FailurePolicy = "continue"
)

// Config holds session defaults loaded from the service configuration.
type Config struct {
	FailurePolicy FailurePolicy `mapstructure:"failure_policy" yaml:"failure_policy" validate:"oneof=fail_fast continue"`
	// MaxParallel bounds concurrent node executions within one frame.
	MaxParallel int  `mapstructure:"max_parallel" yaml:"max_parallel" validate:"gte=1"`
	TraceNodes  bool `mapstructure:"trace_nodes" yaml:"trace_nodes"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.FailurePolicy == "" {
		c.FailurePolicy = FailFast
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 1
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// Options converts the configuration into session options.
func (c Config) Options() []Option {
	opts := []Option{
		WithFailurePolicy(c.FailurePolicy),
		WithMaxParallel(c.MaxParallel),
	}
	if c.TraceNodes {
		opts = append(opts, WithTracing())
	}
	return opts
}
