package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kbukum/pipekit/errors"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the first.
	// One disables retries.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts" json:"max_attempts"`
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff" json:"initial_backoff"`
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration `yaml:"max_backoff" mapstructure:"max_backoff" json:"max_backoff"`
	// BackoffFactor is the multiplier for exponential backoff.
	BackoffFactor float64 `yaml:"backoff_factor" mapstructure:"backoff_factor" json:"backoff_factor"`
	// Jitter adds randomness to backoff (0.0 to 1.0).
	Jitter float64 `yaml:"jitter" mapstructure:"jitter" json:"jitter"`

	// RetryIf decides whether an error is retried. Defaults to Transient.
	RetryIf func(error) bool `yaml:"-" mapstructure:"-" json:"-"`
	// OnRetry is called before each retry.
	OnRetry func(attempt int, err error, backoff time.Duration) `yaml:"-" mapstructure:"-" json:"-"`
}

// DefaultRetryConfig returns three attempts with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	cfg := RetryConfig{MaxAttempts: 3, Jitter: 0.1}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset backoff fields. MaxAttempts stays as configured;
// zero means a single attempt.
func (c *RetryConfig) ApplyDefaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.RetryIf == nil {
		c.RetryIf = Transient
	}
}

// Validate checks the configuration.
func (c *RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be non-negative (got: %d)", c.MaxAttempts)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be within [0, 1] (got: %v)", c.Jitter)
	}
	return nil
}

// Enabled reports whether more than one attempt is configured.
func (c *RetryConfig) Enabled() bool {
	return c.MaxAttempts > 1
}

// Transient reports whether err is worth retrying: never for context errors,
// the Retryable flag for AppErrors, true otherwise.
func Transient(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Retryable
	}
	return true
}

// Retry calls fn until it succeeds, returns a non-transient error, ctx ends
// or the attempts run out. The last error is returned.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	cfg.ApplyDefaults()
	attempts := max(cfg.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !cfg.RetryIf(err) || attempt == attempts {
			break
		}

		backoff := Backoff(attempt, cfg)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, backoff)
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// RetryFunc is Retry for functions without a result.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Backoff returns the delay after the given attempt:
// initial * factor^(attempt-1), jittered and capped at MaxBackoff.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if cfg.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * cfg.Jitter
	}
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	if d < 0 {
		d = float64(cfg.InitialBackoff)
	}
	return time.Duration(d)
}
