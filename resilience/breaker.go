package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/pipekit/errors"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed lets calls through.
	StateClosed State = iota
	// StateOpen rejects calls until the timeout elapses.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name identifies the guarded backend in errors and callbacks.
	Name string `yaml:"-" mapstructure:"-" json:"-"`
	// MaxFailures is the number of consecutive failures that opens the
	// circuit. Zero disables the breaker.
	MaxFailures int `yaml:"max_failures" mapstructure:"max_failures" json:"max_failures"`
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout"`
	// HalfOpenMaxCalls is the number of probe calls allowed when half-open.
	HalfOpenMaxCalls int `yaml:"half_open_max_calls" mapstructure:"half_open_max_calls" json:"half_open_max_calls"`

	// OnStateChange is called on every transition, under the breaker lock.
	OnStateChange func(name string, from, to State) `yaml:"-" mapstructure:"-" json:"-"`
}

// ApplyDefaults fills unset timing fields.
func (c *BreakerConfig) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
}

// Validate checks the configuration.
func (c *BreakerConfig) Validate() error {
	if c.MaxFailures < 0 {
		return fmt.Errorf("breaker.max_failures must be non-negative (got: %d)", c.MaxFailures)
	}
	return nil
}

// Enabled reports whether the breaker trips at all.
func (c *BreakerConfig) Enabled() bool {
	return c.MaxFailures > 0
}

// Breaker fails fast with SERVICE_UNAVAILABLE once a backend has failed
// MaxFailures times in a row. Only transient errors count as failures; a
// NOT_FOUND says nothing about backend health.
type Breaker struct {
	config BreakerConfig
	now    func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	openedAt      time.Time
	halfOpenCalls int
}

// NewBreaker creates a closed breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	config.ApplyDefaults()
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	return &Breaker{config: config, now: time.Now}
}

// Execute runs fn unless the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return errors.ServiceUnavailable(b.config.Name).WithDetail("circuit", StateOpen.String())
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.to(StateClosed)
	b.failures = 0
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.halfOpenCalls < b.config.HalfOpenMaxCalls {
			b.halfOpenCalls++
			return true
		}
	}
	return false
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !Transient(err) {
		b.onSuccess()
		return
	}
	b.failures++
	switch b.current() {
	case StateClosed:
		if b.failures >= b.config.MaxFailures {
			b.open()
		}
	case StateHalfOpen:
		b.open()
	}
}

func (b *Breaker) onSuccess() {
	switch b.current() {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.HalfOpenMaxCalls {
			b.to(StateClosed)
			b.failures = 0
		}
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.to(StateOpen)
}

// current moves an expired open circuit to half-open.
func (b *Breaker) current() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.Timeout {
		b.to(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) to(state State) {
	if b.state == state {
		return
	}
	from := b.state
	b.state = state
	b.successes = 0
	b.halfOpenCalls = 0
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.config.Name, from, state)
	}
}
