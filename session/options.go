package session

import (
	"github.com/google/uuid"

	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/observability"
)

// Option configures a Session.
type Option func(*options)

type options struct {
	id          uuid.UUID
	inputs      map[string]any
	policy      FailurePolicy
	maxParallel int
	log         *logger.Logger
	metrics     *observability.NodeMetrics
	tracing     bool
	store       Store
}

func defaultOptions() options {
	return options{
		policy:      FailFast,
		maxParallel: 1,
	}
}

// WithID sets the session id instead of a random one.
func WithID(id uuid.UUID) Option {
	return func(o *options) { o.id = id }
}

// WithInputs provides values for the pipeline's external inputs, keyed by
// input name. Later calls add to earlier ones.
func WithInputs(inputs map[string]any) Option {
	return func(o *options) {
		if o.inputs == nil {
			o.inputs = make(map[string]any, len(inputs))
		}
		for k, v := range inputs {
			o.inputs[k] = v
		}
	}
}

// WithFailurePolicy sets how node errors are handled. The default is FailFast.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(o *options) {
		if p != "" {
			o.policy = p
		}
	}
}

// WithMaxParallel runs up to n QUEUED nodes of a frame concurrently. The
// default of 1 executes nodes one at a time in registration order.
func WithMaxParallel(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithLogger sets the session logger and logs every node execution.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records node, tick and session metrics.
func WithMetrics(m *observability.NodeMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracing opens a span for the run, each tick and each node.
func WithTracing() Option {
	return func(o *options) { o.tracing = true }
}

// WithStore replaces the in-memory data store.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}
