package dag

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/observability"
)

// WithTracing wraps exe so each execution runs in a span named
// "{prefix}.{node}".
func WithTracing(exe Executable, prefix string) Executable {
	return &tracingExecutable{inner: exe, prefix: prefix}
}

type tracingExecutable struct {
	inner  Executable
	prefix string
}

func (e *tracingExecutable) Execute(ctx context.Context, io PortIO) error {
	node := io.Node().Key()
	ctx, span := observability.StartSpan(ctx, e.prefix+"."+node,
		trace.WithAttributes(attribute.String(observability.AttrNode, node)))
	defer span.End()

	err := e.inner.Execute(ctx, io)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return err
}

// WithMetrics wraps exe so each execution is counted and timed under the
// given pipeline name.
func WithMetrics(exe Executable, metrics *observability.NodeMetrics, pipeline string) Executable {
	return &metricsExecutable{inner: exe, metrics: metrics, pipeline: pipeline}
}

type metricsExecutable struct {
	inner    Executable
	metrics  *observability.NodeMetrics
	pipeline string
}

func (e *metricsExecutable) Execute(ctx context.Context, io PortIO) error {
	start := time.Now()
	err := e.inner.Execute(ctx, io)
	e.metrics.RecordNode(ctx, e.pipeline, io.Node().Key(), time.Since(start), err)
	return err
}

// WithLogging wraps exe with execution logging: node, duration and outcome.
func WithLogging(exe Executable, log *logger.Logger) Executable {
	return &loggingExecutable{inner: exe, log: log}
}

type loggingExecutable struct {
	inner Executable
	log   *logger.Logger
}

func (e *loggingExecutable) Execute(ctx context.Context, io PortIO) error {
	start := time.Now()
	err := e.inner.Execute(ctx, io)

	fields := map[string]interface{}{
		logger.FieldNode:     io.Node().Key(),
		logger.FieldDuration: time.Since(start).Milliseconds(),
	}
	log := e.log.WithContext(ctx)
	if err != nil {
		fields[logger.FieldError] = err.Error()
		log.Error("node failed", fields)
	} else {
		log.Debug("node completed", fields)
	}
	return err
}
