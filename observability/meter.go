package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/pipekit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. Shut the returned provider down on exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// NodeMetrics holds the instruments recorded by sessions and node wrappers.
type NodeMetrics struct {
	executions metric.Int64Counter
	duration   metric.Float64Histogram
	failures   metric.Int64Counter
	ticks      metric.Int64Counter
	sessions   metric.Int64Counter
}

// NewNodeMetrics creates the instruments on the given meter.
func NewNodeMetrics(meter metric.Meter) (*NodeMetrics, error) {
	executions, err := meter.Int64Counter("node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating node.executions counter: %w", err)
	}

	duration, err := meter.Float64Histogram("node.duration",
		metric.WithDescription("Duration of node executions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating node.duration histogram: %w", err)
	}

	failures, err := meter.Int64Counter("node.failures",
		metric.WithDescription("Number of failed node executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating node.failures counter: %w", err)
	}

	ticks, err := meter.Int64Counter("session.ticks",
		metric.WithDescription("Number of frames executed by sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating session.ticks counter: %w", err)
	}

	sessions, err := meter.Int64Counter("session.runs",
		metric.WithDescription("Number of finished session runs by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating session.runs counter: %w", err)
	}

	return &NodeMetrics{
		executions: executions,
		duration:   duration,
		failures:   failures,
		ticks:      ticks,
		sessions:   sessions,
	}, nil
}

// RecordNode records one node execution.
func (m *NodeMetrics) RecordNode(ctx context.Context, pipeline, node string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrNode, node),
		attribute.String(AttrStatus, status),
	)
	m.executions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrNode, node),
	))
	if err != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrPipeline, pipeline),
			attribute.String(AttrNode, node),
		))
	}
}

// RecordTick records one executed frame.
func (m *NodeMetrics) RecordTick(ctx context.Context, pipeline string) {
	m.ticks.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrPipeline, pipeline)))
}

// RecordSession records a finished session run.
func (m *NodeMetrics) RecordSession(ctx context.Context, pipeline, status string) {
	m.sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrStatus, status),
	))
}
