// Package observability sets up OpenTelemetry tracing and metrics for
// pipekit and defines the instruments recorded while sessions run.
//
// Both providers export over OTLP/HTTP. When observability is disabled the
// global no-op providers stay in place and every instrument becomes free.
//
//	tp, err := observability.InitTracer(ctx, cfg.Tracer(serviceName))
//	defer tp.Shutdown(ctx)
//	metrics, err := observability.NewNodeMetrics(observability.Meter(observability.InstrumentationName))
package observability
