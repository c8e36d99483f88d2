package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Instrumentation wraps upstream calls with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: StartCall returns a context carrying the call span; pass it to
//     the upstream operation so child spans and log lines correlate.
//   - Errors: errors handed to EndCall are recorded, never altered.
type Instrumentation struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewInstrumentation creates an Instrumentation from its parts.
// Nil parts are replaced with no-ops.
func NewInstrumentation(tracer Tracer, metrics Metrics, logger Logger) *Instrumentation {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Instrumentation{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NewNoopInstrumentation returns an Instrumentation that records nothing.
func NewNoopInstrumentation() *Instrumentation {
	return NewInstrumentation(nil, nil, nil)
}

// InstrumentationFromObserver creates an Instrumentation from an Observer.
func InstrumentationFromObserver(obs Observer) (*Instrumentation, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewInstrumentation(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Logger returns the instrumentation's logger.
func (i *Instrumentation) Logger() Logger {
	return i.logger
}

// StartCall opens the span for an upstream call.
func (i *Instrumentation) StartCall(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return i.tracer.StartSpan(ctx, meta)
}

// EndCall closes the span, records metrics and writes a debug line.
func (i *Instrumentation) EndCall(ctx context.Context, span trace.Span, meta CallMeta, duration time.Duration, err error) {
	i.tracer.EndSpan(span, err)
	i.metrics.RecordCall(ctx, meta, duration, err)

	fields := []Field{
		{Key: "namespace", Value: meta.Namespace},
		{Key: "duration_ms", Value: duration.Milliseconds()},
	}
	if meta.Endpoint != "" {
		fields = append(fields, Field{Key: "endpoint", Value: meta.Endpoint})
	}
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		i.logger.Debug(ctx, "upstream call failed", fields...)
		return
	}
	i.logger.Debug(ctx, "upstream call completed", fields...)
}

// CacheLookup records a cache hit or miss.
func (i *Instrumentation) CacheLookup(ctx context.Context, namespace string, hit bool) {
	i.metrics.RecordCacheLookup(ctx, namespace, hit)
}
