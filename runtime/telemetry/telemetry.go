// Package telemetry defines the logging, metrics, and tracing seams used
// throughout the gateway runtime, and wires them to goa.design/clue and
// OpenTelemetry. Components depend on the small interfaces below rather than
// on clue or otel directly, so tests can substitute no-op implementations.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured, context-carried logging used throughout the
// runtime. Implementations typically delegate to Clue but the interface is
// intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for runtime
// instrumentation, including the job_execution_time timer and job_retry
// counter the event router emits per task.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code can remain agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}
