// Package gatewaytrace wires OpenTelemetry spans around the turn-execution
// path: one span per inbound turn (gateway.turn), with child spans for the
// agent RPC calls and thread-store persistence that happen inside it.
// Exported by the stdout exporter (writing to stderr) by default, or
// OTLP/HTTP when FLINT_OTEL_ENDPOINT is set.
package gatewaytrace

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/escalona/flint/internal/gatewaytrace"

// Init configures the global TracerProvider and returns a shutdown func the
// caller must invoke once during process exit. When FLINT_OTEL_ENDPOINT is
// unset, spans are written to stderr by the stdout exporter (useful for
// local runs and tests);
// otherwise they are exported via OTLP/HTTP to that endpoint.
func Init(ctx context.Context, serviceVersion string) (shutdown func(context.Context) error, err error) {
	exporter, err := newExporter(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("flint-gateway"),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if endpoint := os.Getenv("FLINT_OTEL_ENDPOINT"); endpoint != "" {
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	return stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartTurn opens the gateway.turn span for one inbound message, tagging it
// with the resolved thread id and provider. Callers must End() the returned span.
func StartTurn(ctx context.Context, threadID, provider string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "gateway.turn", trace.WithAttributes(
		attribute.String("thread_id", threadID),
		attribute.String("provider", provider),
	))
}

// StartRPC opens a child span around one Agent Protocol call (thread/start,
// thread/resume, turn/start, turn/interrupt).
func StartRPC(ctx context.Context, method string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "agent.rpc", trace.WithAttributes(
		attribute.String("rpc.method", method),
	))
}

// StartPersist opens a child span around thread-store persistence.
func StartPersist(ctx context.Context, threadID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "thread.persist", trace.WithAttributes(
		attribute.String("thread_id", threadID),
	))
}

// RecordError records err on span and tags the span with an error=true
// attribute. A nil err is a no-op; the span's status is left unchanged.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.Bool("error", true))
}

// ElapsedMs is a small helper for callers that want to attach turn duration
// as a span attribute rather than rely on the exporter's own timestamps.
func ElapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
