package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the dataflow tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("dataflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPullSpan starts a span for an output request chain.
	StartPullSpan(ctx context.Context, nodeID, port string) (context.Context, trace.Span)

	// StartEvalSpan starts a span for a single node evaluation.
	// The eval span should be a child of the pull span.
	StartEvalSpan(ctx context.Context, nodeID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartPullSpan starts a span for an output request chain.
func (m *otelSpanManager) StartPullSpan(ctx context.Context, nodeID, port string) (context.Context, trace.Span) {
	return StartPullSpan(ctx, nodeID, port)
}

// StartEvalSpan starts a span for a node evaluation.
func (m *otelSpanManager) StartEvalSpan(ctx context.Context, nodeID string) (context.Context, trace.Span) {
	return StartEvalSpan(ctx, nodeID)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// Convenience functions that operate on the global tracer.
// These are useful for simple cases where you don't need the interface.

// StartPullSpan starts a span for an output request chain.
// Uses the global OTel tracer.
func StartPullSpan(ctx context.Context, nodeID, port string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "dataflow.pull",
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.String("port.name", port),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartEvalSpan starts a span for a node evaluation.
// Uses the global OTel tracer.
func StartEvalSpan(ctx context.Context, nodeID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "dataflow.evaluate."+nodeID,
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
