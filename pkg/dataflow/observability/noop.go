package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordEvaluation does nothing.
func (NoopMetrics) RecordEvaluation(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordPull does nothing.
func (NoopMetrics) RecordPull(_ context.Context, _, _ string, _ bool) {}

// RecordDirtyPropagation does nothing.
func (NoopMetrics) RecordDirtyPropagation(_ context.Context, _ string, _ int) {}

// RecordCancellation does nothing.
func (NoopMetrics) RecordCancellation(_ context.Context, _ string) {}

// RecordDocumentSave does nothing.
func (NoopMetrics) RecordDocumentSave(_ context.Context, _ string, _ int64) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
// We use the OTel noop package for a proper no-op span implementation.
var noopSpan = noop.Span{}

// StartPullSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartPullSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartEvalSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartEvalSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
