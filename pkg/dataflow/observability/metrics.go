package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records dataflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEvaluation records one node evaluation with duration and
	// error status.
	RecordEvaluation(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordPull records an output request. cached is true when the
	// value was served without re-evaluating.
	RecordPull(ctx context.Context, nodeID, port string, cached bool)

	// RecordDirtyPropagation records one propagation pass and how many
	// nodes it newly marked.
	RecordDirtyPropagation(ctx context.Context, originID string, marked int)

	// RecordCancellation records a cancelled background compute.
	RecordCancellation(ctx context.Context, nodeID string)

	// RecordDocumentSave records a persisted graph document size.
	RecordDocumentSave(ctx context.Context, graphID string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	evaluations   metric.Int64Counter
	evalLatency   metric.Float64Histogram
	evalErrors    metric.Int64Counter
	pulls         metric.Int64Counter
	dirtyMarked   metric.Int64Counter
	cancellations metric.Int64Counter
	documentSize  metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("dataflow")

	evaluations, err := meter.Int64Counter("dataflow.node.evaluations",
		metric.WithDescription("Number of node evaluations"),
	)
	if err != nil {
		return nil, err
	}

	evalLatency, err := meter.Float64Histogram("dataflow.node.latency_ms",
		metric.WithDescription("Node evaluation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	evalErrors, err := meter.Int64Counter("dataflow.node.errors",
		metric.WithDescription("Number of node evaluation errors"),
	)
	if err != nil {
		return nil, err
	}

	pulls, err := meter.Int64Counter("dataflow.pulls",
		metric.WithDescription("Number of output requests"),
	)
	if err != nil {
		return nil, err
	}

	dirtyMarked, err := meter.Int64Counter("dataflow.dirty.marked",
		metric.WithDescription("Number of nodes marked dirty by propagation"),
	)
	if err != nil {
		return nil, err
	}

	cancellations, err := meter.Int64Counter("dataflow.node.cancellations",
		metric.WithDescription("Number of cancelled background computes"),
	)
	if err != nil {
		return nil, err
	}

	documentSize, err := meter.Int64Histogram("dataflow.document.size_bytes",
		metric.WithDescription("Persisted graph document size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		evaluations:   evaluations,
		evalLatency:   evalLatency,
		evalErrors:    evalErrors,
		pulls:         pulls,
		dirtyMarked:   dirtyMarked,
		cancellations: cancellations,
		documentSize:  documentSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEvaluation records one node evaluation.
func (m *otelMetrics) RecordEvaluation(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node_id", nodeID),
	}

	m.evaluations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.evalLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.evalErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordPull records an output request.
func (m *otelMetrics) RecordPull(ctx context.Context, nodeID, port string, cached bool) {
	m.pulls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("port", port),
		attribute.Bool("cached", cached),
	))
}

// RecordDirtyPropagation records one propagation pass.
func (m *otelMetrics) RecordDirtyPropagation(ctx context.Context, originID string, marked int) {
	m.dirtyMarked.Add(ctx, int64(marked), metric.WithAttributes(
		attribute.String("origin_id", originID),
	))
}

// RecordCancellation records a cancelled background compute.
func (m *otelMetrics) RecordCancellation(ctx context.Context, nodeID string) {
	m.cancellations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_id", nodeID),
	))
}

// RecordDocumentSave records a persisted document size.
func (m *otelMetrics) RecordDocumentSave(ctx context.Context, graphID string, sizeBytes int64) {
	m.documentSize.Record(ctx, sizeBytes, metric.WithAttributes(
		attribute.String("graph_id", graphID),
	))
}
