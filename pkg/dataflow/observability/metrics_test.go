package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a test meter provider and returns a function to collect metrics.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	// Save the original provider
	originalProvider := otel.GetMeterProvider()

	// Set test provider
	otel.SetMeterProvider(provider)

	// Return cleanup function
	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}

	return reader, cleanup
}

// collectMetrics collects all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsRecorder(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	// NewMetricsRecorder uses the global provider
	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	// Should not be a noop (since we set up a real provider)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordEvaluation(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	// Create a fresh metrics instance using the test provider
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records evaluation count", func(t *testing.T) {
		m.RecordEvaluation(ctx, "blur", 50*time.Millisecond, nil)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "dataflow.node.evaluations")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok, "Expected Sum type")
		require.NotEmpty(t, sum.DataPoints)

		// Find the datapoint for our node
		found := false
		for _, dp := range sum.DataPoints {
			for _, attr := range dp.Attributes.ToSlice() {
				if attr.Key == "node_id" && attr.Value.AsString() == "blur" {
					found = true
					assert.GreaterOrEqual(t, dp.Value, int64(1))
				}
			}
		}
		assert.True(t, found, "Expected to find datapoint for node_id=blur")
	})

	t.Run("records latency", func(t *testing.T) {
		m.RecordEvaluation(ctx, "resize", 100*time.Millisecond, nil)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "dataflow.node.latency_ms")
		require.NotNil(t, metric)

		hist, ok := metric.Data.(metricdata.Histogram[float64])
		require.True(t, ok, "Expected Histogram type")
		require.NotEmpty(t, hist.DataPoints)
	})

	t.Run("records errors when present", func(t *testing.T) {
		testErr := errors.New("compute failed")
		m.RecordEvaluation(ctx, "failing", 10*time.Millisecond, testErr)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "dataflow.node.errors")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok, "Expected Sum type")
		require.NotEmpty(t, sum.DataPoints)

		// Find the datapoint for our node
		found := false
		for _, dp := range sum.DataPoints {
			for _, attr := range dp.Attributes.ToSlice() {
				if attr.Key == "node_id" && attr.Value.AsString() == "failing" {
					found = true
					assert.GreaterOrEqual(t, dp.Value, int64(1))
				}
			}
		}
		assert.True(t, found, "Expected to find error datapoint")
	})

	t.Run("does not record error when nil", func(t *testing.T) {
		// Record success for a unique node
		m.RecordEvaluation(ctx, "success_only", 10*time.Millisecond, nil)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "dataflow.node.errors")
		if metric != nil {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if ok {
				// Check that success_only has no error recorded
				for _, dp := range sum.DataPoints {
					for _, attr := range dp.Attributes.ToSlice() {
						if attr.Key == "node_id" && attr.Value.AsString() == "success_only" {
							// If found, value should be 0
							assert.Equal(t, int64(0), dp.Value, "Expected no errors for success_only node")
						}
					}
				}
			}
		}
		// If metric is nil, that's fine - no errors recorded
	})
}

func TestRecordPull(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records cached pulls", func(t *testing.T) {
		m.RecordPull(ctx, "blur", "out", true)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "dataflow.pulls")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.NotEmpty(t, sum.DataPoints)
	})

	t.Run("records uncached pulls with port attribute", func(t *testing.T) {
		m.RecordPull(ctx, "resize", "image", false)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "dataflow.pulls")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok)

		found := false
		for _, dp := range sum.DataPoints {
			var nodeID, port string
			var cached bool
			for _, attr := range dp.Attributes.ToSlice() {
				switch attr.Key {
				case "node_id":
					nodeID = attr.Value.AsString()
				case "port":
					port = attr.Value.AsString()
				case "cached":
					cached = attr.Value.AsBool()
				}
			}
			if nodeID == "resize" && port == "image" && !cached {
				found = true
			}
		}
		assert.True(t, found, "Expected to find datapoint for resize/image uncached")
	})
}

func TestRecordDirtyPropagation(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records marked count with origin attribute", func(t *testing.T) {
		m.RecordDirtyPropagation(ctx, "source", 3)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "dataflow.dirty.marked")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok)

		found := false
		for _, dp := range sum.DataPoints {
			for _, attr := range dp.Attributes.ToSlice() {
				if attr.Key == "origin_id" && attr.Value.AsString() == "source" {
					found = true
					assert.Equal(t, int64(3), dp.Value)
				}
			}
		}
		assert.True(t, found, "Expected to find datapoint for origin_id=source")
	})
}

func TestRecordDocumentSave(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records document size", func(t *testing.T) {
		m.RecordDocumentSave(ctx, "graph-1", 2048)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "dataflow.document.size_bytes")
		require.NotNil(t, metric)

		hist, ok := metric.Data.(metricdata.Histogram[int64])
		require.True(t, ok, "Expected Histogram[int64] type")
		require.NotEmpty(t, hist.DataPoints)

		// Verify attribute
		found := false
		for _, dp := range hist.DataPoints {
			for _, attr := range dp.Attributes.ToSlice() {
				if attr.Key == "graph_id" && attr.Value.AsString() == "graph-1" {
					found = true
					assert.Greater(t, dp.Count, uint64(0))
				}
			}
		}
		assert.True(t, found, "Expected to find datapoint for graph-1")
	})
}

func TestOtelMetrics_AllMethods(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()

	// Call all methods to ensure they work
	m.RecordEvaluation(ctx, "test_node", 25*time.Millisecond, nil)
	m.RecordEvaluation(ctx, "error_node", 10*time.Millisecond, errors.New("test"))
	m.RecordPull(ctx, "test_node", "out", true)
	m.RecordDirtyPropagation(ctx, "test_node", 2)
	m.RecordCancellation(ctx, "slow_node")
	m.RecordDocumentSave(ctx, "graph", 1024)

	// Collect and verify all metrics exist
	rm := collectMetrics(t, reader)

	assert.NotNil(t, findMetric(rm, "dataflow.node.evaluations"))
	assert.NotNil(t, findMetric(rm, "dataflow.node.latency_ms"))
	assert.NotNil(t, findMetric(rm, "dataflow.node.errors"))
	assert.NotNil(t, findMetric(rm, "dataflow.pulls"))
	assert.NotNil(t, findMetric(rm, "dataflow.dirty.marked"))
	assert.NotNil(t, findMetric(rm, "dataflow.node.cancellations"))
	assert.NotNil(t, findMetric(rm, "dataflow.document.size_bytes"))
}

func TestNewOtelMetrics_Creation(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	require.NotNil(t, m)

	// Verify all metric instruments were created
	assert.NotNil(t, m.evaluations)
	assert.NotNil(t, m.evalLatency)
	assert.NotNil(t, m.evalErrors)
	assert.NotNil(t, m.pulls)
	assert.NotNil(t, m.dirtyMarked)
	assert.NotNil(t, m.cancellations)
	assert.NotNil(t, m.documentSize)

	// Use the reader to avoid unused warning
	_ = reader
}
