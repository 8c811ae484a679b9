package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopMetrics_ImplementsInterface(t *testing.T) {
	var _ MetricsRecorder = NoopMetrics{}
}

func TestNoopMetrics_RecordEvaluation(t *testing.T) {
	m := NoopMetrics{}

	t.Run("does not panic with valid args", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordEvaluation(context.Background(), "node", 100*time.Millisecond, nil)
		})
	})

	t.Run("does not panic with error", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordEvaluation(context.Background(), "node", 100*time.Millisecond, errors.New("test"))
		})
	})

	t.Run("does not panic with nil context", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordEvaluation(nil, "node", 0, nil)
		})
	})

	t.Run("does not panic with empty node ID", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordEvaluation(context.Background(), "", 0, nil)
		})
	})
}

func TestNoopMetrics_RecordPull(t *testing.T) {
	m := NoopMetrics{}

	t.Run("does not panic with cached=true", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordPull(context.Background(), "node", "out", true)
		})
	})

	t.Run("does not panic with cached=false", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordPull(context.Background(), "node", "out", false)
		})
	})

	t.Run("does not panic with nil context", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordPull(nil, "node", "out", true)
		})
	})
}

func TestNoopMetrics_RecordDirtyPropagation(t *testing.T) {
	m := NoopMetrics{}

	t.Run("does not panic with valid args", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordDirtyPropagation(context.Background(), "node", 5)
		})
	})

	t.Run("does not panic with zero marked", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordDirtyPropagation(context.Background(), "node", 0)
		})
	})
}

func TestNoopMetrics_RecordDocumentSave(t *testing.T) {
	m := NoopMetrics{}

	t.Run("does not panic with valid args", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordDocumentSave(context.Background(), "graph", 1024)
		})
	})

	t.Run("does not panic with zero size", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordDocumentSave(context.Background(), "graph", 0)
		})
	})

	t.Run("does not panic with negative size", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordDocumentSave(context.Background(), "graph", -1)
		})
	})

	t.Run("does not panic with nil context", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordDocumentSave(nil, "graph", 1024)
		})
	})
}

func TestNoopSpanManager_ImplementsInterface(t *testing.T) {
	var _ SpanManager = NoopSpanManager{}
}

func TestNoopSpanManager_StartPullSpan(t *testing.T) {
	sm := NoopSpanManager{}

	t.Run("returns same context", func(t *testing.T) {
		ctx := context.Background()
		newCtx, span := sm.StartPullSpan(ctx, "node", "out")

		assert.Equal(t, ctx, newCtx, "Context should be unchanged")
		assert.NotNil(t, span, "Span should not be nil")
	})

	t.Run("span is valid noop span", func(t *testing.T) {
		ctx := context.Background()
		_, span := sm.StartPullSpan(ctx, "node", "out")

		// Noop spans are not recording
		assert.False(t, span.IsRecording())
	})

	t.Run("does not panic with empty args", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.StartPullSpan(context.Background(), "", "")
		})
	})
}

func TestNoopSpanManager_StartEvalSpan(t *testing.T) {
	sm := NoopSpanManager{}

	t.Run("returns same context", func(t *testing.T) {
		ctx := context.Background()
		newCtx, span := sm.StartEvalSpan(ctx, "blur")

		assert.Equal(t, ctx, newCtx, "Context should be unchanged")
		assert.NotNil(t, span, "Span should not be nil")
	})

	t.Run("span is valid noop span", func(t *testing.T) {
		ctx := context.Background()
		_, span := sm.StartEvalSpan(ctx, "blur")

		assert.False(t, span.IsRecording())
	})

	t.Run("does not panic with empty node ID", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.StartEvalSpan(context.Background(), "")
		})
	})
}

func TestNoopSpanManager_EndSpanWithError(t *testing.T) {
	sm := NoopSpanManager{}

	t.Run("does not panic with nil span", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(nil, nil)
		})
	})

	t.Run("does not panic with nil error", func(t *testing.T) {
		_, span := sm.StartEvalSpan(context.Background(), "n")
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(span, nil)
		})
	})

	t.Run("does not panic with error", func(t *testing.T) {
		_, span := sm.StartEvalSpan(context.Background(), "n")
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(span, errors.New("test error"))
		})
	})
}

func TestNoopSpanManager_AddSpanEvent(t *testing.T) {
	sm := NoopSpanManager{}

	t.Run("does not panic with valid args", func(t *testing.T) {
		ctx := context.Background()
		assert.NotPanics(t, func() {
			sm.AddSpanEvent(ctx, "test_event", attribute.String("key", "value"))
		})
	})

	t.Run("does not panic with no attributes", func(t *testing.T) {
		ctx := context.Background()
		assert.NotPanics(t, func() {
			sm.AddSpanEvent(ctx, "test_event")
		})
	})

	t.Run("does not panic with nil context", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.AddSpanEvent(nil, "test_event")
		})
	})

	t.Run("does not panic with empty event name", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.AddSpanEvent(context.Background(), "")
		})
	})
}

func TestNoopImplementations_NoSideEffects(t *testing.T) {
	// This test verifies that noop implementations can be used
	// in a realistic scenario without any side effects

	metrics := NoopMetrics{}
	spans := NoopSpanManager{}

	ctx := context.Background()

	// Simulate a pull across three nodes
	ctx, pullSpan := spans.StartPullSpan(ctx, "sink", "out")

	for i, nodeID := range []string{"source", "transform", "sink"} {
		ctx, evalSpan := spans.StartEvalSpan(ctx, nodeID)

		start := time.Now()
		// Simulate work
		time.Sleep(1 * time.Millisecond)
		duration := time.Since(start)

		var err error
		if i == 1 {
			err = errors.New("simulated error")
		}

		metrics.RecordEvaluation(ctx, nodeID, duration, err)

		if i == 2 {
			metrics.RecordDocumentSave(ctx, "graph", 512)
			spans.AddSpanEvent(ctx, "document_saved", attribute.Int64("size", 512))
		}

		spans.EndSpanWithError(evalSpan, err)
	}

	metrics.RecordPull(ctx, "sink", "out", false)
	metrics.RecordDirtyPropagation(ctx, "source", 2)
	spans.EndSpanWithError(pullSpan, nil)

	// If we get here without panicking, the test passes
}
