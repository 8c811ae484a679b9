package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf    *bytes.Buffer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	// Build a map from the record
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}

	// Add pre-configured attrs
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}

	// Add record attrs
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	// Encode as JSON
	enc := json.NewEncoder(h.buf)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return nil
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  make([]slog.Attr, len(h.attrs)+len(attrs)),
		groups: h.groups,
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(name string) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups, name),
	}
	return newH
}

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds graph_id and node_id", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		enriched := EnrichLogger(logger, "graph-123", "sum")
		enriched.Info("test message")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "graph-123", record["graph_id"])
		assert.Equal(t, "sum", record["node_id"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		enriched := EnrichLogger(nil, "graph-123", "sum")
		assert.Nil(t, enriched)
	})

	t.Run("empty values are included", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		enriched := EnrichLogger(logger, "", "")
		enriched.Info("test")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "", record["graph_id"])
		assert.Equal(t, "", record["node_id"])
	})
}

func TestLogEvalStart(t *testing.T) {
	t.Run("logs at DEBUG level", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogEvalStart(logger, "blur")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "node evaluating", record["msg"])
		assert.Equal(t, "blur", record["node_id"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogEvalStart(nil, "node")
		})
	})
}

func TestLogEvalComplete(t *testing.T) {
	t.Run("logs duration and output count", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogEvalComplete(logger, "blur", 45.7, 2)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "node evaluated", record["msg"])
		assert.Equal(t, "blur", record["node_id"])
		assert.Equal(t, 45.7, record["duration_ms"])
		assert.Equal(t, float64(2), record["outputs"]) // JSON decodes ints as float64
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogEvalComplete(nil, "node", 100.0, 1)
		})
	})
}

func TestLogEvalError(t *testing.T) {
	t.Run("logs at ERROR level", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)
		testErr := errors.New("division by zero")

		LogEvalError(logger, "divide", testErr)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "ERROR", record["level"])
		assert.Equal(t, "node evaluation failed", record["msg"])
		assert.Equal(t, "divide", record["node_id"])
		assert.Equal(t, "division by zero", record["error"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogEvalError(nil, "node", errors.New("err"))
		})
	})
}

func TestLogStateChange(t *testing.T) {
	t.Run("logs from and to states at INFO level", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogStateChange(logger, "blur", "normal", "disabled")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "INFO", record["level"])
		assert.Equal(t, "node state changed", record["msg"])
		assert.Equal(t, "blur", record["node_id"])
		assert.Equal(t, "normal", record["from"])
		assert.Equal(t, "disabled", record["to"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogStateChange(nil, "node", "normal", "passthrough")
		})
	})
}

func TestLogDirty(t *testing.T) {
	t.Run("logs reason", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogDirty(logger, "blur", "upstream changed")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "node marked dirty", record["msg"])
		assert.Equal(t, "blur", record["node_id"])
		assert.Equal(t, "upstream changed", record["reason"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogDirty(nil, "node", "reason")
		})
	})
}

func TestLogCancel(t *testing.T) {
	t.Run("logs at INFO level", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogCancel(logger, "render")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "INFO", record["level"])
		assert.Equal(t, "compute cancelled", record["msg"])
		assert.Equal(t, "render", record["node_id"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogCancel(nil, "node")
		})
	})
}

func TestLogCycle(t *testing.T) {
	t.Run("logs node and port", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogCycle(logger, "feedback", "out")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "cycle detected, serving cached value", record["msg"])
		assert.Equal(t, "feedback", record["node_id"])
		assert.Equal(t, "out", record["port"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogCycle(nil, "node", "port")
		})
	})
}

func TestLogDocumentSaved(t *testing.T) {
	t.Run("logs document size", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		LogDocumentSaved(logger, "graph-1", 2048)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "DEBUG", record["level"])
		assert.Equal(t, "graph document saved", record["msg"])
		assert.Equal(t, "graph-1", record["graph_id"])
		assert.Equal(t, float64(2048), record["size_bytes"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogDocumentSaved(nil, "graph", 100)
		})
	})
}

func TestLogStoreError(t *testing.T) {
	t.Run("logs at WARN level", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)
		testErr := errors.New("disk full")

		LogStoreError(logger, "graph-1", "save", testErr)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "WARN", record["level"])
		assert.Equal(t, "graph store operation failed", record["msg"])
		assert.Equal(t, "graph-1", record["graph_id"])
		assert.Equal(t, "save", record["operation"])
		assert.Equal(t, "disk full", record["error"])
	})

	t.Run("nil logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogStoreError(nil, "graph", "op", errors.New("err"))
		})
	})
}

func TestTimedOperation(t *testing.T) {
	t.Run("measures duration", func(t *testing.T) {
		done := TimedOperation()
		time.Sleep(10 * time.Millisecond)
		duration := done()

		// Should be at least 10ms
		assert.GreaterOrEqual(t, duration, 10.0)
		// Should be less than 100ms (reasonable upper bound)
		assert.Less(t, duration, 100.0)
	})

	t.Run("returns zero for immediate call", func(t *testing.T) {
		done := TimedOperation()
		duration := done()

		// Should be very small (less than 1ms)
		assert.Less(t, duration, 1.0)
	})

	t.Run("can be called multiple times", func(t *testing.T) {
		done := TimedOperation()
		time.Sleep(5 * time.Millisecond)
		d1 := done()
		time.Sleep(5 * time.Millisecond)
		d2 := done()

		// Second call should have larger duration
		assert.Greater(t, d2, d1)
	})
}
