// Package observability provides structured logging, metrics, and
// tracing for the dataflow engines.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds graph context to a logger.
// Returns a new logger with graph_id and node_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "graph-123", "osc1")
//	enriched.Info("doing work") // includes graph_id, node_id
func EnrichLogger(logger *slog.Logger, graphID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("graph_id", graphID),
		slog.String("node_id", nodeID),
	)
}

// LogEvalStart logs the start of a node evaluation.
func LogEvalStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node evaluating",
		slog.String("node_id", nodeID),
	)
}

// LogEvalComplete logs a successful node evaluation.
func LogEvalComplete(logger *slog.Logger, nodeID string, durationMs float64, outputs int) {
	if logger == nil {
		return
	}
	logger.Debug("node evaluated",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("outputs", outputs),
	)
}

// LogEvalError logs a failed node evaluation. The node keeps its
// previous cache (marked invalid), so this is an error, not a crash.
func LogEvalError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node evaluation failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogStateChange logs a node state transition.
func LogStateChange(logger *slog.Logger, nodeID, from, to string) {
	if logger == nil {
		return
	}
	logger.Info("node state changed",
		slog.String("node_id", nodeID),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogDirty logs the start of a dirty propagation.
func LogDirty(logger *slog.Logger, nodeID, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("node marked dirty",
		slog.String("node_id", nodeID),
		slog.String("reason", reason),
	)
}

// LogCancel logs a compute cancellation request.
func LogCancel(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Info("compute cancelled",
		slog.String("node_id", nodeID),
	)
}

// LogCycle logs a cycle hit during a pull. Not an error: the pull
// returns the cached value at the cycle-closing edge.
func LogCycle(logger *slog.Logger, nodeID, port string) {
	if logger == nil {
		return
	}
	logger.Debug("cycle detected, serving cached value",
		slog.String("node_id", nodeID),
		slog.String("port", port),
	)
}

// LogDocumentSaved logs graph document persistence.
func LogDocumentSaved(logger *slog.Logger, graphID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("graph document saved",
		slog.String("graph_id", graphID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogStoreError logs a persistence failure (non-fatal).
func LogStoreError(logger *slog.Logger, graphID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("graph store operation failed",
		slog.String("graph_id", graphID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
