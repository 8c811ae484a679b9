package dataflow

import (
	"log/slog"

	"github.com/randalmurphal/dataflow/pkg/dataflow/config"
	"github.com/randalmurphal/dataflow/pkg/dataflow/events"
	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. Evaluation logs are enriched with graph
// and node identifiers.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Defaults to the OpenTelemetry
// recorder against the global meter provider.
func WithMetrics(m observability.MetricsRecorder) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSpans sets the span manager for pull and evaluation tracing.
func WithSpans(s observability.SpanManager) EngineOption {
	return func(e *Engine) {
		e.spans = s
	}
}

// WithBus attaches an event bus. The engine publishes evaluation,
// state-change, dirty, progress, and link events to it. The engine does
// not own the bus; closing it remains the caller's job.
func WithBus(bus *events.Bus) EngineOption {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithEvaluationHook registers a callback invoked after every
// evaluation, successful or not. UIs use it to refresh views. A panic
// in the hook is recovered and logged; the committed cache is already
// in place by the time the hook runs.
func WithEvaluationHook(fn func(n *Node, err error)) EngineOption {
	return func(e *Engine) {
		e.evalHook = fn
	}
}

// WithEagerEvaluation makes the engine re-evaluate nodes as soon as they
// are marked dirty instead of waiting for the next pull. This trades
// latency on reads for work on writes, the way an editor's auto-update
// toggle does.
func WithEagerEvaluation() EngineOption {
	return func(e *Engine) {
		e.eager = true
	}
}

// FromSettings applies engine-relevant fields from a settings block.
func FromSettings(s config.Settings) EngineOption {
	return func(e *Engine) {
		e.eager = s.EagerEvaluation
	}
}
