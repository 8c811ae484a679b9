package dataflow

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/dataflow/pkg/dataflow/config"
)

// Context provides evaluation context to compute functions.
// It extends context.Context with dataflow-specific services and metadata.
//
// The engine derives a fresh Context for every computation, so compute
// functions must not retain it past their return.
type Context interface {
	context.Context

	// Services

	// Logger returns the configured logger, enriched with graph and node context.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// Metadata

	// GraphID returns the identifier of the graph being evaluated.
	GraphID() string

	// NodeID returns the node whose compute function is running.
	NodeID() string

	// Config returns the node's widget and parameter values as captured
	// when this computation started. Edits arriving mid-computation are
	// not visible; they dirty the node and a fresh run reads them.
	Config() config.Config

	// Cooperative control

	// Cancelled reports whether this computation should stop. Long-running
	// compute functions poll it at convenient points and return early when
	// it reports true; the engine never terminates a computation forcibly.
	Cancelled() bool

	// ReportProgress records completion as a percentage in [0, 100] for
	// observers such as progress bars. Values outside the range are clamped.
	ReportProgress(percent float64)
}

// computeContext is the internal implementation of Context.
type computeContext struct {
	context.Context

	logger   *slog.Logger
	graphID  string
	nodeID   string
	cfg      config.Config
	token    *CancelToken
	progress func(percent float64)
}

// Logger returns the enriched logger.
func (c *computeContext) Logger() *slog.Logger {
	return c.logger
}

// Config returns the parameter snapshot for this computation.
func (c *computeContext) Config() config.Config {
	return c.cfg
}

// GraphID returns the graph identifier.
func (c *computeContext) GraphID() string {
	return c.graphID
}

// NodeID returns the current node identifier.
func (c *computeContext) NodeID() string {
	return c.nodeID
}

// Cancelled reports whether the computation's token was cancelled or the
// underlying context expired.
func (c *computeContext) Cancelled() bool {
	if c.token.Cancelled() {
		return true
	}
	return c.Context.Err() != nil
}

// ReportProgress forwards the clamped percentage to the engine.
func (c *computeContext) ReportProgress(percent float64) {
	if c.progress == nil {
		return
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	c.progress(percent)
}
