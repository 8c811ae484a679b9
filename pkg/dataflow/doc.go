/*
Package dataflow provides a pull-based evaluation engine for node graphs.

# Overview

dataflow is a Go library for the evaluation layer of node-graph editors:
graphs of typed nodes connected output-to-input, where a change anywhere
invalidates everything downstream and values are recomputed lazily when
something asks for them. Nodes carry an output cache, a dirty flag, and
a lifecycle state (normal, disabled, passthrough), and the engine keeps
them consistent through edits, failures, and cancellation.

The core ideas:
  - Dirty marking is push, evaluation is pull. Marking walks downstream
    and stops at nodes already dirty; nothing recomputes until pulled.
  - Failed nodes keep serving their previous values, marked invalid,
    and the rest of the graph keeps going.
  - Cycles are legal. A pull that meets itself serves the cached value
    from the previous generation instead of recursing.
  - Disabled nodes stop computing but keep answering, according to a
    per-node policy (last-known-good, nothing, defaults, or an explicit
    disabled marker).

# Basic Usage

Build nodes with typed ports, link them, and pull:

	reg := types.New()
	num := reg.ByName("float")

	double := dataflow.NewNode("double").
	    Input("in", num).
	    Output("out", num).
	    Compute(func(ctx dataflow.Context, in dataflow.Inputs) (dataflow.Results, error) {
	        v, _ := in.Float64("in")
	        return dataflow.Output(v * 2), nil
	    }).
	    Build()

	g := dataflow.NewGraph("doc", reg)
	g.AddNode(source)
	g.AddNode(double)
	g.Connect("source", "value", "double", "in")

	eng, err := dataflow.NewEngine(g)
	if err != nil {
	    log.Fatal(err)
	}
	v, err := eng.RequestOutput(ctx, "double", "out")

RequestOutput re-evaluates the dirty upstream chain depth-first and
serves the cached result. Pulling again without changes is a cache hit.

# States

Every node is normal, disabled, or passthrough:

	eng.SetState(ctx, "blur", dataflow.StateDisabled)

Disabling a node freezes it: downstream is marked dirty, but the node
keeps its cache and serves values per its DisabledBehavior. Passthrough
short-circuits the compute function and forwards inputs to outputs by
name, position, or first available value. Setting the state a node
already has does nothing at all.

# Background Evaluation

AsyncEngine runs compute functions on a worker pool with the same cache
semantics:

	ae, err := dataflow.NewAsyncEngine(g, config.DefaultSettings())
	defer ae.Close()

	v, _ := ae.RequestOutput(ctx, "render", "image") // stale, schedules
	v, err = ae.Fetch(ctx, "render", "image")        // settled value

Dirtying a node mid-computation cancels its token and queues exactly
one re-run. Cancellation is cooperative: compute functions poll
ctx.Cancelled() and return early; results of a cancelled run are
discarded and the previous cache survives untouched.

# Persistence

Graph structure (not cached values) round-trips through versioned JSON
documents:

	st, err := store.NewSQLiteStore("./graphs.db")
	defer st.Close()

	eng.Save(ctx, st)
	doc, err := st.LoadGraph(g.ID())

Restored nodes come back dirty and recompute on first pull.

# Observability

Evaluation is logged through log/slog, measured through OpenTelemetry
metrics (dataflow.node.evaluations, dataflow.node.latency_ms, ...), and
traced through spans (dataflow.pull > dataflow.evaluate.{id}). Lifecycle
notifications (evaluated, failed, state changed, dirty, progress,
cancelled) go to an events.Bus for UI consumption.

# Error Handling

Compute failures never escape an evaluation. The node keeps its previous
values marked invalid, stays dirty, and the error is reported through
the log, the bus, and the evaluation hook:

	var cerr *dataflow.ComputeError
	if errors.As(err, &cerr) {
	    log.Printf("node %s failed: %v", cerr.NodeID, cerr.Err)
	}

Panics become PanicError with the stack attached. Structural misuse
(a bare result on a multi-output node, unknown output names) is a
ConfigurationError.

# Thread Safety

  - Graph and Engine are safe for concurrent use.
  - AsyncEngine methods are safe for concurrent use; compute functions
    run outside its lock.
  - Compute functions and engine callbacks must not call back into the
    engine that invoked them.

# Subpackages

  - types: port type registry with casts and compatibility
  - config: configuration files and engine settings
  - store: graph document persistence (memory, SQLite)
  - events: lifecycle event bus
  - catalog: node type registration, search, and document restore
  - observability: logging, metrics, and tracing helpers
*/
package dataflow
