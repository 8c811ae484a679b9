package dataflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/randalmurphal/dataflow/pkg/dataflow/events"
	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
	"github.com/randalmurphal/dataflow/pkg/dataflow/store"
)

// Engine evaluates a graph synchronously. Values are pulled: requesting
// an output walks dirty upstream nodes depth-first, recomputes them in
// dependency order, and serves the cached result. Nothing recomputes
// until something asks, unless eager evaluation is switched on.
//
// All exported methods are safe for concurrent use; internally one
// operation runs at a time, which is what keeps the cache discipline
// simple. Compute functions must not call back into the engine.
type Engine struct {
	graph    *Graph
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	bus      *events.Bus
	evalHook func(n *Node, err error)
	eager    bool

	// mu serializes every state-mutating operation, making the engine
	// the single controller for dirty flags, states, and caches.
	mu sync.Mutex
}

// NewEngine creates an engine over the given graph.
func NewEngine(g *Graph, opts ...EngineOption) (*Engine, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	e := &Engine{
		graph:   g,
		logger:  slog.Default(),
		metrics: observability.NewMetricsRecorder(),
		spans:   observability.NewSpanManager(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Graph returns the graph this engine evaluates.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// RequestOutput pulls the value on a node's output port, re-evaluating
// the node and its dirty upstream chain as needed.
//
// The returned error reports a failure of the requested node itself;
// upstream failures are absorbed during gathering, reported through
// events, and surface here only as stale input values. In both cases
// the returned value is the best the cache has: the previous result for
// a failed node, absent when nothing was ever computed.
func (e *Engine) RequestOutput(ctx context.Context, nodeID, port string) (PortValue, error) {
	n, err := e.resolve(nodeID)
	if err != nil {
		return Absent(), err
	}
	if _, ok := n.Output(port); !ok {
		return Absent(), fmt.Errorf("%w: %s.%s (output)", ErrPortNotFound, nodeID, port)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.spans.StartPullSpan(ctx, nodeID, port)
	v, err := e.pull(ctx, n, port, make(map[*Node]struct{}))
	e.spans.EndSpanWithError(span, err)
	return v, err
}

// Trigger forces the node to recompute now, bypassing manual mode. The
// node and everything downstream are marked dirty first, so consumers
// re-pull fresh values on their next request.
func (e *Engine) Trigger(ctx context.Context, nodeID string) error {
	n, err := e.resolve(nodeID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.markDirtyNode(ctx, n, "trigger")
	if n.State() == StateDisabled || !n.Dirty() {
		return nil
	}
	visited := map[*Node]struct{}{n: {}}
	return e.evaluateNode(ctx, n, visited)
}

// MarkDirty flags a node and its downstream consumers as needing
// recomputation. It returns how many nodes were newly marked; marking
// an already-dirty node is free and returns zero.
func (e *Engine) MarkDirty(ctx context.Context, nodeID, reason string) (int, error) {
	n, err := e.resolve(nodeID)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.markDirtyNode(ctx, n, reason), nil
}

// markDirtyNode runs the dirty walk with logging, metrics, and events,
// then honors eager evaluation. Callers must hold e.mu.
func (e *Engine) markDirtyNode(ctx context.Context, n *Node, reason string) int {
	marked := e.graph.MarkDirty(n)
	if len(marked) == 0 {
		return 0
	}
	observability.LogDirty(e.logger, n.id, reason)
	e.metrics.RecordDirtyPropagation(ctx, n.id, len(marked))
	for _, m := range marked {
		e.publish(ctx, events.New(events.TypeNodeDirty, m.id,
			events.WithGraph(e.graph.id),
			events.WithData("reason", reason),
			events.WithData("origin", n.id)))
	}
	if e.eager {
		for _, m := range marked {
			if !m.Dirty() {
				continue
			}
			if m.State() == StateDisabled || (m.Manual() && m.State() == StateNormal) {
				continue
			}
			visited := map[*Node]struct{}{m: {}}
			_ = e.evaluateNode(ctx, m, visited)
		}
	}
	return len(marked)
}

// SetState transitions a node between normal, disabled, and passthrough.
// Setting the state a node already has is a strict no-op: no cache
// change, no dirt, no notification. The computing state is entered and
// left by the engine around dispatch and cannot be set here.
//
// Disabling snapshots currently-valid outputs as last-known-good and
// dirties downstream consumers, but not the node itself, so its cache
// survives for serving. Re-enabling dirties the node so it recomputes
// on the next pull. Switching between normal and passthrough clears the
// node's cache outright: values produced under one regime must not be
// served under the other.
func (e *Engine) SetState(ctx context.Context, nodeID string, to NodeState) error {
	n, err := e.resolve(nodeID)
	if err != nil {
		return err
	}
	if to == StateComputing {
		return ErrComputingManaged
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := n.State()
	if from == to {
		return nil
	}
	if from == StateComputing {
		return fmt.Errorf("%w: %s", ErrNodeComputing, nodeID)
	}

	switch {
	case to == StateDisabled:
		n.snapshotLastValid()
		n.setState(to)
		for _, c := range e.graph.Consumers(n) {
			e.markDirtyNode(ctx, c, "upstream disabled")
		}
	case from == StateDisabled:
		n.setState(to)
		e.markDirtyNode(ctx, n, "node re-enabled")
	default:
		// normal <-> passthrough
		n.clearCache(true)
		n.setState(to)
		e.markDirtyNode(ctx, n, "state changed")
	}

	e.finishStateChange(ctx, n, from, to)
	return nil
}

// finishStateChange logs, publishes, and runs the notification walk for
// a completed transition. Callers must hold e.mu.
func (e *Engine) finishStateChange(ctx context.Context, n *Node, from, to NodeState) {
	observability.LogStateChange(e.logger, n.id, from.String(), to.String())
	e.publish(ctx, events.New(events.TypeNodeStateChanged, n.id,
		events.WithGraph(e.graph.id),
		events.WithData("from", from.String()),
		events.WithData("to", to.String())))
	e.notifyStateChange(n, from, to)
}

// notifyStateChange visits immediate downstream consumers so they can
// react to the transition. Unlike the dirty walk this is not gated on
// flags: an already-dirty consumer still hears about it.
func (e *Engine) notifyStateChange(n *Node, from, to NodeState) {
	for _, c := range e.graph.Consumers(n) {
		if c.onUpstreamState == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("state change callback panicked",
						slog.String("node_id", c.id),
						slog.Any("panic", r))
				}
			}()
			c.onUpstreamState(n, from, to)
		}()
	}
}

// InvalidateCache drops a node's cached outputs and dirties it together
// with its downstream consumers. With preserveLastValid the
// last-known-good snapshot survives for disabled-state serving;
// without it the node forgets everything it ever produced.
func (e *Engine) InvalidateCache(ctx context.Context, nodeID string, preserveLastValid bool) error {
	n, err := e.resolve(nodeID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n.clearCache(preserveLastValid)
	e.publish(ctx, events.New(events.TypeCacheInvalidated, n.id,
		events.WithGraph(e.graph.id),
		events.WithData("preserve_last_valid", preserveLastValid)))
	e.markDirtyNode(ctx, n, "cache invalidated")
	return nil
}

// SetParam updates one widget or parameter value and marks the node
// dirty, the same path an editor takes when the user adjusts a control.
func (e *Engine) SetParam(ctx context.Context, nodeID, key string, value any) error {
	n, err := e.resolve(nodeID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n.setParam(key, value)
	e.markDirtyNode(ctx, n, "param changed: "+key)
	return nil
}

// Activate brings a node live after construction or restore: it is
// marked dirty so the first pull computes real values, and eager
// engines compute immediately.
func (e *Engine) Activate(ctx context.Context, nodeID string) error {
	n, err := e.resolve(nodeID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.markDirtyNode(ctx, n, "activated")
	if e.eager && n.Dirty() && n.State() == StateNormal && !n.Manual() {
		visited := map[*Node]struct{}{n: {}}
		return e.evaluateNode(ctx, n, visited)
	}
	return nil
}

// ActivateAll activates every node in insertion order.
func (e *Engine) ActivateAll(ctx context.Context) error {
	for _, n := range e.graph.Nodes() {
		if err := e.Activate(ctx, n.id); err != nil {
			return err
		}
	}
	return nil
}

// AddNode places a node in the graph and publishes a node event. The
// node arrives dirty and computes on its first pull; call Activate for
// eager engines.
func (e *Engine) AddNode(ctx context.Context, n *Node) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.graph.AddNode(n); err != nil {
		return err
	}
	e.publish(ctx, events.New(events.TypeNodeAdded, n.id,
		events.WithGraph(e.graph.id)))
	return nil
}

// RemoveNode deletes a node, tears down its links, and dirties the
// consumers that were fed by it.
func (e *Engine) RemoveNode(ctx context.Context, nodeID string) error {
	n, err := e.resolve(nodeID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	consumers := e.graph.Consumers(n)
	if err := e.graph.RemoveNode(nodeID); err != nil {
		return err
	}
	e.publish(ctx, events.New(events.TypeNodeRemoved, nodeID,
		events.WithGraph(e.graph.id)))
	for _, c := range consumers {
		e.markDirtyNode(ctx, c, "upstream removed")
	}
	return nil
}

// Connect links two ports through the graph and publishes a link event.
// The target node and its consumers come out dirty.
func (e *Engine) Connect(ctx context.Context, sourceID, sourcePort, targetID, targetPort string) (*Link, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, err := e.graph.Connect(sourceID, sourcePort, targetID, targetPort, WithoutDirtyMark())
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events.New(events.TypeLinkCreated, targetID,
		events.WithGraph(e.graph.id),
		events.WithPort(targetPort),
		events.WithData("source_id", sourceID),
		events.WithData("source_port", sourcePort)))
	e.markDirtyNode(ctx, l.target.node, "link created")
	return l, nil
}

// Disconnect removes a link and publishes a link event. Removing a link
// that does not exist is a no-op and publishes nothing.
func (e *Engine) Disconnect(ctx context.Context, sourceID, sourcePort, targetID, targetPort string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.graph.resolvePort(sourceID, sourcePort, DirOutput)
	if err != nil {
		return err
	}
	in, err := e.graph.resolvePort(targetID, targetPort, DirInput)
	if err != nil {
		return err
	}

	e.graph.mu.Lock()
	var found *Link
	for _, l := range out.links {
		if l.connects(out, in) {
			found = l
			break
		}
	}
	if found != nil {
		e.graph.removeLinkLocked(found)
	}
	e.graph.mu.Unlock()

	if found == nil {
		return nil
	}

	e.publish(ctx, events.New(events.TypeLinkRemoved, targetID,
		events.WithGraph(e.graph.id),
		events.WithPort(targetPort),
		events.WithData("source_id", sourceID),
		events.WithData("source_port", sourcePort)))
	e.markDirtyNode(ctx, in.node, "link removed")
	return nil
}

// Save persists the graph's current structure to a store.
func (e *Engine) Save(ctx context.Context, st store.Store) error {
	doc := e.graph.Document()
	data, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("marshal graph document: %w", err)
	}
	if err := st.SaveGraph(doc); err != nil {
		observability.LogStoreError(e.logger, e.graph.id, "save", err)
		return err
	}
	observability.LogDocumentSaved(e.logger, e.graph.id, len(data))
	e.metrics.RecordDocumentSave(ctx, e.graph.id, int64(len(data)))
	return nil
}

// resolve looks a node up by ID.
func (e *Engine) resolve(nodeID string) (*Node, error) {
	n, ok := e.graph.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	return n, nil
}

// publish sends an event when a bus is attached.
func (e *Engine) publish(ctx context.Context, evt events.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, evt); err != nil {
		e.logger.Warn("event publish failed",
			slog.String("event_type", evt.Type),
			slog.String("node_id", evt.NodeID),
			slog.Any("error", err))
	}
}
