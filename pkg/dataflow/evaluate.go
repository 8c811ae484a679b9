package dataflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/dataflow/pkg/dataflow/events"
	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
	"github.com/randalmurphal/dataflow/pkg/dataflow/types"
)

// pullFunc is the recursion step gathering uses to obtain an upstream
// value. The synchronous engine recurses into a full evaluation; the
// async engine schedules work and serves the current cache.
type pullFunc func(ctx context.Context, n *Node, port string, visited map[*Node]struct{}) (PortValue, error)

// pull serves the value on one output port, re-evaluating first when the
// pull protocol says to. visited carries the nodes already being
// evaluated on this pull so cycles fall back to cached values instead of
// recursing forever.
//
// The error reports a failure of n itself. Callers gathering inputs
// ignore it and take the stale value; RequestOutput hands it to the
// caller. Callers must hold e.mu.
func (e *Engine) pull(ctx context.Context, n *Node, port string, visited map[*Node]struct{}) (PortValue, error) {
	if _, seen := visited[n]; seen {
		observability.LogCycle(e.logger, n.id, port)
		e.metrics.RecordPull(ctx, n.id, port, true)
		return n.CachedValue(port), nil
	}

	if n.State() == StateDisabled {
		e.metrics.RecordPull(ctx, n.id, port, true)
		return e.disabledValue(n, port), nil
	}

	var err error
	needsEval := n.Dirty() && !n.Computing() && evalAllowed(n)
	if needsEval {
		visited[n] = struct{}{}
		err = e.evaluateNode(ctx, n, visited)
	}
	e.metrics.RecordPull(ctx, n.id, port, !needsEval)
	return n.CachedValue(port), err
}

// evalAllowed reports whether the pull protocol may recompute the node:
// passthrough nodes always, normal nodes unless they are manual, never
// disabled ones.
func evalAllowed(n *Node) bool {
	switch n.State() {
	case StatePassthrough:
		return true
	case StateNormal:
		return !n.Manual()
	default:
		return false
	}
}

// disabledValue serves one output port of a disabled node according to
// its policy. The node never recomputes and its dirty flag is untouched.
func (e *Engine) disabledValue(n *Node, port string) PortValue {
	switch n.Behavior() {
	case UseLastValid:
		return n.LastValid(port)
	case UseNone:
		return Absent()
	case UseDefault:
		if d, ok := n.PortDefault(port); ok {
			return Value(d)
		}
		return Absent()
	case PropagateDisabled:
		return DisabledValue(n.id, port)
	default:
		return Absent()
	}
}

// evaluateNode recomputes one node and commits the result. Disabled and
// already-computing nodes are left untouched. On failure the previous
// cache survives with every entry marked invalid and the node stays
// dirty; the error is reported through log, metrics, event, and hook,
// and returned for the caller that asked for this node directly.
//
// Callers must hold e.mu.
func (e *Engine) evaluateNode(ctx context.Context, n *Node, visited map[*Node]struct{}) error {
	if n.State() == StateDisabled {
		return nil
	}
	if n.Computing() {
		return nil
	}

	n.setComputing(true)
	defer n.setComputing(false)

	ctx, span := e.spans.StartEvalSpan(ctx, n.id)
	observability.LogEvalStart(e.logger, n.id)
	elapsed := observability.TimedOperation()
	start := time.Now()

	state := n.State()
	outputs, err := e.produce(ctx, n, state, visited)
	if err != nil {
		e.spans.EndSpanWithError(span, err)
		return e.failEvaluation(ctx, n, err, time.Since(start))
	}

	e.commitOutputs(ctx, n, state, outputs, elapsed(), time.Since(start))
	e.spans.AddSpanEvent(ctx, "cache_committed")
	e.spans.EndSpanWithError(span, nil)
	return nil
}

// produce gathers inputs and turns them into output values, one per
// output port name, via passthrough mapping or the compute function.
func (e *Engine) produce(ctx context.Context, n *Node, state NodeState, visited map[*Node]struct{}) (map[string]PortValue, error) {
	inputs, err := e.gatherWith(ctx, n, visited, e.pull)
	if err != nil {
		return nil, err
	}

	if state == StatePassthrough {
		return e.passthrough(n, inputs)
	}

	if n.compute == nil {
		return map[string]PortValue{}, nil
	}

	results, err := e.runCompute(ctx, n, inputs, nil)
	if err != nil {
		return nil, err
	}
	return normalizeResults(n, results)
}

// commitOutputs runs the commit half of an evaluation: brand-new cache
// entries swapped in atomically, dirty flag cleared, present values
// copied to last-known-good, then reporting and the finished hook. The
// hook runs strictly after the commit, so a broken hook cannot corrupt
// the cache. Returns how many ports produced present values.
func (e *Engine) commitOutputs(ctx context.Context, n *Node, state NodeState, outputs map[string]PortValue, durationMs float64, duration time.Duration) int {
	now := time.Now().UTC()
	entries := make(map[string]cacheEntry, len(n.outputs))
	produced := 0
	for _, p := range n.outputs {
		v := outputs[p.name]
		if v.IsPresent() {
			produced++
		}
		entries[p.name] = cacheEntry{
			value:       v,
			valid:       true,
			computedAt:  now,
			sourceState: state,
		}
	}
	n.commitCache(entries)
	n.setLastErr(nil)

	observability.LogEvalComplete(e.logger, n.id, durationMs, produced)
	e.metrics.RecordEvaluation(ctx, n.id, duration, nil)
	e.publish(ctx, events.New(events.TypeNodeEvaluated, n.id,
		events.WithGraph(e.graph.id),
		events.WithData("outputs", produced)))
	e.runEvalHook(n, nil)
	return produced
}

// failEvaluation runs the failure half of an evaluation: the previous
// cache is preserved with every entry marked invalid, the dirty flag is
// left standing, and the failure is reported. Returns err unchanged.
func (e *Engine) failEvaluation(ctx context.Context, n *Node, err error, duration time.Duration) error {
	n.invalidateCache()
	n.setLastErr(err)
	observability.LogEvalError(e.logger, n.id, err)
	e.metrics.RecordEvaluation(ctx, n.id, duration, err)
	e.publish(ctx, events.New(events.TypeNodeEvalFailed, n.id,
		events.WithGraph(e.graph.id),
		events.WithError(err)))
	e.runEvalHook(n, err)
	return err
}

// inputSource snapshots where one input port gets its value from.
type inputSource struct {
	port    string
	typ     *types.PortType
	src     *Node
	srcPort string
	srcType *types.PortType
}

// inputSources resolves every input port's feed under one lock
// acquisition, so gathering sees a consistent topology.
func (g *Graph) inputSources(n *Node) []inputSource {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]inputSource, 0, len(n.inputs))
	for _, p := range n.inputs {
		s := inputSource{port: p.name, typ: p.typ}
		if l := p.incoming(); l != nil {
			s.src = l.source.node
			s.srcPort = l.source.name
			s.srcType = l.source.typ
		}
		out = append(out, s)
	}
	return out
}

// gatherWith builds the input map for a computation using the given pull
// step. Linked ports pull from their source, sharing the visited set so
// cycles terminate; upstream failures are absorbed and the stale value
// used. Disabled markers become absent here, so compute functions only
// ever see values or gaps. Unlinked ports serve their configured default
// or absent.
//
// A failing value conversion is the node's own failure, not upstream's.
func (e *Engine) gatherWith(ctx context.Context, n *Node, visited map[*Node]struct{}, pull pullFunc) (Inputs, error) {
	sources := e.graph.inputSources(n)
	order := make([]string, 0, len(sources))
	byName := make(map[string]PortValue, len(sources))

	for _, s := range sources {
		order = append(order, s.port)

		if s.src == nil {
			if d, ok := n.PortDefault(s.port); ok {
				byName[s.port] = Value(d)
			} else {
				byName[s.port] = Absent()
			}
			continue
		}

		v, _ := pull(ctx, s.src, s.srcPort, visited)
		if v.IsDisabled() {
			v = Absent()
		}
		if v.IsPresent() && s.srcType.ID != s.typ.ID {
			conv, ok := e.graph.registry.Converter(s.srcType.ID, s.typ.ID)
			if ok && conv != nil {
				converted, err := conv(v.Any())
				if err != nil {
					return Inputs{}, &ComputeError{
						NodeID: n.id,
						Err:    fmt.Errorf("convert input %s: %w", s.port, err),
					}
				}
				v = Value(converted)
			}
		}
		byName[s.port] = v
	}
	return newInputs(order, byName), nil
}

// runCompute invokes the user computation with panic recovery. A panic
// becomes a PanicError carrying the stack, handled like any other
// compute failure. token may be nil for synchronous evaluation, where
// only context expiry can interrupt.
func (e *Engine) runCompute(ctx context.Context, n *Node, inputs Inputs, token *CancelToken) (results Results, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				NodeID: n.id,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	cctx := &computeContext{
		Context: ctx,
		logger:  observability.EnrichLogger(e.logger, e.graph.id, n.id),
		graphID: e.graph.id,
		nodeID:  n.id,
		cfg:     n.Params(),
		token:   token,
		progress: func(percent float64) {
			n.setProgress(percent)
			e.publish(ctx, events.New(events.TypeNodeProgress, n.id,
				events.WithGraph(e.graph.id),
				events.WithData("progress", percent)))
		},
	}

	results, err = n.compute(cctx, inputs)
	if err != nil {
		return Results{}, &ComputeError{NodeID: n.id, Err: err}
	}
	return results, nil
}

// normalizeResults converts a compute function's return into one value
// per output port. Map results may omit ports (absent) but must not
// name unknown ones; a single bare value requires the node to declare
// exactly one output port.
func normalizeResults(n *Node, results Results) (map[string]PortValue, error) {
	out := make(map[string]PortValue, len(n.outputs))

	switch results.kind {
	case resultEmpty:
		return out, nil

	case resultSingle:
		if len(n.outputs) != 1 {
			return nil, &ConfigurationError{
				NodeID: n.id,
				Reason: fmt.Sprintf("bare result requires exactly one output port, node has %d", len(n.outputs)),
			}
		}
		out[n.outputs[0].name] = Value(results.single)
		return out, nil

	case resultMap:
		for key, v := range results.values {
			p, ok := n.Output(key)
			if !ok {
				return nil, &ConfigurationError{
					NodeID: n.id,
					Reason: fmt.Sprintf("result names unknown output port %q", key),
				}
			}
			if err := p.typ.Validate(v); err != nil {
				return nil, &ComputeError{
					NodeID: n.id,
					Err:    fmt.Errorf("output %s: %w", key, err),
				}
			}
			out[key] = Value(v)
		}
		return out, nil

	default:
		return nil, &ConfigurationError{
			NodeID: n.id,
			Reason: "unrecognized result shape",
		}
	}
}

// passthrough maps inputs directly to outputs. Each output port takes,
// in order of preference: the input with the same name, the input at
// the same declaration index when its type is compatible, or the first
// input carrying a present value. Outputs with no match serve absent.
func (e *Engine) passthrough(n *Node, inputs Inputs) (map[string]PortValue, error) {
	out := make(map[string]PortValue, len(n.outputs))

	for i, op := range n.outputs {
		if _, ok := n.Input(op.name); ok {
			out[op.name] = inputs.Get(op.name)
			continue
		}

		if i < len(n.inputs) {
			ip := n.inputs[i]
			if conv, ok := e.graph.registry.Converter(ip.typ.ID, op.typ.ID); ok {
				v := inputs.Get(ip.name)
				if v.IsPresent() && conv != nil {
					converted, err := conv(v.Any())
					if err != nil {
						return nil, &ComputeError{
							NodeID: n.id,
							Err:    fmt.Errorf("passthrough %s -> %s: %w", ip.name, op.name, err),
						}
					}
					v = Value(converted)
				}
				out[op.name] = v
				continue
			}
		}

		matched := false
		for _, ip := range n.inputs {
			if v := inputs.Get(ip.name); v.IsPresent() {
				out[op.name] = v
				matched = true
				break
			}
		}
		if !matched {
			out[op.name] = Absent()
		}
	}
	return out, nil
}

// runEvalHook invokes the evaluation-finished callback with panic
// protection: by the time it runs the cache commit or invalidation is
// already done, and a broken hook must not undo that.
func (e *Engine) runEvalHook(n *Node, evalErr error) {
	if e.evalHook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation hook panicked",
				slog.String("node_id", n.id),
				slog.Any("panic", r))
		}
	}()
	e.evalHook(n, evalErr)
}
