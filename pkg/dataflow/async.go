package dataflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/dataflow/pkg/dataflow/config"
	"github.com/randalmurphal/dataflow/pkg/dataflow/events"
	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
	"github.com/randalmurphal/dataflow/pkg/dataflow/store"
)

// AsyncEngine evaluates a graph with background workers. The cache and
// state semantics are identical to Engine; the difference is that a
// node's compute function runs on a worker goroutine while everything
// else, gathering, normalization, commits, state transitions, happens
// on the controller side under one lock.
//
// RequestOutput never blocks on computation: it schedules whatever is
// dirty and immediately serves the current cached value, the way an
// editor keeps painting stale pixels while the fresh ones render.
// Completion is announced through the event bus and the evaluation
// hook; Fetch wraps the schedule-wait-read cycle for callers that want
// the settled value.
//
// Dirtying or re-requesting a node whose computation is in flight
// cancels its token and queues exactly one re-evaluation for when the
// worker returns. Cancellation is cooperative: workers observe it by
// polling ctx.Cancelled(), and a worker that never polls simply keeps
// its node computing until it returns.
type AsyncEngine struct {
	eng   *Engine
	eager bool

	jobs chan asyncJob
	done chan struct{}
	wg   sync.WaitGroup

	// ctrlMu makes this engine the single controller: every dirty flag,
	// state transition, and cache commit happens under it.
	ctrlMu    sync.Mutex
	inflight  map[*Node]*inflightRecord
	inflightN int
	idle      chan struct{}
	dispatch  []asyncJob
	closed    bool
}

// inflightRecord tracks one dispatched computation.
type inflightRecord struct {
	token   *CancelToken
	pending bool
	span    trace.Span
	started time.Time
	elapsed func() float64
	state   NodeState
}

// asyncJob is one unit of worker work: a compute function invocation
// with inputs gathered on the controller and a fresh cancellation token.
type asyncJob struct {
	ctx    context.Context
	node   *Node
	inputs Inputs
	token  *CancelToken
}

// NewAsyncEngine creates an engine with settings.Workers background
// workers and a job queue of settings.QueueSize. Close must be called
// to release them.
func NewAsyncEngine(g *Graph, settings config.Settings, opts ...EngineOption) (*AsyncEngine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	eng, err := NewEngine(g, opts...)
	if err != nil {
		return nil, err
	}

	ae := &AsyncEngine{
		eng:      eng,
		eager:    eng.eager || settings.EagerEvaluation,
		jobs:     make(chan asyncJob, settings.QueueSize),
		done:     make(chan struct{}),
		inflight: make(map[*Node]*inflightRecord),
		idle:     closedChan(),
	}
	// The embedded engine's eager mode would evaluate synchronously
	// inside its own operations; this engine schedules instead.
	eng.eager = false

	ae.wg.Add(settings.Workers)
	for i := 0; i < settings.Workers; i++ {
		go ae.worker()
	}
	return ae, nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Graph returns the graph this engine evaluates.
func (ae *AsyncEngine) Graph() *Graph {
	return ae.eng.graph
}

// Close cancels every in-flight token, restores node states, stops the
// workers, and waits for them. Computations already running finish on
// their own schedule and their results are discarded.
func (ae *AsyncEngine) Close() error {
	ae.ctrlMu.Lock()
	if ae.closed {
		ae.ctrlMu.Unlock()
		return nil
	}
	ae.closed = true
	for n, rec := range ae.inflight {
		rec.token.Cancel()
		ae.eng.spans.EndSpanWithError(rec.span, nil)
		n.exitComputing()
		delete(ae.inflight, n)
		ae.removeInflightLocked()
	}
	ae.dispatch = nil
	ae.ctrlMu.Unlock()

	close(ae.done)
	ae.wg.Wait()
	return nil
}

// Wait blocks until no computation is in flight or queued, or the
// context expires. A quiet engine returns immediately.
func (ae *AsyncEngine) Wait(ctx context.Context) error {
	ae.ctrlMu.Lock()
	ch := ae.idle
	ae.ctrlMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestOutput runs the pull protocol and serves the current cached
// value immediately. Dirty nodes along the chain are scheduled on the
// workers; their completion arrives through the bus and the evaluation
// hook, after which pulling again serves fresh values.
func (ae *AsyncEngine) RequestOutput(ctx context.Context, nodeID, port string) (PortValue, error) {
	n, err := ae.eng.resolve(nodeID)
	if err != nil {
		return Absent(), err
	}
	if _, ok := n.Output(port); !ok {
		return Absent(), fmt.Errorf("%w: %s.%s (output)", ErrPortNotFound, nodeID, port)
	}

	ae.ctrlMu.Lock()
	if ae.closed {
		ae.ctrlMu.Unlock()
		return Absent(), ErrEngineClosed
	}
	pullCtx, span := ae.eng.spans.StartPullSpan(ctx, nodeID, port)
	v, _ := ae.pullLocked(pullCtx, n, port, make(map[*Node]struct{}))
	ae.eng.spans.EndSpanWithError(span, nil)
	jobs := ae.takeDispatch()
	ae.ctrlMu.Unlock()

	ae.enqueue(jobs)
	return v, nil
}

// Fetch pulls an output and waits for the value to settle: it schedules
// the dirty chain, blocks until the engine goes quiet, and re-pulls
// while upstream completions keep re-dirtying the node. A node whose
// evaluation failed returns its last-known value together with the
// evaluation error; a manual node returns its cache as-is.
//
// A dirty chain settles in at most depth+1 rounds, so the retry loop is
// bounded by the node count. Cyclic graphs never settle; they exit
// through the bound with the newest committed generation.
func (ae *AsyncEngine) Fetch(ctx context.Context, nodeID, port string) (PortValue, error) {
	n, err := ae.eng.resolve(nodeID)
	if err != nil {
		return Absent(), err
	}
	if _, ok := n.Output(port); !ok {
		return Absent(), fmt.Errorf("%w: %s.%s (output)", ErrPortNotFound, nodeID, port)
	}

	rounds := ae.eng.graph.Len() + 2
	for i := 0; i < rounds; i++ {
		if _, err := ae.RequestOutput(ctx, nodeID, port); err != nil {
			return Absent(), err
		}
		if err := ae.Wait(ctx); err != nil {
			return Absent(), err
		}

		ae.ctrlMu.Lock()
		busy := ae.inflightN > 0
		dirty := n.Dirty()
		ae.ctrlMu.Unlock()

		if busy {
			// Another caller scheduled more work; that round counts too.
			continue
		}
		if n.State() == StateDisabled {
			return ae.eng.disabledValue(n, port), nil
		}
		if !dirty {
			return n.CachedValue(port), nil
		}
		if lastErr := n.LastError(); lastErr != nil {
			// Quiet but failing. Serve what the cache has.
			return n.CachedValue(port), lastErr
		}
		if !evalAllowed(n) {
			// Manual nodes wait for a trigger.
			return n.CachedValue(port), nil
		}
		// Re-dirtied by an upstream completion; go around again.
	}
	return n.CachedValue(port), n.LastError()
}

// Trigger forces the node to recompute now, bypassing manual mode. If a
// computation is already in flight it is cancelled and exactly one
// fresh run follows it.
func (ae *AsyncEngine) Trigger(ctx context.Context, nodeID string) error {
	n, err := ae.eng.resolve(nodeID)
	if err != nil {
		return err
	}

	ae.ctrlMu.Lock()
	if ae.closed {
		ae.ctrlMu.Unlock()
		return ErrEngineClosed
	}
	ae.markDirtyLocked(ctx, n, "trigger")
	if n.State() != StateDisabled {
		ae.evaluateLocked(ctx, n, map[*Node]struct{}{n: {}})
	}
	jobs := ae.takeDispatch()
	ae.ctrlMu.Unlock()

	ae.enqueue(jobs)
	return nil
}

// MarkDirty flags a node and its downstream consumers as needing
// recomputation. Any of them with a computation in flight has its token
// cancelled and one re-evaluation queued. Returns how many nodes were
// newly marked.
func (ae *AsyncEngine) MarkDirty(ctx context.Context, nodeID, reason string) (int, error) {
	n, err := ae.eng.resolve(nodeID)
	if err != nil {
		return 0, err
	}

	ae.ctrlMu.Lock()
	if ae.closed {
		ae.ctrlMu.Unlock()
		return 0, ErrEngineClosed
	}
	count := ae.markDirtyLocked(ctx, n, reason)
	jobs := ae.takeDispatch()
	ae.ctrlMu.Unlock()

	ae.enqueue(jobs)
	return count, nil
}

// markDirtyLocked runs the dirty walk, cancels in-flight computations
// of marked nodes, and schedules eager re-evaluation when configured.
// Callers must hold ctrlMu.
func (ae *AsyncEngine) markDirtyLocked(ctx context.Context, n *Node, reason string) int {
	marked := ae.eng.graph.MarkDirty(n)
	if len(marked) == 0 {
		// Already dirty, but a repeat signal still supersedes whatever
		// is mid-flight for this node.
		ae.supersede(n)
		return 0
	}
	observability.LogDirty(ae.eng.logger, n.id, reason)
	ae.eng.metrics.RecordDirtyPropagation(ctx, n.id, len(marked))
	for _, m := range marked {
		ae.supersede(m)
		ae.eng.publish(ctx, events.New(events.TypeNodeDirty, m.id,
			events.WithGraph(ae.eng.graph.id),
			events.WithData("reason", reason),
			events.WithData("origin", n.id)))
	}
	if ae.eager {
		for _, m := range marked {
			if m.Dirty() && evalAllowed(m) {
				ae.evaluateLocked(ctx, m, map[*Node]struct{}{m: {}})
			}
		}
	}
	return len(marked)
}

// supersede cancels the in-flight computation of a node whose inputs
// just changed and queues exactly one re-evaluation behind it.
func (ae *AsyncEngine) supersede(n *Node) {
	if rec := ae.inflight[n]; rec != nil {
		rec.token.Cancel()
		rec.pending = true
	}
}

// CancelCompute cancels a node's in-flight computation without queueing
// a replacement. The node stays dirty, so a later pull recomputes it.
func (ae *AsyncEngine) CancelCompute(nodeID string) error {
	n, err := ae.eng.resolve(nodeID)
	if err != nil {
		return err
	}

	ae.ctrlMu.Lock()
	defer ae.ctrlMu.Unlock()
	if rec := ae.inflight[n]; rec != nil {
		rec.token.Cancel()
	}
	return nil
}

// IsComputing reports whether the node has a computation in flight or
// queued.
func (ae *AsyncEngine) IsComputing(nodeID string) bool {
	n, err := ae.eng.resolve(nodeID)
	if err != nil {
		return false
	}
	ae.ctrlMu.Lock()
	defer ae.ctrlMu.Unlock()
	return ae.inflight[n] != nil
}

// SetState transitions a node between normal, disabled, and passthrough
// with the same semantics as Engine.SetState. A transition landing on a
// node mid-computation cancels the worker and rewrites the state the
// node will return to; the no-op check compares against that target, so
// re-setting the state a computing node will come back to stays a no-op.
func (ae *AsyncEngine) SetState(ctx context.Context, nodeID string, to NodeState) error {
	n, err := ae.eng.resolve(nodeID)
	if err != nil {
		return err
	}
	if to == StateComputing {
		return ErrComputingManaged
	}

	ae.ctrlMu.Lock()
	if ae.closed {
		ae.ctrlMu.Unlock()
		return ErrEngineClosed
	}

	inFlight := ae.inflight[n] != nil
	from := n.State()
	if inFlight {
		from = n.restoreTarget()
	}
	if from == to {
		ae.ctrlMu.Unlock()
		return nil
	}

	switch {
	case to == StateDisabled:
		n.snapshotLastValid()
		if inFlight {
			ae.supersede(n)
			n.setRestoreTarget(to)
		} else {
			n.setState(to)
		}
		for _, c := range ae.eng.graph.Consumers(n) {
			ae.markDirtyLocked(ctx, c, "upstream disabled")
		}
	case from == StateDisabled:
		if inFlight {
			n.setRestoreTarget(to)
		} else {
			n.setState(to)
		}
		ae.markDirtyLocked(ctx, n, "node re-enabled")
	default:
		// normal <-> passthrough
		n.clearCache(true)
		if inFlight {
			ae.supersede(n)
			n.setRestoreTarget(to)
		} else {
			n.setState(to)
		}
		ae.markDirtyLocked(ctx, n, "state changed")
	}

	ae.eng.finishStateChange(ctx, n, from, to)
	jobs := ae.takeDispatch()
	ae.ctrlMu.Unlock()

	ae.enqueue(jobs)
	return nil
}

// InvalidateCache drops a node's cached outputs and dirties it together
// with its downstream consumers, as Engine.InvalidateCache does.
func (ae *AsyncEngine) InvalidateCache(ctx context.Context, nodeID string, preserveLastValid bool) error {
	n, err := ae.eng.resolve(nodeID)
	if err != nil {
		return err
	}

	ae.ctrlMu.Lock()
	if ae.closed {
		ae.ctrlMu.Unlock()
		return ErrEngineClosed
	}
	n.clearCache(preserveLastValid)
	ae.eng.publish(ctx, events.New(events.TypeCacheInvalidated, n.id,
		events.WithGraph(ae.eng.graph.id),
		events.WithData("preserve_last_valid", preserveLastValid)))
	ae.markDirtyLocked(ctx, n, "cache invalidated")
	jobs := ae.takeDispatch()
	ae.ctrlMu.Unlock()

	ae.enqueue(jobs)
	return nil
}

// SetParam updates one widget or parameter value and marks the node
// dirty.
func (ae *AsyncEngine) SetParam(ctx context.Context, nodeID, key string, value any) error {
	n, err := ae.eng.resolve(nodeID)
	if err != nil {
		return err
	}

	ae.ctrlMu.Lock()
	if ae.closed {
		ae.ctrlMu.Unlock()
		return ErrEngineClosed
	}
	n.setParam(key, value)
	ae.markDirtyLocked(ctx, n, "param changed: "+key)
	jobs := ae.takeDispatch()
	ae.ctrlMu.Unlock()

	ae.enqueue(jobs)
	return nil
}

// Connect links two ports and dirties the target chain, cancelling any
// in-flight computation it supersedes.
func (ae *AsyncEngine) Connect(ctx context.Context, sourceID, sourcePort, targetID, targetPort string) (*Link, error) {
	ae.ctrlMu.Lock()
	if ae.closed {
		ae.ctrlMu.Unlock()
		return nil, ErrEngineClosed
	}
	l, err := ae.eng.graph.Connect(sourceID, sourcePort, targetID, targetPort, WithoutDirtyMark())
	if err != nil {
		ae.ctrlMu.Unlock()
		return nil, err
	}
	ae.eng.publish(ctx, events.New(events.TypeLinkCreated, targetID,
		events.WithGraph(ae.eng.graph.id),
		events.WithPort(targetPort),
		events.WithData("source_id", sourceID),
		events.WithData("source_port", sourcePort)))
	ae.markDirtyLocked(ctx, l.target.node, "link created")
	jobs := ae.takeDispatch()
	ae.ctrlMu.Unlock()

	ae.enqueue(jobs)
	return l, nil
}

// Disconnect removes a link and dirties the former target.
func (ae *AsyncEngine) Disconnect(ctx context.Context, sourceID, sourcePort, targetID, targetPort string) error {
	ae.ctrlMu.Lock()
	if ae.closed {
		ae.ctrlMu.Unlock()
		return ErrEngineClosed
	}

	in, err := ae.eng.graph.resolvePort(targetID, targetPort, DirInput)
	if err != nil {
		ae.ctrlMu.Unlock()
		return err
	}
	if err := ae.eng.graph.Disconnect(sourceID, sourcePort, targetID, targetPort); err != nil {
		ae.ctrlMu.Unlock()
		return err
	}
	ae.eng.publish(ctx, events.New(events.TypeLinkRemoved, targetID,
		events.WithGraph(ae.eng.graph.id),
		events.WithPort(targetPort),
		events.WithData("source_id", sourceID),
		events.WithData("source_port", sourcePort)))
	ae.markDirtyLocked(ctx, in.node, "link removed")
	jobs := ae.takeDispatch()
	ae.ctrlMu.Unlock()

	ae.enqueue(jobs)
	return nil
}

// Save persists the graph's current structure to a store.
func (ae *AsyncEngine) Save(ctx context.Context, st store.Store) error {
	return ae.eng.Save(ctx, st)
}

// pullLocked is the async pull protocol. It never blocks on a
// computation: dirty evaluable nodes are scheduled and the current
// cached value is served, stale or not. The error return exists to
// satisfy pullFunc and is always nil; failures surface through events.
//
// Callers must hold ctrlMu.
func (ae *AsyncEngine) pullLocked(ctx context.Context, n *Node, port string, visited map[*Node]struct{}) (PortValue, error) {
	if _, seen := visited[n]; seen {
		observability.LogCycle(ae.eng.logger, n.id, port)
		ae.eng.metrics.RecordPull(ctx, n.id, port, true)
		return n.CachedValue(port), nil
	}

	if n.State() == StateDisabled {
		ae.eng.metrics.RecordPull(ctx, n.id, port, true)
		return ae.eng.disabledValue(n, port), nil
	}

	scheduled := false
	if n.Dirty() && ae.inflight[n] == nil && evalAllowed(n) {
		visited[n] = struct{}{}
		ae.evaluateLocked(ctx, n, visited)
		scheduled = true
	}
	ae.eng.metrics.RecordPull(ctx, n.id, port, !scheduled)
	return n.CachedValue(port), nil
}

// evaluateLocked is the async evaluation protocol: inputs are gathered
// on the controller from whatever the caches hold right now, then the
// compute function is handed to the workers. Passthrough nodes and
// nodes without a compute function finish synchronously since there is
// nothing to run in the background. A node already in flight is
// superseded instead of double-dispatched.
//
// Callers must hold ctrlMu; queued jobs land in ae.dispatch and must be
// enqueued by the caller after releasing it.
func (ae *AsyncEngine) evaluateLocked(ctx context.Context, n *Node, visited map[*Node]struct{}) {
	if n.State() == StateDisabled {
		return
	}
	if ae.inflight[n] != nil {
		ae.supersede(n)
		return
	}

	state := n.State()
	inputs, err := ae.eng.gatherWith(ctx, n, visited, ae.pullLocked)
	if err != nil {
		ae.eng.failEvaluation(ctx, n, err, 0)
		return
	}

	if state == StatePassthrough {
		outputs, perr := ae.eng.passthrough(n, inputs)
		if perr != nil {
			ae.eng.failEvaluation(ctx, n, perr, 0)
			return
		}
		ae.eng.commitOutputs(ctx, n, state, outputs, 0, 0)
		return
	}

	if n.compute == nil {
		ae.eng.commitOutputs(ctx, n, state, map[string]PortValue{}, 0, 0)
		return
	}

	evalCtx, span := ae.eng.spans.StartEvalSpan(ctx, n.id)
	observability.LogEvalStart(ae.eng.logger, n.id)

	token := NewCancelToken()
	n.enterComputing()
	ae.inflight[n] = &inflightRecord{
		token:   token,
		span:    span,
		started: time.Now(),
		elapsed: observability.TimedOperation(),
		state:   state,
	}
	ae.addInflightLocked()

	// The job outlives the request that scheduled it; only the token
	// and Close can stop it.
	ae.dispatch = append(ae.dispatch, asyncJob{
		ctx:    context.WithoutCancel(evalCtx),
		node:   n,
		inputs: inputs,
		token:  token,
	})
}

// worker consumes jobs until the engine closes.
func (ae *AsyncEngine) worker() {
	defer ae.wg.Done()
	for {
		select {
		case job := <-ae.jobs:
			ae.runJob(job)
		case <-ae.done:
			return
		}
	}
}

// runJob executes one compute invocation and applies its outcome on the
// controller side.
func (ae *AsyncEngine) runJob(job asyncJob) {
	var results Results
	var err error
	if job.token.Cancelled() {
		err = ErrComputeCancelled
	} else {
		results, err = ae.eng.runCompute(job.ctx, job.node, job.inputs, job.token)
	}

	jobs := ae.complete(job, results, err)
	ae.enqueue(jobs)
}

// complete applies a worker outcome: commit on success, invalidate on
// failure, discard on cancellation with the pre-dispatch state restored
// untouched. A superseded job, one whose token is no longer current, is
// discarded entirely. Exactly one queued re-evaluation is consumed here
// when something changed mid-flight.
func (ae *AsyncEngine) complete(job asyncJob, results Results, err error) []asyncJob {
	ae.ctrlMu.Lock()
	defer ae.ctrlMu.Unlock()

	n := job.node
	rec := ae.inflight[n]
	if rec == nil || rec.token != job.token {
		return nil
	}
	delete(ae.inflight, n)

	cancelled := job.token.Cancelled() || errors.Is(err, ErrComputeCancelled)
	switch {
	case cancelled:
		n.exitComputing()
		observability.LogCancel(ae.eng.logger, n.id)
		ae.eng.metrics.RecordCancellation(job.ctx, n.id)
		ae.eng.spans.EndSpanWithError(rec.span, nil)
		ae.eng.publish(job.ctx, events.New(events.TypeNodeCancelled, n.id,
			events.WithGraph(ae.eng.graph.id)))

	case err != nil:
		n.exitComputing()
		ae.eng.failEvaluation(job.ctx, n, err, time.Since(rec.started))
		ae.eng.spans.EndSpanWithError(rec.span, err)

	default:
		outputs, nerr := normalizeResults(n, results)
		if nerr != nil {
			n.exitComputing()
			ae.eng.failEvaluation(job.ctx, n, nerr, time.Since(rec.started))
			ae.eng.spans.EndSpanWithError(rec.span, nerr)
			break
		}
		n.exitComputing()
		ae.eng.commitOutputs(job.ctx, n, rec.state, outputs, rec.elapsed(), time.Since(rec.started))
		ae.eng.spans.EndSpanWithError(rec.span, nil)
		// The committed values changed this node's outputs, so
		// consumers that already computed from the stale ones must go
		// around again.
		for _, c := range ae.eng.graph.Consumers(n) {
			ae.markDirtyLocked(job.ctx, c, "upstream recomputed")
		}
	}

	if rec.pending && !ae.closed {
		ae.evaluateLocked(job.ctx, n, map[*Node]struct{}{n: {}})
	}

	ae.removeInflightLocked()
	return ae.takeDispatch()
}

// addInflightLocked bumps the in-flight count, opening a fresh idle
// gate when the engine leaves quiescence. Callers must hold ctrlMu.
func (ae *AsyncEngine) addInflightLocked() {
	if ae.inflightN == 0 {
		ae.idle = make(chan struct{})
	}
	ae.inflightN++
}

// removeInflightLocked drops the in-flight count, releasing Wait callers
// when the engine goes quiet. Callers must hold ctrlMu.
func (ae *AsyncEngine) removeInflightLocked() {
	ae.inflightN--
	if ae.inflightN == 0 {
		close(ae.idle)
	}
}

// takeDispatch drains the jobs accumulated under ctrlMu. Callers must
// hold ctrlMu and enqueue the returned jobs after releasing it; sending
// to the queue under the lock could deadlock against workers waiting to
// apply completions.
func (ae *AsyncEngine) takeDispatch() []asyncJob {
	jobs := ae.dispatch
	ae.dispatch = nil
	return jobs
}

// enqueue hands jobs to the workers. Must be called without ctrlMu.
// A full queue spills to a goroutine rather than blocking: workers
// enqueue follow-up jobs from their own completions, and blocking the
// last free worker on its own queue would wedge the pool.
func (ae *AsyncEngine) enqueue(jobs []asyncJob) {
	for _, job := range jobs {
		select {
		case ae.jobs <- job:
		case <-ae.done:
			return
		default:
			go func(j asyncJob) {
				select {
				case ae.jobs <- j:
				case <-ae.done:
				}
			}(job)
		}
	}
}
