package dataflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/randalmurphal/dataflow/pkg/dataflow/config"
	"github.com/randalmurphal/dataflow/pkg/dataflow/store"
	"github.com/randalmurphal/dataflow/pkg/dataflow/types"
)

// cacheEntry is one cached output value with its provenance: validity,
// computation time, and the state the node was in when the value was
// produced.
type cacheEntry struct {
	value       PortValue
	valid       bool
	computedAt  time.Time
	sourceState NodeState
}

// Node is a unit of computation in a graph. It owns typed input and
// output ports, a compute function, and an output cache with a dirty
// flag driving lazy re-evaluation.
//
// Identity fields (ID, ports, compute function) are immutable after
// Build. Runtime fields (state, dirty flag, cache) are guarded by an
// internal lock and safe to read from any goroutine; they are mutated
// only by the engine.
type Node struct {
	id       string
	name     string
	typePath string
	inputs   []*Port
	outputs  []*Port
	compute  ComputeFunc

	// onUpstreamState, when set, is called by the engine's notification
	// walk whenever an immediate upstream node changes state.
	onUpstreamState func(upstream *Node, from, to NodeState)

	// snapshotExtras and restoreExtras carry opaque widget state through
	// graph documents. Both are immutable after Build, like compute.
	snapshotExtras func() map[string]any
	restoreExtras  func(extras map[string]any) error

	mu           sync.RWMutex
	state        NodeState
	preState     NodeState // state to restore after computing
	behavior     DisabledBehavior
	manual       bool
	dirty        bool
	computing    bool
	cache        map[string]cacheEntry
	lastValid    map[string]PortValue
	portDefaults map[string]any
	params       map[string]any
	position     [2]float64
	progress     float64
	lastErr      error
}

// ID returns the node identifier.
func (n *Node) ID() string {
	return n.id
}

// Name returns the display name, falling back to the ID when unset.
func (n *Node) Name() string {
	if n.name == "" {
		return n.id
	}
	return n.name
}

// TypePath returns the catalog path this node was instantiated from,
// such as "math/add". Empty for hand-built nodes.
func (n *Node) TypePath() string {
	return n.typePath
}

// State returns the node's current lifecycle state.
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Behavior returns the node's disabled-output policy.
func (n *Node) Behavior() DisabledBehavior {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.behavior
}

// SetBehavior changes the disabled-output policy. It takes effect on the
// next pull; it does not touch the cache or the dirty flag.
func (n *Node) SetBehavior(b DisabledBehavior) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.behavior = b
}

// Manual reports whether the node recomputes only on an explicit trigger.
func (n *Node) Manual() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.manual
}

// SetManual switches manual mode. A manual node still accumulates dirt
// from upstream changes but waits for Engine.Trigger to recompute.
func (n *Node) SetManual(manual bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.manual = manual
}

// Dirty reports whether the node's cached outputs are out of date.
func (n *Node) Dirty() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dirty
}

// Computing reports whether a computation for this node is in flight.
func (n *Node) Computing() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.computing
}

// Progress returns the percentage last reported by an in-flight computation.
func (n *Node) Progress() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.progress
}

// Inputs returns the input ports in declaration order.
func (n *Node) Inputs() []*Port {
	out := make([]*Port, len(n.inputs))
	copy(out, n.inputs)
	return out
}

// Outputs returns the output ports in declaration order.
func (n *Node) Outputs() []*Port {
	out := make([]*Port, len(n.outputs))
	copy(out, n.outputs)
	return out
}

// Input returns the named input port.
func (n *Node) Input(name string) (*Port, bool) {
	for _, p := range n.inputs {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// Output returns the named output port.
func (n *Node) Output(name string) (*Port, bool) {
	for _, p := range n.outputs {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

// CachedValue returns the cached value on the named output port, or
// absent when nothing has been cached. It never computes.
func (n *Node) CachedValue(port string) PortValue {
	n.mu.RLock()
	defer n.mu.RUnlock()
	entry, ok := n.cache[port]
	if !ok {
		return Absent()
	}
	return entry.value
}

// OutputValid reports whether the named output port has a cached value
// that is still marked valid.
func (n *Node) OutputValid(port string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	entry, ok := n.cache[port]
	return ok && entry.valid
}

// CachedAt returns when the named output port was last computed.
// The zero time means nothing has been cached.
func (n *Node) CachedAt(port string) time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cache[port].computedAt
}

// LastValid returns the last-known-good value snapshotted for the named
// output port, or absent when none was recorded.
func (n *Node) LastValid(port string) PortValue {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.lastValid[port]
	if !ok {
		return Absent()
	}
	return v
}

// PortDefault returns the configured fallback value for the named port.
func (n *Node) PortDefault(port string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.portDefaults[port]
	return v, ok
}

// SetPortDefault configures the fallback value for the named port. It is
// served for unlinked inputs and, under the UseDefault policy, for the
// outputs of a disabled node.
func (n *Node) SetPortDefault(port string, v any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.portDefaults == nil {
		n.portDefaults = make(map[string]any)
	}
	n.portDefaults[port] = v
}

// Params returns a copy of the node's widget and parameter values.
func (n *Node) Params() config.Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]any, len(n.params))
	for k, v := range n.params {
		out[k] = v
	}
	return config.New(out)
}

// Param returns one parameter value.
func (n *Node) Param(key string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.params[key]
	return v, ok
}

// setParam stores one parameter value. Dirty marking is the engine's job.
func (n *Node) setParam(key string, v any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.params == nil {
		n.params = make(map[string]any)
	}
	n.params[key] = v
}

// Position returns the node's editor canvas position.
func (n *Node) Position() [2]float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.position
}

// SetPosition moves the node on the editor canvas. Layout does not
// affect evaluation, so no dirt is raised.
func (n *Node) SetPosition(x, y float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.position = [2]float64{x, y}
}

// setDirty raises the dirty flag. It returns false when the flag was
// already set, which both bounds propagation cost and terminates the
// dirty walk in cyclic graphs.
func (n *Node) setDirty() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dirty {
		return false
	}
	n.dirty = true
	return true
}

// clearDirty lowers the dirty flag.
func (n *Node) clearDirty() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dirty = false
}

// setComputing flips the in-flight flag.
func (n *Node) setComputing(computing bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.computing = computing
	if computing {
		n.progress = 0
	}
}

// setProgress records a progress report from an in-flight computation.
func (n *Node) setProgress(percent float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = percent
}

// LastError returns the error from the node's most recent evaluation,
// or nil after a successful one. Cancelled computations leave it alone.
func (n *Node) LastError() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastErr
}

// setLastErr records the outcome of an evaluation attempt.
func (n *Node) setLastErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastErr = err
}

// commitCache atomically replaces the cache with freshly computed
// entries, lowers the dirty flag, and copies the new present values into
// last-known-good storage. The old cache map is never mutated, so
// concurrent readers see either the complete old generation or the
// complete new one.
func (n *Node) commitCache(entries map[string]cacheEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cache = entries
	n.dirty = false
	if n.lastValid == nil {
		n.lastValid = make(map[string]PortValue, len(entries))
	}
	for port, entry := range entries {
		if entry.valid && entry.value.IsPresent() {
			n.lastValid[port] = entry.value
		}
	}
}

// invalidateCache marks every cached entry invalid while preserving the
// values, letting the UI keep showing the last result it saw. The dirty
// flag is left alone.
func (n *Node) invalidateCache() {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := make(map[string]cacheEntry, len(n.cache))
	for port, entry := range n.cache {
		entry.valid = false
		next[port] = entry
	}
	n.cache = next
}

// clearCache drops every cached entry. When preserveLastValid is false
// the last-known-good snapshot goes with it.
func (n *Node) clearCache(preserveLastValid bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cache = make(map[string]cacheEntry)
	if !preserveLastValid {
		n.lastValid = make(map[string]PortValue)
	}
}

// snapshotLastValid copies currently-valid cached outputs into
// last-known-good storage. Called at the moment a node is disabled.
func (n *Node) snapshotLastValid() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastValid == nil {
		n.lastValid = make(map[string]PortValue)
	}
	for port, entry := range n.cache {
		if entry.valid && entry.value.IsPresent() {
			n.lastValid[port] = entry.value
		}
	}
}

// setState records a new lifecycle state. Transition policy is the
// engine's job; this only stores the value.
func (n *Node) setState(s NodeState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = s
}

// enterComputing moves the node into the computing state, remembering
// the state to restore when the in-flight work finishes.
func (n *Node) enterComputing() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.preState = n.state
	n.state = StateComputing
	n.computing = true
	n.progress = 0
}

// exitComputing restores the remembered state and lowers the in-flight
// flag. The restore target may have been rewritten by a state change
// that arrived mid-flight.
func (n *Node) exitComputing() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = n.preState
	n.computing = false
}

// restoreTarget returns the state an in-flight node will return to.
func (n *Node) restoreTarget() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.preState
}

// setRestoreTarget rewrites the state an in-flight node will return to.
// Used when a state change arrives while a worker is computing.
func (n *Node) setRestoreTarget(s NodeState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.preState = s
}

// Snapshot captures the node's persistent fields for a graph document.
// The computing state is transient: a node snapshotted mid-flight
// records the state it will return to.
func (n *Node) Snapshot() store.NodeSnapshot {
	var extras map[string]any
	if n.snapshotExtras != nil {
		extras = n.snapshotExtras()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	state := n.state
	if state == StateComputing {
		state = n.preState
	}

	snap := store.NodeSnapshot{
		ID:               n.id,
		Type:             n.typePath,
		Name:             n.name,
		State:            state.String(),
		DisabledBehavior: n.behavior.String(),
		Manual:           n.manual,
		Position:         n.position,
	}
	if len(n.portDefaults) > 0 {
		snap.PortDefaults = make(map[string]any, len(n.portDefaults))
		for k, v := range n.portDefaults {
			snap.PortDefaults[k] = v
		}
	}
	if len(n.params) > 0 {
		snap.Config = make(map[string]any, len(n.params))
		for k, v := range n.params {
			snap.Config[k] = v
		}
	}
	if len(extras) > 0 {
		snap.Extras = extras
	}
	return snap
}

// RestoreSnapshot applies persisted fields from a graph document. The
// node comes back dirty with an empty cache; values are recomputed on
// the next pull rather than trusted from disk.
func (n *Node) RestoreSnapshot(snap store.NodeSnapshot) error {
	state, err := ParseNodeState(snap.State)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.id, err)
	}
	behavior, err := ParseDisabledBehavior(snap.DisabledBehavior)
	if err != nil {
		return fmt.Errorf("node %s: %w", n.id, err)
	}

	n.mu.Lock()
	n.name = snap.Name
	n.state = state
	n.behavior = behavior
	n.manual = snap.Manual
	n.position = snap.Position
	n.dirty = true
	if len(snap.PortDefaults) > 0 {
		n.portDefaults = make(map[string]any, len(snap.PortDefaults))
		for k, v := range snap.PortDefaults {
			n.portDefaults[k] = v
		}
	}
	if len(snap.Config) > 0 {
		n.params = make(map[string]any, len(snap.Config))
		for k, v := range snap.Config {
			n.params[k] = v
		}
	}
	n.mu.Unlock()

	if n.restoreExtras != nil && len(snap.Extras) > 0 {
		if err := n.restoreExtras(snap.Extras); err != nil {
			return fmt.Errorf("node %s: restore extras: %w", n.id, err)
		}
	}
	return nil
}

// NodeBuilder assembles a Node. Obtain one from NewNode, chain port and
// option declarations, then call Build.
//
// Builder misuse (empty names, duplicate ports) panics: these are
// programming errors in node definitions, not runtime conditions.
//
// Example:
//
//	add := dataflow.NewNode("add").
//	    Input("a", num).
//	    Input("b", num).
//	    Output("sum", num).
//	    Compute(addFunc).
//	    Build()
type NodeBuilder struct {
	node *Node
}

// NewNode starts building a node with the given identifier.
func NewNode(id string) *NodeBuilder {
	if id == "" {
		panic("dataflow: node ID cannot be empty")
	}
	return &NodeBuilder{
		node: &Node{
			id:        id,
			state:     StateNormal,
			behavior:  UseLastValid,
			dirty:     true,
			cache:     make(map[string]cacheEntry),
			lastValid: make(map[string]PortValue),
		},
	}
}

// Name sets the display name.
func (b *NodeBuilder) Name(name string) *NodeBuilder {
	b.node.name = name
	return b
}

// TypePath records the catalog path the node was instantiated from.
func (b *NodeBuilder) TypePath(path string) *NodeBuilder {
	b.node.typePath = path
	return b
}

// Input declares an input port. Port names are unique per direction;
// declaration order matters for passthrough mapping.
func (b *NodeBuilder) Input(name string, typ *types.PortType) *NodeBuilder {
	b.addPort(name, typ, DirInput)
	return b
}

// Output declares an output port.
func (b *NodeBuilder) Output(name string, typ *types.PortType) *NodeBuilder {
	b.addPort(name, typ, DirOutput)
	return b
}

func (b *NodeBuilder) addPort(name string, typ *types.PortType, dir Direction) {
	if name == "" {
		panic("dataflow: port name cannot be empty")
	}
	if typ == nil {
		panic(fmt.Sprintf("dataflow: port %s has nil type", name))
	}
	ports := &b.node.inputs
	if dir == DirOutput {
		ports = &b.node.outputs
	}
	for _, p := range *ports {
		if p.name == name {
			panic(fmt.Sprintf("dataflow: duplicate %s port: %s", dir, name))
		}
	}
	*ports = append(*ports, &Port{name: name, typ: typ, dir: dir, node: b.node})
}

// Default configures a fallback value for the named port. Checked
// against declared ports at Build time.
func (b *NodeBuilder) Default(port string, v any) *NodeBuilder {
	if b.node.portDefaults == nil {
		b.node.portDefaults = make(map[string]any)
	}
	b.node.portDefaults[port] = v
	return b
}

// Compute sets the node's computation. Panics on nil; nodes without a
// computation simply omit the call and produce absent on every output.
func (b *NodeBuilder) Compute(fn ComputeFunc) *NodeBuilder {
	if fn == nil {
		panic("dataflow: compute function cannot be nil")
	}
	b.node.compute = fn
	return b
}

// Manual makes the node recompute only on an explicit Engine.Trigger.
func (b *NodeBuilder) Manual() *NodeBuilder {
	b.node.manual = true
	return b
}

// OnUpstreamStateChange registers a callback invoked when an immediate
// upstream node changes state, regardless of this node's dirty flag.
// UIs use it to grey out widgets when their source is disabled.
func (b *NodeBuilder) OnUpstreamStateChange(fn func(upstream *Node, from, to NodeState)) *NodeBuilder {
	b.node.onUpstreamState = fn
	return b
}

// OnSnapshot registers a hook contributing opaque widget state to the
// node's saved snapshot. The returned map lands verbatim in the
// document's extras field.
func (b *NodeBuilder) OnSnapshot(fn func() map[string]any) *NodeBuilder {
	b.node.snapshotExtras = fn
	return b
}

// OnRestore registers a hook handed the extras a snapshot hook saved,
// when the node is rebuilt from a document.
func (b *NodeBuilder) OnRestore(fn func(extras map[string]any) error) *NodeBuilder {
	b.node.restoreExtras = fn
	return b
}

// DisabledBehavior sets the disabled-output policy.
func (b *NodeBuilder) DisabledBehavior(behavior DisabledBehavior) *NodeBuilder {
	b.node.behavior = behavior
	return b
}

// Param sets one widget or parameter value.
func (b *NodeBuilder) Param(key string, v any) *NodeBuilder {
	if b.node.params == nil {
		b.node.params = make(map[string]any)
	}
	b.node.params[key] = v
	return b
}

// Build finalizes the node. A new node is born dirty so its first pull
// computes real values.
func (b *NodeBuilder) Build() *Node {
	n := b.node
	for port := range n.portDefaults {
		if !b.hasPort(port) {
			panic(fmt.Sprintf("dataflow: default for unknown port: %s", port))
		}
	}
	return n
}

func (b *NodeBuilder) hasPort(name string) bool {
	for _, p := range b.node.inputs {
		if p.name == name {
			return true
		}
	}
	for _, p := range b.node.outputs {
		if p.name == name {
			return true
		}
	}
	return false
}
