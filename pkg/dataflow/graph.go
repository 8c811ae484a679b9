package dataflow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/randalmurphal/dataflow/pkg/dataflow/store"
	"github.com/randalmurphal/dataflow/pkg/dataflow/types"
)

// Graph holds nodes and the links between their ports. It is the pure
// structural layer: linking maintains the invariants (one incoming link
// per input, compatible endpoint types, no self-links) and dirty
// propagation walks the topology, while evaluation policy lives in the
// engine.
//
// All methods are safe for concurrent use. Cycles are permitted; the
// dirty walk and the pull protocol both terminate on them.
type Graph struct {
	id       string
	registry *types.Registry

	mu    sync.RWMutex
	name  string
	nodes map[string]*Node
	order []string
}

// NewGraph creates an empty graph with a generated identifier.
// The registry decides port type compatibility for every link; it
// cannot be nil.
func NewGraph(name string, reg *types.Registry) *Graph {
	return NewGraphWithID(uuid.New().String(), name, reg)
}

// NewGraphWithID creates an empty graph with a caller-chosen identifier.
// Used when restoring a persisted document that must keep its ID.
func NewGraphWithID(id, name string, reg *types.Registry) *Graph {
	if reg == nil {
		panic("dataflow: type registry cannot be nil")
	}
	if id == "" {
		panic("dataflow: graph ID cannot be empty")
	}
	return &Graph{
		id:       id,
		registry: reg,
		name:     name,
		nodes:    make(map[string]*Node),
	}
}

// ID returns the graph identifier.
func (g *Graph) ID() string {
	return g.id
}

// Name returns the graph's display name.
func (g *Graph) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// SetName changes the graph's display name.
func (g *Graph) SetName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name = name
}

// Registry returns the type registry linking decisions consult.
func (g *Graph) Registry() *types.Registry {
	return g.registry
}

// AddNode places a node in the graph. The node ID must be unique.
func (g *Graph) AddNode(n *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[n.id]; exists {
		return fmt.Errorf("%w: %s", ErrNodeExists, n.id)
	}
	g.nodes[n.id] = n
	g.order = append(g.order, n.id)
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// MustNode returns the node with the given ID, panicking when absent.
// Intended for tests and examples where the node is known to exist.
func (g *Graph) MustNode(id string) *Node {
	n, ok := g.Node(id)
	if !ok {
		panic(fmt.Sprintf("dataflow: node not found: %s", id))
	}
	return n
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// RemoveNode deletes a node and tears down every link touching it.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	for _, p := range n.inputs {
		for _, l := range append([]*Link(nil), p.links...) {
			g.removeLinkLocked(l)
		}
	}
	for _, p := range n.outputs {
		for _, l := range append([]*Link(nil), p.links...) {
			g.removeLinkLocked(l)
		}
	}
	delete(g.nodes, id)
	for i, existing := range g.order {
		if existing == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// LinkOption adjusts how Connect creates a link.
type LinkOption func(*linkOptions)

type linkOptions struct {
	skipValidation bool
	skipDirty      bool
}

// WithoutValidation skips the compatibility check. Used by trusted
// callers such as document restore, where the link was validated when it
// was first created.
func WithoutValidation() LinkOption {
	return func(o *linkOptions) {
		o.skipValidation = true
	}
}

// WithoutDirtyMark skips marking the target node dirty. Used during
// restore, where every node starts dirty anyway.
func WithoutDirtyMark() LinkOption {
	return func(o *linkOptions) {
		o.skipDirty = true
	}
}

// Connect links a source node's output port to a target node's input
// port. An input port holds at most one incoming link, so an existing
// link into the target port is torn down first. On success the target
// node and everything downstream of it are marked dirty, unless
// WithoutDirtyMark is given.
func (g *Graph) Connect(sourceID, sourcePort, targetID, targetPort string, opts ...LinkOption) (*Link, error) {
	out, err := g.resolvePort(sourceID, sourcePort, DirOutput)
	if err != nil {
		return nil, err
	}
	in, err := g.resolvePort(targetID, targetPort, DirInput)
	if err != nil {
		return nil, err
	}
	return g.ConnectPorts(out, in, opts...)
}

// ConnectPorts links two ports given in either order; the output and
// input ends are sorted out with OrderPorts.
func (g *Graph) ConnectPorts(a, b *Port, opts ...LinkOption) (*Link, error) {
	var o linkOptions
	for _, opt := range opts {
		opt(&o)
	}

	out, in, err := OrderPorts(a, b)
	if err != nil {
		return nil, g.linkError(a, b, err)
	}

	g.mu.Lock()
	if !o.skipValidation {
		if err := portsCompatible(g.registry, out, in); err != nil {
			g.mu.Unlock()
			return nil, g.linkError(out, in, err)
		}
	}
	if evicted := in.incoming(); evicted != nil {
		g.removeLinkLocked(evicted)
	}
	l := &Link{source: out, target: in}
	out.attach(l)
	in.attach(l)
	g.mu.Unlock()

	if !o.skipDirty {
		g.MarkDirty(in.node)
	}
	return l, nil
}

// Disconnect removes the link between the named ports. Removing a link
// that does not exist is a no-op.
func (g *Graph) Disconnect(sourceID, sourcePort, targetID, targetPort string) error {
	out, err := g.resolvePort(sourceID, sourcePort, DirOutput)
	if err != nil {
		return err
	}
	in, err := g.resolvePort(targetID, targetPort, DirInput)
	if err != nil {
		return err
	}

	g.mu.Lock()
	var found *Link
	for _, l := range out.links {
		if l.connects(out, in) {
			found = l
			break
		}
	}
	if found != nil {
		g.removeLinkLocked(found)
	}
	g.mu.Unlock()

	if found != nil {
		g.MarkDirty(in.node)
	}
	return nil
}

// RemoveLink removes a specific link. Removing a link twice is a no-op.
func (g *Graph) RemoveLink(l *Link) {
	g.mu.Lock()
	attached := false
	for _, existing := range l.source.links {
		if existing == l {
			attached = true
			break
		}
	}
	if attached {
		g.removeLinkLocked(l)
	}
	g.mu.Unlock()

	if attached {
		g.MarkDirty(l.target.node)
	}
}

// removeLinkLocked detaches a link from both endpoints.
// Callers must hold the graph write lock.
func (g *Graph) removeLinkLocked(l *Link) {
	l.source.detach(l)
	l.target.detach(l)
}

// Links returns every link in the graph, grouped by source node in
// insertion order.
func (g *Graph) Links() []*Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Link
	for _, id := range g.order {
		for _, p := range g.nodes[id].outputs {
			out = append(out, p.links...)
		}
	}
	return out
}

// MarkDirty raises the dirty flag on a node and walks it through every
// downstream consumer. Nodes already dirty stop the walk, which bounds
// the cost of repeated marking and terminates the walk in cyclic graphs.
// It returns the nodes newly marked, origin first, in visit order.
func (g *Graph) MarkDirty(n *Node) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var marked []*Node
	g.markDirtyLocked(n, &marked)
	return marked
}

func (g *Graph) markDirtyLocked(n *Node, marked *[]*Node) {
	if !n.setDirty() {
		return
	}
	*marked = append(*marked, n)
	for _, p := range n.outputs {
		for _, l := range p.links {
			g.markDirtyLocked(l.target.node, marked)
		}
	}
}

// Consumers returns the immediate downstream nodes reachable through one
// output link, deduplicated, in port declaration order. This is the walk
// state-change notification uses: unlike the dirty walk it is not gated
// on flags, so consumers hear about a transition even when already dirty.
func (g *Graph) Consumers(n *Node) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[*Node]struct{})
	var out []*Node
	for _, p := range n.outputs {
		for _, l := range p.links {
			target := l.target.node
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			out = append(out, target)
		}
	}
	return out
}

// resolvePort finds a port by node ID, port name, and direction.
func (g *Graph) resolvePort(nodeID, portName string, dir Direction) (*Port, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	var p *Port
	if dir == DirInput {
		p, ok = n.Input(portName)
	} else {
		p, ok = n.Output(portName)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s (%s)", ErrPortNotFound, nodeID, portName, dir)
	}
	return p, nil
}

// linkError wraps err with both endpoint identities.
func (g *Graph) linkError(a, b *Port, err error) error {
	return &LinkError{
		SourceID:   a.node.id,
		SourcePort: a.name,
		TargetID:   b.node.id,
		TargetPort: b.name,
		Err:        err,
	}
}

// Validate checks every link's endpoint types against the registry and
// reports all violations at once. Useful after bulk restore with
// validation bypassed.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var errs []error
	for _, id := range g.order {
		for _, p := range g.nodes[id].outputs {
			for _, l := range p.links {
				if !g.registry.Compatible(l.source.typ.ID, l.target.typ.ID) {
					errs = append(errs, fmt.Errorf("link %s.%s -> %s.%s: %w",
						l.source.node.id, l.source.name,
						l.target.node.id, l.target.name,
						ErrIncompatibleTypes))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Document captures the graph's persistent structure: node snapshots and
// link records, in insertion order. Cached values are deliberately not
// persisted; a restored graph recomputes on first pull.
func (g *Graph) Document() *store.Document {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := &store.Document{
		GraphID: g.id,
		Name:    g.name,
		Nodes:   make([]store.NodeSnapshot, 0, len(g.order)),
	}
	for _, id := range g.order {
		doc.Nodes = append(doc.Nodes, g.nodes[id].Snapshot())
	}
	for _, id := range g.order {
		for _, p := range g.nodes[id].outputs {
			for _, l := range p.links {
				doc.Links = append(doc.Links, store.LinkRecord{
					SourceID:   l.source.node.id,
					SourcePort: l.source.name,
					TargetID:   l.target.node.id,
					TargetPort: l.target.name,
				})
			}
		}
	}
	return doc
}
