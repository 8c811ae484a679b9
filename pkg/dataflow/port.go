package dataflow

import (
	"github.com/randalmurphal/dataflow/pkg/dataflow/types"
)

// Direction distinguishes input ports from output ports.
type Direction int

const (
	// DirInput marks a port that consumes values.
	DirInput Direction = iota

	// DirOutput marks a port that produces values.
	DirOutput
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirInput:
		return "input"
	case DirOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Port is a typed connection point on a node. Ports are created through
// the node builder and are identified by name, unique per direction.
//
// An input port accepts at most one incoming link; an output port fans
// out to any number of consumers. Link lists are guarded by the graph
// lock, not the port itself.
type Port struct {
	name  string
	typ   *types.PortType
	dir   Direction
	node  *Node
	links []*Link
}

// Name returns the port name.
func (p *Port) Name() string {
	return p.name
}

// Type returns the port's value type.
func (p *Port) Type() *types.PortType {
	return p.typ
}

// Direction reports whether this is an input or output port.
func (p *Port) Direction() Direction {
	return p.dir
}

// Node returns the node that owns this port.
func (p *Port) Node() *Node {
	return p.node
}

// incoming returns the single incoming link of an input port, or nil.
// Callers must hold the graph lock.
func (p *Port) incoming() *Link {
	if p.dir != DirInput || len(p.links) == 0 {
		return nil
	}
	return p.links[0]
}

// attach records a link on the port. Callers must hold the graph lock.
func (p *Port) attach(l *Link) {
	p.links = append(p.links, l)
}

// detach removes a link from the port. Callers must hold the graph lock.
func (p *Port) detach(l *Link) {
	for i, existing := range p.links {
		if existing == l {
			p.links = append(p.links[:i], p.links[i+1:]...)
			return
		}
	}
}

// OrderPorts arranges two ports into (output, input) regardless of the
// order they were given in. It returns ErrSameDirection when both ports
// are inputs or both are outputs.
func OrderPorts(a, b *Port) (out, in *Port, err error) {
	switch {
	case a.dir == DirOutput && b.dir == DirInput:
		return a, b, nil
	case a.dir == DirInput && b.dir == DirOutput:
		return b, a, nil
	default:
		return nil, nil, ErrSameDirection
	}
}
