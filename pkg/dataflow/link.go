package dataflow

import (
	"github.com/randalmurphal/dataflow/pkg/dataflow/types"
)

// Link is a directed connection from an output port to an input port.
// Links are created through Graph.Connect and torn down through
// Graph.Disconnect; a Link value stays valid until disconnected.
type Link struct {
	source *Port
	target *Port
}

// Source returns the upstream output port.
func (l *Link) Source() *Port {
	return l.source
}

// Target returns the downstream input port.
func (l *Link) Target() *Port {
	return l.target
}

// connects reports whether the link joins exactly this pair of ports.
func (l *Link) connects(out, in *Port) bool {
	return l.source == out && l.target == in
}

// portsCompatible decides whether out can feed in, applying the rules in
// order: the ports must belong to different nodes, must run in opposite
// directions, must not already be linked to each other, and their types
// must be identical or convertible through the registry.
//
// Callers must hold the graph lock.
func portsCompatible(reg *types.Registry, out, in *Port) error {
	if out.node == in.node {
		return ErrSameNode
	}
	if out.dir == in.dir {
		return ErrSameDirection
	}
	for _, l := range out.links {
		if l.connects(out, in) {
			return ErrDuplicateLink
		}
	}
	if !reg.Compatible(out.typ.ID, in.typ.ID) {
		return ErrIncompatibleTypes
	}
	return nil
}
