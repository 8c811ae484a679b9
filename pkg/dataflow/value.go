package dataflow

import "fmt"

// valueKind discriminates the three shapes a port value can take.
type valueKind uint8

const (
	kindAbsent valueKind = iota
	kindPresent
	kindDisabled
)

// PortValue is the value observed on a port: a present value, absent,
// or a disabled marker identifying the upstream node that declined to
// produce output. Using one tagged type keeps "no value" distinct from
// "a value that happens to be nil" throughout the engine.
type PortValue struct {
	kind   valueKind
	value  any
	nodeID string
	port   string
}

// Value wraps v as a present port value.
func Value(v any) PortValue {
	return PortValue{kind: kindPresent, value: v}
}

// Absent returns the port value signalling that no value is available.
func Absent() PortValue {
	return PortValue{kind: kindAbsent}
}

// DisabledValue returns the marker a disabled node emits under the
// PropagateDisabled policy. It records which node and port produced it
// so downstream consumers can attribute the gap.
func DisabledValue(nodeID, port string) PortValue {
	return PortValue{kind: kindDisabled, nodeID: nodeID, port: port}
}

// IsPresent reports whether the value carries actual data.
func (v PortValue) IsPresent() bool {
	return v.kind == kindPresent
}

// IsAbsent reports whether no value is available.
func (v PortValue) IsAbsent() bool {
	return v.kind == kindAbsent
}

// IsDisabled reports whether this is a disabled marker from an upstream node.
func (v PortValue) IsDisabled() bool {
	return v.kind == kindDisabled
}

// Get returns the wrapped value and true when present, or nil and false
// for absent values and disabled markers.
func (v PortValue) Get() (any, bool) {
	if v.kind != kindPresent {
		return nil, false
	}
	return v.value, true
}

// Any returns the wrapped value, or nil when the value is not present.
func (v PortValue) Any() any {
	return v.value
}

// DisabledSource returns the node and port that emitted a disabled marker.
// ok is false when the value is not a disabled marker.
func (v PortValue) DisabledSource() (nodeID, port string, ok bool) {
	if v.kind != kindDisabled {
		return "", "", false
	}
	return v.nodeID, v.port, true
}

// String implements fmt.Stringer for logs and test failures.
func (v PortValue) String() string {
	switch v.kind {
	case kindPresent:
		return fmt.Sprintf("value(%v)", v.value)
	case kindDisabled:
		return fmt.Sprintf("disabled(%s.%s)", v.nodeID, v.port)
	default:
		return "absent"
	}
}
