package dataflow

import "fmt"

// NodeState represents the lifecycle state of a node.
type NodeState int

const (
	// StateNormal is the default state: the node computes via its compute
	// function when pulled while dirty.
	StateNormal NodeState = iota

	// StateDisabled suspends computation. The node serves values according
	// to its DisabledBehavior and never recomputes until re-enabled.
	StateDisabled

	// StatePassthrough bypasses the compute function and forwards input
	// values directly to output ports.
	StatePassthrough

	// StateComputing marks a node whose computation is in flight on a
	// background worker. It is engine-managed and cannot be set directly.
	StateComputing
)

// String returns the state name.
func (s NodeState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateDisabled:
		return "disabled"
	case StatePassthrough:
		return "passthrough"
	case StateComputing:
		return "computing"
	default:
		return "unknown"
	}
}

// ParseNodeState converts a persisted state name back to a NodeState.
// The computing state is transient and never persisted, so it is rejected.
func ParseNodeState(s string) (NodeState, error) {
	switch s {
	case "normal", "":
		return StateNormal, nil
	case "disabled":
		return StateDisabled, nil
	case "passthrough":
		return StatePassthrough, nil
	default:
		return StateNormal, fmt.Errorf("unknown node state %q", s)
	}
}

// DisabledBehavior controls what a disabled node serves when pulled.
type DisabledBehavior int

const (
	// UseLastValid serves the snapshot taken when the node was disabled.
	// Ports with no valid snapshot serve absent.
	UseLastValid DisabledBehavior = iota

	// UseNone serves absent on every output port.
	UseNone

	// UseDefault serves the per-port configured default, or absent for
	// ports without one.
	UseDefault

	// PropagateDisabled serves a disabled marker identifying the node,
	// letting downstream consumers react to the gap explicitly.
	PropagateDisabled
)

// String returns the behavior name.
func (b DisabledBehavior) String() string {
	switch b {
	case UseLastValid:
		return "use_last_valid"
	case UseNone:
		return "use_none"
	case UseDefault:
		return "use_default"
	case PropagateDisabled:
		return "propagate"
	default:
		return "unknown"
	}
}

// ParseDisabledBehavior converts a persisted behavior name back to a
// DisabledBehavior. The empty string maps to UseLastValid, the default.
func ParseDisabledBehavior(s string) (DisabledBehavior, error) {
	switch s {
	case "use_last_valid", "":
		return UseLastValid, nil
	case "use_none":
		return UseNone, nil
	case "use_default":
		return UseDefault, nil
	case "propagate":
		return PropagateDisabled, nil
	default:
		return UseLastValid, fmt.Errorf("unknown disabled behavior %q", s)
	}
}
