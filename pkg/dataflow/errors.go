// Package dataflow provides a pull-based dataflow evaluation engine for node graphs.
package dataflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph construction and linking.
var (
	// ErrNodeExists indicates AddNode() was called with an ID already in the graph.
	ErrNodeExists = errors.New("node already exists")

	// ErrNodeNotFound indicates an operation references a node ID not in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrPortNotFound indicates an operation references a port name the node does not declare.
	ErrPortNotFound = errors.New("port not found")

	// ErrSameDirection indicates both link endpoints are inputs or both are outputs.
	ErrSameDirection = errors.New("ports have the same direction")

	// ErrSameNode indicates a link was attempted between two ports of one node.
	ErrSameNode = errors.New("ports belong to the same node")

	// ErrIncompatibleTypes indicates the link endpoints have incompatible port types.
	ErrIncompatibleTypes = errors.New("incompatible port types")

	// ErrDuplicateLink indicates a link already connects this exact pair of ports.
	ErrDuplicateLink = errors.New("link already exists")
)

// Sentinel errors for evaluation and state control.
var (
	// ErrNilGraph indicates an engine was constructed without a graph.
	ErrNilGraph = errors.New("graph cannot be nil")

	// ErrNodeComputing indicates a state change was requested while a computation is in flight.
	ErrNodeComputing = errors.New("node is computing")

	// ErrComputingManaged indicates an attempt to set the computing state
	// directly. It is entered and left by the engine around dispatch.
	ErrComputingManaged = errors.New("computing state is engine-managed")

	// ErrEngineClosed indicates an operation was attempted after Close().
	ErrEngineClosed = errors.New("engine closed")

	// ErrComputeCancelled indicates an in-flight computation observed its
	// cancellation token and stopped early. It is an outcome, not a failure:
	// the node's cache is left exactly as it was before the computation began.
	ErrComputeCancelled = errors.New("compute cancelled")
)

// ComputeError wraps an error returned by a node's compute function.
// Evaluation recovers from it: the node keeps its previous cached values
// marked invalid, stays dirty, and the rest of the graph keeps evaluating.
type ComputeError struct {
	// NodeID is the identifier of the node whose compute failed.
	NodeID string
	// Err is the underlying error from the compute function.
	Err error
}

// Error implements the error interface.
func (e *ComputeError) Error() string {
	return fmt.Sprintf("node %s: compute: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ComputeError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a structural misuse of the node API, such as
// a compute function returning a bare value when the node declares more
// than one output port.
type ConfigurationError struct {
	// NodeID is the identifier of the misconfigured node.
	NodeID string
	// Reason describes the misuse.
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("node %s: configuration: %s", e.NodeID, e.Reason)
}

// PanicError captures panic information from a compute function.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// LinkError wraps an error from link creation with endpoint context.
type LinkError struct {
	// SourceID and SourcePort identify the upstream endpoint.
	SourceID   string
	SourcePort string
	// TargetID and TargetPort identify the downstream endpoint.
	TargetID   string
	TargetPort string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s.%s -> %s.%s: %v", e.SourceID, e.SourcePort, e.TargetID, e.TargetPort, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *LinkError) Unwrap() error {
	return e.Err
}
