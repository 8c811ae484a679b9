package dataflow

import (
	"github.com/randalmurphal/dataflow/pkg/dataflow/types"
)

// ComputeFunc is the user-supplied computation for a node. It receives the
// gathered input values and returns the node's outputs.
//
// Returning an error leaves the node dirty with its previous cached values
// marked invalid; the engine recovers and continues evaluating the rest of
// the graph. Long computations should poll ctx.Cancelled() and return
// early when it reports true.
type ComputeFunc func(ctx Context, in Inputs) (Results, error)

// Inputs is the read-only view of input port values handed to a compute
// function. Every declared input port has an entry: linked ports carry the
// upstream value, unlinked ports carry the configured default or absent.
type Inputs struct {
	byName map[string]PortValue
	order  []string
}

// newInputs builds an Inputs view preserving port declaration order.
func newInputs(order []string, byName map[string]PortValue) Inputs {
	return Inputs{byName: byName, order: order}
}

// Get returns the value on the named input port. Unknown names return absent.
func (in Inputs) Get(name string) PortValue {
	return in.byName[name]
}

// Has reports whether the named input port carries a present value.
func (in Inputs) Has(name string) bool {
	return in.byName[name].IsPresent()
}

// Names returns the input port names in declaration order.
func (in Inputs) Names() []string {
	out := make([]string, len(in.order))
	copy(out, in.order)
	return out
}

// Len returns the number of input ports.
func (in Inputs) Len() int {
	return len(in.order)
}

// Float64 returns the named input coerced to float64. ok is false when the
// value is missing or not numeric.
func (in Inputs) Float64(name string) (float64, bool) {
	v, present := in.byName[name].Get()
	if !present {
		return 0, false
	}
	f, err := types.AsFloat64(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int64 returns the named input coerced to int64. ok is false when the
// value is missing or not an integer.
func (in Inputs) Int64(name string) (int64, bool) {
	v, present := in.byName[name].Get()
	if !present {
		return 0, false
	}
	i, err := types.AsInt64(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

// String returns the named input rendered as a string. ok is false when
// the value is missing.
func (in Inputs) String(name string) (string, bool) {
	v, present := in.byName[name].Get()
	if !present {
		return "", false
	}
	return types.AsString(v), true
}

// Bool returns the named input under truthiness rules. ok is false when
// the value is missing.
func (in Inputs) Bool(name string) (bool, bool) {
	v, present := in.byName[name].Get()
	if !present {
		return false, false
	}
	return types.IsTruthy(v), true
}

// resultKind discriminates the shapes a compute function can return.
type resultKind uint8

const (
	resultEmpty resultKind = iota
	resultMap
	resultSingle
)

// Results is the tagged return value of a compute function: a map of
// values keyed by output port name, a single bare value for one-output
// nodes, or nothing at all.
type Results struct {
	kind   resultKind
	values map[string]any
	single any
}

// Outputs returns results carrying one value per named output port.
// Ports left out of the map produce absent.
func Outputs(values map[string]any) Results {
	return Results{kind: resultMap, values: values}
}

// Output returns results carrying a single bare value. Valid only for
// nodes declaring exactly one output port; the engine reports a
// configuration error otherwise.
func Output(v any) Results {
	return Results{kind: resultSingle, single: v}
}

// NoOutput returns empty results: every output port produces absent.
func NoOutput() Results {
	return Results{kind: resultEmpty}
}
