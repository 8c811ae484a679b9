package catalog

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/types"
)

// RegisterBuiltins adds the standard node set: constant sources driven
// by a "value" parameter, display and action utilities, float math, and
// list helpers. Port types resolve against the given registry.
func RegisterBuiltins(c *Catalog, reg *types.Registry) error {
	floatT := reg.ByName("float")
	intT := reg.ByName("int")
	stringT := reg.ByName("string")
	listT := reg.ByName("list")
	genericT := reg.ByName("generic")

	defs := []Definition{
		{
			Path:        "basic/float",
			Name:        "Float",
			Description: "Emits a constant floating point value.",
			Keywords:    []string{"number", "constant", "input"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Output("value", floatT).
					Param("value", 0.0).
					Compute(func(ctx dataflow.Context, _ dataflow.Inputs) (dataflow.Results, error) {
						return dataflow.Output(ctx.Config().Float("value", 0)), nil
					})
			},
		},
		{
			Path:        "basic/int",
			Name:        "Integer",
			Description: "Emits a constant integer value.",
			Keywords:    []string{"number", "constant", "input"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Output("value", intT).
					Param("value", 0).
					Compute(func(ctx dataflow.Context, _ dataflow.Inputs) (dataflow.Results, error) {
						return dataflow.Output(ctx.Config().Int("value", 0)), nil
					})
			},
		},
		{
			Path:        "basic/text",
			Name:        "Text",
			Description: "Emits a constant text value.",
			Keywords:    []string{"string", "constant", "input"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Output("text", stringT).
					Param("value", "").
					Compute(func(ctx dataflow.Context, _ dataflow.Inputs) (dataflow.Results, error) {
						return dataflow.Output(ctx.Config().String("value", "")), nil
					})
			},
		},
		{
			Path:        "basic/display",
			Name:        "Display",
			Description: "Renders its input as text for inspection.",
			Keywords:    []string{"output", "print", "show", "debug"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Input("in", genericT).
					Output("text", stringT).
					Compute(func(_ dataflow.Context, in dataflow.Inputs) (dataflow.Results, error) {
						v, ok := in.Get("in").Get()
						if !ok {
							return dataflow.NoOutput(), nil
						}
						return dataflow.Output(types.AsString(v)), nil
					})
			},
		},
		{
			Path:        "basic/action",
			Name:        "Action",
			Description: "Forwards its input only when triggered manually.",
			Keywords:    []string{"button", "trigger", "manual", "gate"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Manual().
					Input("in", genericT).
					Output("out", genericT).
					Compute(func(_ dataflow.Context, in dataflow.Inputs) (dataflow.Results, error) {
						v, ok := in.Get("in").Get()
						if !ok {
							return dataflow.NoOutput(), nil
						}
						return dataflow.Output(v), nil
					})
			},
		},
		{
			Path:        "math/add",
			Name:        "Add",
			Description: "Adds two numbers.",
			Keywords:    []string{"sum", "plus", "arithmetic"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Input("a", floatT).
					Input("b", floatT).
					Output("sum", floatT).
					Compute(func(_ dataflow.Context, in dataflow.Inputs) (dataflow.Results, error) {
						a, okA := in.Float64("a")
						b, okB := in.Float64("b")
						if !okA || !okB {
							return dataflow.NoOutput(), nil
						}
						return dataflow.Output(a + b), nil
					})
			},
		},
		{
			Path:        "math/multiply",
			Name:        "Multiply",
			Description: "Multiplies two numbers.",
			Keywords:    []string{"product", "times", "arithmetic"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Input("a", floatT).
					Input("b", floatT).
					Output("product", floatT).
					Compute(func(_ dataflow.Context, in dataflow.Inputs) (dataflow.Results, error) {
						a, okA := in.Float64("a")
						b, okB := in.Float64("b")
						if !okA || !okB {
							return dataflow.NoOutput(), nil
						}
						return dataflow.Output(a * b), nil
					})
			},
		},
		{
			Path:        "math/scale",
			Name:        "Scale",
			Description: "Multiplies its input by a configurable factor.",
			Keywords:    []string{"gain", "amplify", "arithmetic"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Input("in", floatT).
					Output("out", floatT).
					Param("factor", 1.0).
					Compute(func(ctx dataflow.Context, in dataflow.Inputs) (dataflow.Results, error) {
						v, ok := in.Float64("in")
						if !ok {
							return dataflow.NoOutput(), nil
						}
						return dataflow.Output(v * ctx.Config().Float("factor", 1)), nil
					})
			},
		},
		{
			Path:        "list/range",
			Name:        "Range",
			Description: "Generates a list of integers from start to stop.",
			Keywords:    []string{"sequence", "numbers", "generate"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Output("list", listT).
					Param("start", 0).
					Param("stop", 10).
					Param("step", 1).
					Compute(func(ctx dataflow.Context, _ dataflow.Inputs) (dataflow.Results, error) {
						cfg := ctx.Config()
						start := cfg.Int("start", 0)
						stop := cfg.Int("stop", 10)
						step := cfg.Int("step", 1)
						if step == 0 {
							return dataflow.NoOutput(), errors.New("range step cannot be zero")
						}
						items := make([]any, 0)
						if step > 0 {
							for i := start; i < stop; i += step {
								items = append(items, i)
							}
						} else {
							for i := start; i > stop; i += step {
								items = append(items, i)
							}
						}
						return dataflow.Output(items), nil
					})
			},
		},
		{
			Path:        "list/length",
			Name:        "Length",
			Description: "Counts the items in a list.",
			Keywords:    []string{"count", "size", "len"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Input("list", listT).
					Output("length", intT).
					Compute(func(_ dataflow.Context, in dataflow.Inputs) (dataflow.Results, error) {
						v, ok := in.Get("list").Get()
						if !ok {
							return dataflow.NoOutput(), nil
						}
						items, ok := asList(v)
						if !ok {
							return dataflow.NoOutput(), fmt.Errorf("length expects a list, got %T", v)
						}
						return dataflow.Output(len(items)), nil
					})
			},
		},
		{
			Path:        "list/index",
			Name:        "Index",
			Description: "Picks one item out of a list by position.",
			Keywords:    []string{"get", "item", "element", "pick"},
			Factory: func(id string) *dataflow.NodeBuilder {
				return dataflow.NewNode(id).
					Input("list", listT).
					Output("item", genericT).
					Param("index", 0).
					Compute(func(ctx dataflow.Context, in dataflow.Inputs) (dataflow.Results, error) {
						v, ok := in.Get("list").Get()
						if !ok {
							return dataflow.NoOutput(), nil
						}
						items, ok := asList(v)
						if !ok {
							return dataflow.NoOutput(), fmt.Errorf("index expects a list, got %T", v)
						}
						i := ctx.Config().Int("index", 0)
						if i < 0 || i >= len(items) {
							return dataflow.NoOutput(), fmt.Errorf("index %d out of range for list of %d", i, len(items))
						}
						return dataflow.Output(items[i]), nil
					})
			},
		},
	}

	for _, def := range defs {
		if err := c.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// asList widens the common slice shapes a list port may carry.
func asList(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(items))
		for i, f := range items {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(items))
		for i, n := range items {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}
