package dataflow

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/dataflow/pkg/dataflow/events"
	"github.com/randalmurphal/dataflow/pkg/dataflow/types"
)

// Helper node constructors used across tests.

// quietLogger discards output so test logs stay readable.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// constSource builds a one-output node emitting v and counting its runs.
func constSource(reg *types.Registry, id string, v any, runs *atomic.Int64) *Node {
	return NewNode(id).
		Output("value", reg.ByName("float")).
		Compute(func(ctx Context, in Inputs) (Results, error) {
			if runs != nil {
				runs.Add(1)
			}
			return Output(v), nil
		}).
		Build()
}

// paramSource builds a node emitting its "value" parameter, so tests can
// change the output through Engine.SetParam.
func paramSource(reg *types.Registry, id string, initial float64) *Node {
	return NewNode(id).
		Param("value", initial).
		Output("value", reg.ByName("float")).
		Compute(func(ctx Context, in Inputs) (Results, error) {
			return Output(ctx.Config().Float("value", initial)), nil
		}).
		Build()
}

// doubler builds a node with one float input "in" and one output "out"
// carrying twice the input. Absent input produces absent output.
func doubler(reg *types.Registry, id string, runs *atomic.Int64) *Node {
	return NewNode(id).
		Input("in", reg.ByName("float")).
		Output("out", reg.ByName("float")).
		Compute(func(ctx Context, in Inputs) (Results, error) {
			if runs != nil {
				runs.Add(1)
			}
			v, ok := in.Float64("in")
			if !ok {
				return NoOutput(), nil
			}
			return Output(v * 2), nil
		}).
		Build()
}

// failer builds a node whose compute always returns err.
func failer(reg *types.Registry, id string, err error) *Node {
	return NewNode(id).
		Input("in", reg.ByName("float")).
		Output("out", reg.ByName("float")).
		Compute(func(ctx Context, in Inputs) (Results, error) {
			return Results{}, err
		}).
		Build()
}

// panicker builds a node whose compute panics with value.
func panicker(reg *types.Registry, id string, value any) *Node {
	return NewNode(id).
		Output("out", reg.ByName("float")).
		Compute(func(ctx Context, in Inputs) (Results, error) {
			panic(value)
		}).
		Build()
}

// passNode builds a passthrough-shaped node: declared ports, no compute.
func passNode(reg *types.Registry, id string, inputs, outputs []string) *Node {
	b := NewNode(id)
	for _, name := range inputs {
		b.Input(name, reg.ByName("float"))
	}
	for _, name := range outputs {
		b.Output(name, reg.ByName("float"))
	}
	return b.Build()
}

// eventRecorder collects published events for assertion. Bus delivery is
// asynchronous, so tests pair it with require.Eventually.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(eventType string) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i], true
		}
	}
	return events.Event{}, false
}

// recordedBus returns a bus with a recorder subscribed to everything.
// Callers own closing the bus.
func recordedBus() (*events.Bus, *eventRecorder) {
	bus := events.NewBus(events.Config{BufferSize: 64})
	rec := &eventRecorder{}
	bus.SubscribeAll(rec.record)
	return bus, rec
}

func testCtx() context.Context {
	return context.Background()
}
