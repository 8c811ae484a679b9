package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by the evaluation engines.
const (
	TypeNodeAdded        = "node.added"
	TypeNodeRemoved      = "node.removed"
	TypeNodeEvaluated    = "node.evaluated"
	TypeNodeEvalFailed   = "node.eval_failed"
	TypeNodeStateChanged = "node.state_changed"
	TypeNodeDirty        = "node.dirty"
	TypeNodeProgress     = "node.progress"
	TypeNodeCancelled    = "node.cancelled"
	TypeLinkCreated      = "link.created"
	TypeLinkRemoved      = "link.removed"
	TypeCacheInvalidated = "cache.invalidated"
)

// Event is a single lifecycle notification. Events are values; the
// Data map must not be mutated after publishing.
type Event struct {
	// ID uniquely identifies this event instance.
	ID string

	// Type is one of the Type* constants.
	Type string

	// GraphID identifies the owning graph, when known.
	GraphID string

	// NodeID identifies the node the event concerns.
	NodeID string

	// Port names the involved port, when the event is port-scoped.
	Port string

	// Time is when the event was created.
	Time time.Time

	// Err carries the failure for error-flavored events.
	Err error

	// Data holds event-specific payload ("progress", "reason", ...).
	Data map[string]any
}

// Option customizes a new event.
type Option func(*Event)

// WithGraph sets the owning graph ID.
func WithGraph(graphID string) Option {
	return func(e *Event) { e.GraphID = graphID }
}

// WithPort scopes the event to a port.
func WithPort(port string) Option {
	return func(e *Event) { e.Port = port }
}

// WithError attaches a failure.
func WithError(err error) Option {
	return func(e *Event) { e.Err = err }
}

// WithData adds one payload entry.
func WithData(key string, value any) Option {
	return func(e *Event) {
		if e.Data == nil {
			e.Data = make(map[string]any)
		}
		e.Data[key] = value
	}
}

// New creates an event with a fresh ID and timestamp.
func New(eventType, nodeID string, opts ...Option) Event {
	e := Event{
		ID:     uuid.New().String(),
		Type:   eventType,
		NodeID: nodeID,
		Time:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Handler processes one event. Returning an error routes the event to
// the bus's OnError callback; it does not stop delivery to others.
type Handler func(evt Event) error
