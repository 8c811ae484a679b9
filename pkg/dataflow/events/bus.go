package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("events: bus is closed")

// Config configures bus behavior.
type Config struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 256
	BufferSize int

	// NonBlocking makes Publish drop events when a subscriber's buffer
	// is full instead of waiting. Default: false (blocking).
	NonBlocking bool

	// OnDrop is called when an event is dropped (non-blocking mode).
	OnDrop func(evt Event, subscriberID int64)

	// OnError is called when a handler returns an error.
	OnError func(evt Event, subscriberID int64, err error)
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	BufferSize: 256,
}

// Bus is an in-process pub/sub fan-out for lifecycle events.
// Each subscription gets its own goroutine and buffered channel.
type Bus struct {
	config Config

	mu        sync.RWMutex
	byType    map[string]map[int64]*Subscription
	wildcards map[int64]*Subscription

	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
}

// NewBus creates an event bus.
func NewBus(config Config) *Bus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig.BufferSize
	}
	return &Bus{
		config:    config,
		byType:    make(map[string]map[int64]*Subscription),
		wildcards: make(map[int64]*Subscription),
		closeCh:   make(chan struct{}),
	}
}

// Subscription is an active registration on the bus.
type Subscription struct {
	id      int64
	types   []string // empty = all types
	handler Handler
	events  chan Event
	paused  atomic.Bool
	done    chan struct{}
	bus     *Bus
	once    sync.Once
}

// Publish delivers an event to every matching subscription.
// In blocking mode it waits for buffer space, honoring ctx.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.RLock()
	subs := b.matching(evt.Type)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.paused.Load() {
			continue
		}

		if b.config.NonBlocking {
			select {
			case sub.events <- evt:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt, sub.id)
				}
			}
			continue
		}

		select {
		case sub.events <- evt:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return ErrBusClosed
		}
	}
	return nil
}

// Subscribe registers a handler for the given event types.
// Returns nil if the bus is closed.
func (b *Bus) Subscribe(types []string, handler Handler) *Subscription {
	return b.subscribe(types, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) *Subscription {
	return b.subscribe(nil, handler)
}

func (b *Bus) subscribe(types []string, handler Handler) *Subscription {
	if b.closed.Load() || handler == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id:      b.nextID.Add(1),
		types:   types,
		handler: handler,
		events:  make(chan Event, b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}

	if len(types) == 0 {
		b.wildcards[sub.id] = sub
	} else {
		for _, t := range types {
			if b.byType[t] == nil {
				b.byType[t] = make(map[int64]*Subscription)
			}
			b.byType[t][sub.id] = sub
		}
	}

	go sub.process()
	return sub
}

// matching returns subscriptions for an event type. Caller holds mu.
func (b *Bus) matching(eventType string) []*Subscription {
	subs := make([]*Subscription, 0, len(b.wildcards)+len(b.byType[eventType]))
	for _, sub := range b.byType[eventType] {
		subs = append(subs, sub)
	}
	for _, sub := range b.wildcards {
		subs = append(subs, sub)
	}
	return subs
}

// Close shuts down the bus and all subscriptions. Idempotent.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.wildcards {
		sub.stop()
	}
	for _, byID := range b.byType {
		for _, sub := range byID {
			sub.stop()
		}
	}
	return nil
}

func (s *Subscription) process() {
	for {
		select {
		case evt := <-s.events:
			if s.paused.Load() {
				continue
			}
			if err := s.handler(evt); err != nil && s.bus.config.OnError != nil {
				s.bus.config.OnError(evt, s.id, err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Unsubscribe removes the subscription and stops its goroutine.
// Idempotent.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.bus.mu.Lock()
	delete(s.bus.wildcards, s.id)
	for _, t := range s.types {
		if byID, ok := s.bus.byType[t]; ok {
			delete(byID, s.id)
		}
	}
	s.bus.mu.Unlock()

	s.stop()
}

// Pause temporarily stops delivery. Events published while paused are
// skipped for this subscription, not queued.
func (s *Subscription) Pause() {
	if s != nil {
		s.paused.Store(true)
	}
}

// Resume continues delivery after Pause.
func (s *Subscription) Resume() {
	if s != nil {
		s.paused.Store(false)
	}
}

// IsPaused reports whether the subscription is paused.
func (s *Subscription) IsPaused() bool {
	return s != nil && s.paused.Load()
}
