package events_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/dataflow/pkg/dataflow/events"
)

// waitFor polls until check passes or the deadline hits.
func waitFor(t *testing.T, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBusDeliversByType(t *testing.T) {
	bus := events.NewBus(events.Config{BufferSize: 10})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.Subscribe([]string{events.TypeNodeEvaluated}, func(evt events.Event) error {
		received.Add(1)
		return nil
	})
	defer sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), events.New(events.TypeNodeEvaluated, "n1")))
	waitFor(t, func() bool { return received.Load() == 1 })

	// A non-matching type is not delivered.
	require.NoError(t, bus.Publish(context.Background(), events.New(events.TypeNodeDirty, "n1")))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}

func TestBusSubscribeAll(t *testing.T) {
	bus := events.NewBus(events.Config{BufferSize: 10})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.SubscribeAll(func(evt events.Event) error {
		received.Add(1)
		return nil
	})
	defer sub.Unsubscribe()

	bus.Publish(context.Background(), events.New(events.TypeNodeEvaluated, "n1"))
	bus.Publish(context.Background(), events.New(events.TypeNodeDirty, "n2"))
	bus.Publish(context.Background(), events.New(events.TypeLinkCreated, "n3"))

	waitFor(t, func() bool { return received.Load() == 3 })
}

func TestBusPauseResume(t *testing.T) {
	bus := events.NewBus(events.Config{BufferSize: 10})
	defer bus.Close()

	var received atomic.Int32
	sub := bus.SubscribeAll(func(evt events.Event) error {
		received.Add(1)
		return nil
	})
	defer sub.Unsubscribe()

	sub.Pause()
	assert.True(t, sub.IsPaused())

	bus.Publish(context.Background(), events.New(events.TypeNodeDirty, "n1"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), received.Load())

	sub.Resume()
	bus.Publish(context.Background(), events.New(events.TypeNodeDirty, "n1"))
	waitFor(t, func() bool { return received.Load() == 1 })
}

func TestBusNonBlockingDrops(t *testing.T) {
	var dropped atomic.Int32
	bus := events.NewBus(events.Config{
		BufferSize:  1,
		NonBlocking: true,
		OnDrop: func(evt events.Event, subscriberID int64) {
			dropped.Add(1)
		},
	})
	defer bus.Close()

	block := make(chan struct{})
	sub := bus.SubscribeAll(func(evt events.Event) error {
		<-block
		return nil
	})
	defer sub.Unsubscribe()

	// First event occupies the handler, second fills the buffer,
	// anything after that must drop.
	for range 5 {
		bus.Publish(context.Background(), events.New(events.TypeNodeProgress, "n1"))
	}
	waitFor(t, func() bool { return dropped.Load() >= 1 })
	close(block)
}

func TestBusOnError(t *testing.T) {
	var handlerErrs atomic.Int32
	bus := events.NewBus(events.Config{
		BufferSize: 4,
		OnError: func(evt events.Event, subscriberID int64, err error) {
			handlerErrs.Add(1)
		},
	})
	defer bus.Close()

	sub := bus.SubscribeAll(func(evt events.Event) error {
		return errors.New("handler failed")
	})
	defer sub.Unsubscribe()

	bus.Publish(context.Background(), events.New(events.TypeNodeEvalFailed, "n1"))
	waitFor(t, func() bool { return handlerErrs.Load() == 1 })
}

func TestBusClose(t *testing.T) {
	bus := events.NewBus(events.Config{})

	sub := bus.SubscribeAll(func(evt events.Event) error { return nil })
	require.NotNil(t, sub)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "close is idempotent")

	err := bus.Publish(context.Background(), events.New(events.TypeNodeDirty, "n1"))
	assert.ErrorIs(t, err, events.ErrBusClosed)

	assert.Nil(t, bus.SubscribeAll(func(evt events.Event) error { return nil }))
}

func TestUnsubscribeIdempotent(t *testing.T) {
	bus := events.NewBus(events.Config{})
	defer bus.Close()

	sub := bus.Subscribe([]string{events.TypeNodeEvaluated}, func(evt events.Event) error { return nil })
	sub.Unsubscribe()
	sub.Unsubscribe()

	var nilSub *events.Subscription
	nilSub.Unsubscribe()
	assert.False(t, nilSub.IsPaused())
}

func TestEventOptions(t *testing.T) {
	cause := errors.New("boom")
	evt := events.New(events.TypeNodeEvalFailed, "n1",
		events.WithGraph("g1"),
		events.WithPort("out"),
		events.WithError(cause),
		events.WithData("attempt", 2),
	)

	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.Time.IsZero())
	assert.Equal(t, "g1", evt.GraphID)
	assert.Equal(t, "out", evt.Port)
	assert.Equal(t, cause, evt.Err)
	assert.Equal(t, 2, evt.Data["attempt"])
}
