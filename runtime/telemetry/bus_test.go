package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusEmitFanOut(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	count := 0
	_, err := bus.Register(ListenerFunc(func(context.Context, Event) { count++ }))
	require.NoError(t, err)

	bus.Emit(ctx, Event{Type: EventParseStart})
	bus.Emit(ctx, Event{Type: EventParseFinish})
	require.Equal(t, 2, count)
}

func TestBusRegisterNil(t *testing.T) {
	bus := NewBus()
	_, err := bus.Register(nil)
	require.Error(t, err)
}

func TestSubscriptionClose(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	count := 0
	sub, err := bus.Register(ListenerFunc(func(context.Context, Event) { count++ }))
	require.NoError(t, err)

	bus.Emit(ctx, Event{Type: EventParseStart})
	require.NoError(t, sub.Close())
	bus.Emit(ctx, Event{Type: EventParseFinish})
	require.Equal(t, 1, count)
	require.Equal(t, 0, bus.Listeners())
}

// TestBusEmitRegistrationOrder guards against a regression to map-iteration
// order: with many listeners registered, Emit must deliver to every one of
// them in the order Register was called, every time.
func TestBusEmitRegistrationOrder(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	const n = 50
	var got []int
	for i := 0; i < n; i++ {
		i := i
		_, err := bus.Register(ListenerFunc(func(context.Context, Event) { got = append(got, i) }))
		require.NoError(t, err)
	}

	bus.Emit(ctx, Event{Type: EventParseStart})

	require.Len(t, got, n)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

// TestBusEmitSkipsClosedSubscriptionsInPlace verifies that closing a
// listener mid-registration order does not shift any other listener's
// position: the remaining listeners still fire in their original order.
func TestBusEmitSkipsClosedSubscriptionsInPlace(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	var got []int
	subs := make([]Subscription, 5)
	for i := 0; i < 5; i++ {
		i := i
		s, err := bus.Register(ListenerFunc(func(context.Context, Event) { got = append(got, i) }))
		require.NoError(t, err)
		subs[i] = s
	}
	require.NoError(t, subs[1].Close())
	require.NoError(t, subs[3].Close())

	bus.Emit(ctx, Event{Type: EventParseStart})

	require.Equal(t, []int{0, 2, 4}, got)
	require.Equal(t, 3, bus.Listeners())
}

func TestBusEmitRecoversPanickingListener(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	_, err := bus.Register(ListenerFunc(func(context.Context, Event) { panic("boom") }))
	require.NoError(t, err)

	var called bool
	_, err = bus.Register(ListenerFunc(func(context.Context, Event) { called = true }))
	require.NoError(t, err)

	require.NotPanics(t, func() { bus.Emit(ctx, Event{Type: EventParseStart}) })
	require.True(t, called)
}
