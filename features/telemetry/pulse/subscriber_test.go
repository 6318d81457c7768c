package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/pulse/streaming"

	"github.com/fieldforge/extract/runtime/telemetry"
)

func TestSubscriber_SubscribeEmitsDecodedEvents(t *testing.T) {
	t.Parallel()

	str := &fakeStream{}
	cli := &fakeClient{streams: map[string]*fakeStream{"telemetry/req-1": str}}

	sub, err := NewSubscriber(SubscriberOptions{Client: cli, Buffer: 2})
	require.NoError(t, err)

	events, errs, cancel, err := sub.Subscribe(t.Context(), "telemetry/req-1")
	require.NoError(t, err)
	defer cancel()

	now := time.Now().UTC()
	payload, err := json.Marshal(Envelope{
		Type:      string(telemetry.EventParseFinish),
		RequestID: "req-1",
		Timestamp: now,
		Payload:   map[string]any{"success": true},
	})
	require.NoError(t, err)

	require.NotNil(t, str.sink)
	str.sink.events <- &streaming.Event{ID: "1-0", Payload: payload}
	close(str.sink.events)

	evt := <-events
	require.Equal(t, telemetry.EventParseFinish, evt.Type)
	require.Equal(t, "req-1", evt.RequestID)
	require.Equal(t, true, evt.Payload["success"])
	require.Empty(t, errs)
	require.Len(t, str.sink.acked, 1)
}

func TestSubscriber_DecodeErrorIsReportedOnErrs(t *testing.T) {
	t.Parallel()

	str := &fakeStream{}
	cli := &fakeClient{streams: map[string]*fakeStream{"telemetry/req-1": str}}

	sub, err := NewSubscriber(SubscriberOptions{
		Client: cli,
		Decoder: func([]byte) (telemetry.Event, error) {
			return telemetry.Event{}, errors.New("decode error")
		},
	})
	require.NoError(t, err)

	events, errs, cancel, err := sub.Subscribe(t.Context(), "telemetry/req-1")
	require.NoError(t, err)
	defer cancel()

	require.NotNil(t, str.sink)
	str.sink.events <- &streaming.Event{Payload: []byte("{}")}
	close(str.sink.events)

	require.Empty(t, events)
	require.EqualError(t, <-errs, "pulse decode payload: decode error")
}

func TestSubscriber_ForwardToEmitsOntoLocalBus(t *testing.T) {
	t.Parallel()

	str := &fakeStream{}
	cli := &fakeClient{streams: map[string]*fakeStream{"telemetry/req-1": str}}

	sub, err := NewSubscriber(SubscriberOptions{Client: cli})
	require.NoError(t, err)

	bus := telemetry.NewBus()
	received := make(chan telemetry.Event, 1)
	_, err = bus.Register(telemetry.ListenerFunc(func(_ context.Context, event telemetry.Event) {
		received <- event
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- sub.ForwardTo(ctx, bus, "telemetry/req-1") }()

	payload, err := json.Marshal(Envelope{Type: string(telemetry.EventFieldResolved), RequestID: "req-1"})
	require.NoError(t, err)

	// Subscribe() inside ForwardTo races with this goroutine opening the
	// sink; retry until the sink exists.
	require.Eventually(t, func() bool { return str.sink != nil }, time.Second, time.Millisecond)
	str.sink.events <- &streaming.Event{Payload: payload}

	select {
	case evt := <-received:
		require.Equal(t, telemetry.EventFieldResolved, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded event")
	}

	cancel()
	<-done
}
