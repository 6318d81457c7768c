package pulse

import (
	"context"
	"encoding/json"
	"fmt"

	streamopts "goa.design/pulse/streaming/options"

	clientspulse "github.com/fieldforge/extract/features/telemetry/pulse/clients/pulse"
	"github.com/fieldforge/extract/runtime/telemetry"
)

type (
	// EnvelopeDecoder converts raw payloads read from Pulse into telemetry events.
	// Custom decoders can be provided to handle non-standard envelope formats.
	EnvelopeDecoder func([]byte) (telemetry.Event, error)

	// SubscriberOptions configures a Pulse-backed subscriber.
	SubscriberOptions struct {
		// Client is the Pulse client used to consume events. Required.
		Client clientspulse.Client
		// SinkName identifies the Pulse consumer group. Defaults to "extract_telemetry_subscriber".
		SinkName string
		// Buffer specifies the event channel capacity. Defaults to 64.
		Buffer int
		// Decoder deserializes event payloads. Defaults to the built-in JSON decoder.
		Decoder EnvelopeDecoder
	}

	// Subscriber consumes Pulse streams and re-emits telemetry events. It
	// wraps a Pulse sink (consumer group) and decodes incoming payloads into
	// telemetry.Event values.
	Subscriber struct {
		client clientspulse.Client
		buffer int
		name   string
		decode EnvelopeDecoder
	}
)

// NewSubscriber constructs a Pulse-backed subscriber. The Client field in opts
// is required; SinkName, Buffer, and Decoder default to sensible values if not
// provided (see SubscriberOptions field documentation).
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("pulse client is required")
	}
	name := opts.SinkName
	if name == "" {
		name = "extract_telemetry_subscriber"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	decoder := opts.Decoder
	if decoder == nil {
		decoder = decodeEnvelope
	}
	return &Subscriber{
		client: opts.Client,
		buffer: buffer,
		name:   name,
		decode: decoder,
	}, nil
}

// Subscribe opens a Pulse sink on the given stream ID and returns channels for
// events and errors. It spawns a goroutine that consumes from the sink, decodes
// payloads, and emits telemetry events. The returned cancel function stops
// consumption, closes the sink, and closes both channels.
func (s *Subscriber) Subscribe(
	ctx context.Context,
	streamID string,
	opts ...streamopts.Sink,
) (<-chan telemetry.Event, <-chan error, context.CancelFunc, error) {
	str, err := s.client.Stream(streamID)
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	events := make(chan telemetry.Event, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go s.consume(runCtx, sink, events, errs)
	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return events, errs, cancelFunc, nil
}

// ForwardTo subscribes to streamID and emits every decoded event onto bus
// until ctx is canceled or the stream errors. It is the inverse of
// registering a Publisher: Publisher fans a local Bus out to Pulse, ForwardTo
// fans a Pulse stream back into a local Bus in another process.
func (s *Subscriber) ForwardTo(ctx context.Context, bus telemetry.Bus, streamID string, opts ...streamopts.Sink) error {
	events, errs, cancel, err := s.Subscribe(ctx, streamID, opts...)
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			return err
		case event, ok := <-events:
			if !ok {
				return nil
			}
			bus.Emit(ctx, event)
		}
	}
}

// consume reads events from the Pulse sink channel, decodes them, and emits them
// on the out channel. It acks each event after successful emission. Closes both
// channels when ctx is canceled or when the sink channel closes. Sends errors
// on the errs channel if decoding or acking fails, then returns.
func (s *Subscriber) consume(ctx context.Context, sink clientspulse.Sink, out chan<- telemetry.Event, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			decoded, err := s.decode(evt.Payload)
			if err != nil {
				errs <- fmt.Errorf("pulse decode payload: %w", err)
				return
			}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
			if ackErr := sink.Ack(ctx, evt); ackErr != nil {
				errs <- fmt.Errorf("pulse ack: %w", ackErr)
				return
			}
		}
	}
}

// decodeEnvelope deserializes the default JSON envelope format into a
// telemetry.Event.
func decodeEnvelope(payload []byte) (telemetry.Event, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return telemetry.Event{}, err
	}
	return telemetry.Event{
		Type:      telemetry.EventType(env.Type),
		RequestID: env.RequestID,
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	}, nil
}
