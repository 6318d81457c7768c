// Package pulse fans a telemetry.Bus out across processes over Pulse
// streams. Publisher implements telemetry.Listener and forwards every event
// it receives onto a Pulse stream; Subscriber consumes that stream in a
// remote process and re-emits the decoded events onto a local Bus.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fieldforge/extract/features/telemetry/pulse/clients/pulse"
	"github.com/fieldforge/extract/runtime/telemetry"
)

type (
	// PublisherOptions configures the Pulse publisher.
	PublisherOptions struct {
		// Client is the Pulse client used to publish events. Required.
		Client pulse.Client
		// StreamID derives the target Pulse stream from an event. Defaults to
		// "telemetry/<RequestID>", or "telemetry/unscoped" when RequestID is empty.
		StreamID func(telemetry.Event) (string, error)
		// MarshalEnvelope allows overriding the envelope serialization (primarily for tests).
		MarshalEnvelope func(Envelope) ([]byte, error)
		// OnPublishError, when set, is invoked whenever a publish attempt fails.
		// HandleEvent never returns an error (it implements telemetry.Listener),
		// so this is the only way a caller observes publish failures.
		OnPublishError func(context.Context, telemetry.Event, error)
	}

	// Publisher forwards telemetry events onto Pulse streams. It implements
	// telemetry.Listener so it can be registered directly on a Bus.
	Publisher struct {
		client pulse.Client
		opts   publisherOptions
	}

	publisherOptions struct {
		streamID        func(telemetry.Event) (string, error)
		marshalEnvelope func(Envelope) ([]byte, error)
		onPublishError  func(context.Context, telemetry.Event, error)
	}

	// Envelope wraps a telemetry event for transmission over Pulse streams.
	Envelope struct {
		Type      string         `json:"type"`
		RequestID string         `json:"request_id,omitempty"`
		Timestamp time.Time      `json:"timestamp"`
		Payload   map[string]any `json:"payload,omitempty"`
	}
)

// NewPublisher constructs a Pulse-backed telemetry publisher. The Client
// field in opts is required; StreamID and MarshalEnvelope default to the
// built-in implementations if not provided.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	cfg := publisherOptions{
		streamID:        defaultStreamID,
		marshalEnvelope: defaultMarshal,
		onPublishError:  opts.OnPublishError,
	}
	if opts.StreamID != nil {
		cfg.streamID = opts.StreamID
	}
	if opts.MarshalEnvelope != nil {
		cfg.marshalEnvelope = opts.MarshalEnvelope
	}
	return &Publisher{client: opts.Client, opts: cfg}, nil
}

// HandleEvent implements telemetry.Listener. Publish failures are reported
// via OnPublishError, if configured, rather than propagated.
func (p *Publisher) HandleEvent(ctx context.Context, event telemetry.Event) {
	if err := p.publish(ctx, event); err != nil {
		if cb := p.opts.onPublishError; cb != nil {
			cb(ctx, event, err)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, event telemetry.Event) error {
	streamID, err := p.opts.streamID(event)
	if err != nil {
		return err
	}
	handle, err := p.client.Stream(streamID)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:      string(event.Type),
		RequestID: event.RequestID,
		Timestamp: event.Timestamp,
		Payload:   event.Payload,
	}
	payload, err := p.opts.marshalEnvelope(env)
	if err != nil {
		return err
	}
	_, err = handle.Add(ctx, env.Type, payload)
	return err
}

// Close releases resources owned by the publisher. Delegates to the
// underlying Pulse client, which may or may not close the Redis connection
// depending on the client implementation.
func (p *Publisher) Close(ctx context.Context) error {
	return p.client.Close(ctx)
}

// defaultStreamID derives the Pulse stream name from the event's RequestID.
func defaultStreamID(event telemetry.Event) (string, error) {
	if event.RequestID == "" {
		return "telemetry/unscoped", nil
	}
	return fmt.Sprintf("telemetry/%s", event.RequestID), nil
}

// defaultMarshal serializes an envelope to JSON.
func defaultMarshal(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
