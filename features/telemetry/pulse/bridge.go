package pulse

import (
	"context"
	"errors"

	clientspulse "github.com/fieldforge/extract/features/telemetry/pulse/clients/pulse"
	"github.com/fieldforge/extract/runtime/telemetry"
)

// Bridge wires a caller-provided Pulse client into a telemetry.Bus. It owns
// a publishing Publisher (registered on the local bus) and can spawn
// subscribers that reuse the same client, so a service does not need to
// manage multiple Pulse connections for telemetry alone.
type Bridge struct {
	publisher *Publisher
	client    clientspulse.Client
	sub       telemetry.Subscription
}

// BridgeOptions configures the helper returned by NewBridge.
type BridgeOptions struct {
	// Client is the Pulse client used for both publishing and subscribing.
	// Required, typically built via features/telemetry/pulse/clients/pulse.
	Client clientspulse.Client
	// Bus is the local telemetry bus whose events are published to Pulse.
	// Required.
	Bus telemetry.Bus
	// Publisher holds optional overrides for the publishing side (stream ID
	// derivation, marshaling, error reporting). Leave zero-valued for defaults.
	Publisher PublisherOptions
}

// NewBridge registers a Pulse-backed Publisher on bus and returns a helper
// that can later construct subscribers sharing the same Pulse client.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("telemetry bus is required")
	}
	pubOpts := opts.Publisher
	pubOpts.Client = opts.Client
	publisher, err := NewPublisher(pubOpts)
	if err != nil {
		return nil, err
	}
	sub, err := opts.Bus.Register(publisher)
	if err != nil {
		return nil, err
	}
	return &Bridge{publisher: publisher, client: opts.Client, sub: sub}, nil
}

// NewSubscriber constructs a Pulse-backed subscriber that reuses the
// bridge's client.
func (b *Bridge) NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	opts.Client = b.client
	return NewSubscriber(opts)
}

// Close unregisters the publisher from its bus and shuts it down, closing
// the underlying Pulse client in turn.
func (b *Bridge) Close(ctx context.Context) error {
	if err := b.sub.Close(); err != nil {
		return err
	}
	return b.publisher.Close(ctx)
}
