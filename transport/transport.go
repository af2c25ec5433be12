// Package transport provides the message-delivery interfaces the ingestion
// engine consumes, and their implementations.
//
// The engine itself makes no delivery guarantees: at-least-once semantics,
// redelivery and per-entity ordering are transport concerns. Consumers may
// deliver concurrently; the engine's only shared mutable state is protected
// elsewhere, so handlers can run in parallel.
//
// Implementations:
//   - pubsub: Google Cloud Pub/Sub (production)
//   - kafka: Kafka via consumer groups
//   - channel: in-process channels for tests
package transport

import (
	"context"
	"errors"
)

// Transport errors
var (
	ErrClosed = errors.New("transport closed")
)

// Message is one delivered message. The handler must settle every message
// exactly once with Ack or Nack; the transport drives redelivery from
// that decision.
type Message interface {
	// ID returns the transport-assigned message identifier.
	ID() string
	// Data returns the raw message body.
	Data() []byte
	// Attributes returns optional delivery metadata.
	Attributes() map[string]string
	// Ack acknowledges successful processing.
	Ack()
	// Nack signals failure; the message will be redelivered.
	Nack()
}

// Handler processes one delivered message and settles it.
type Handler func(ctx context.Context, msg Message)

// Consumer delivers messages to a handler until the context is cancelled.
type Consumer interface {
	// Receive blocks, invoking the handler for each message, possibly
	// concurrently, until ctx is cancelled or delivery fails.
	Receive(ctx context.Context, h Handler) error

	// Close releases the consumer's resources.
	Close() error
}

// Publisher publishes messages. The ordering key groups messages of one
// logical entity so transports that support ordered delivery preserve
// their relative order.
type Publisher interface {
	// Publish sends one message and waits for the send to be confirmed.
	Publish(ctx context.Context, data []byte, orderingKey string, attrs map[string]string) error

	// Close flushes and releases the publisher's resources.
	Close() error
}
