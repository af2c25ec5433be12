// Package dlq provides dead-letter storage for events the pipeline
// permanently rejects.
//
// A rejected event (contract violation, unknown event type, malformed
// body) cannot succeed on redelivery, so instead of cycling through the
// subscription it is parked here with the error that condemned it, for
// inspection and manual replay once the producer or the contracts are
// fixed.
//
// Implementations:
//   - MemoryStore: in-memory storage for tests
//   - RedisStore: Redis-backed storage
package dlq

import (
	"context"
	"time"
)

// Message is one parked event.
type Message struct {
	// ID is the DLQ-assigned message id.
	ID string
	// EventType is the event discriminator, when one could be extracted.
	EventType string
	// OriginalID is the transport message id, for correlation.
	OriginalID string
	// Payload is the raw message body.
	Payload []byte
	// Error is the rejection reason.
	Error string
	// Source identifies the rejecting service.
	Source string
	// CreatedAt is when the message was parked.
	CreatedAt time.Time
}

// Store persists dead-lettered events.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Store parks one message.
	Store(ctx context.Context, msg *Message) error

	// List returns up to limit parked messages, newest first.
	List(ctx context.Context, limit int) ([]*Message, error)

	// Delete removes a parked message, typically after replay.
	Delete(ctx context.Context, id string) error
}
