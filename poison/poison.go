// Package poison escalates messages that keep failing transiently.
//
// A message whose processing fails with a retryable error is nacked and
// redelivered. Usually the next attempt succeeds, but a message that hits
// the same transient-looking failure on every delivery would otherwise
// cycle through the subscription forever. The detector counts failed
// attempts per transport message id and, past a threshold, quarantines
// the message so the pipeline can park it instead of retrying again.
//
// Failure counts live in a Store so the decision holds across replicas
// consuming the same subscription:
//   - MemoryStore: single instance, tests
//   - RedisStore: shared counts for multi-replica deployments
package poison

import (
	"context"
	"fmt"
	"time"
)

// Store persists per-message failure counts and quarantine markers.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Fail increments the failure count for a message and returns the
	// new count.
	Fail(ctx context.Context, messageID string) (int, error)

	// Reset clears the failure count after a successful attempt.
	Reset(ctx context.Context, messageID string) error

	// Quarantine marks a message as poisonous until ttl expires.
	Quarantine(ctx context.Context, messageID string, ttl time.Duration) error

	// Quarantined reports whether a message is currently marked.
	Quarantined(ctx context.Context, messageID string) (bool, error)
}

// Detector applies the escalation policy over a Store.
type Detector struct {
	store     Store
	threshold int
	ttl       time.Duration
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithThreshold sets the failed attempts required before quarantine.
func WithThreshold(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.threshold = n
		}
	}
}

// WithQuarantineTTL sets how long the quarantine marker lives. It only
// matters when redelivery outlives the parking of the message.
func WithQuarantineTTL(ttl time.Duration) DetectorOption {
	return func(d *Detector) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// NewDetector creates a Detector. Defaults: 5 attempts, 1 hour quarantine.
func NewDetector(store Store, opts ...DetectorOption) *Detector {
	d := &Detector{
		store:     store,
		threshold: 5,
		ttl:       time.Hour,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check reports whether the message is already quarantined.
func (d *Detector) Check(ctx context.Context, messageID string) (bool, error) {
	return d.store.Quarantined(ctx, messageID)
}

// Fail records one failed attempt. Returns true when the message crossed
// the threshold and is now quarantined.
func (d *Detector) Fail(ctx context.Context, messageID string) (bool, error) {
	count, err := d.store.Fail(ctx, messageID)
	if err != nil {
		return false, fmt.Errorf("record failure: %w", err)
	}
	if count < d.threshold {
		return false, nil
	}
	if err := d.store.Quarantine(ctx, messageID, d.ttl); err != nil {
		return true, fmt.Errorf("quarantine message: %w", err)
	}
	return true, nil
}

// Succeed clears the failure count after a successful attempt, so a
// message that occasionally loses a race never accumulates to poison.
func (d *Detector) Succeed(ctx context.Context, messageID string) error {
	return d.store.Reset(ctx, messageID)
}

// Threshold returns the configured attempt threshold.
func (d *Detector) Threshold() int { return d.threshold }
