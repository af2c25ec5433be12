package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/rbaliyan/relay/payload"
	"github.com/rbaliyan/relay/transport"
)

// StreamerOption configures a Streamer.
type StreamerOption func(*Streamer)

// WithStreamerLogger sets the logger.
func WithStreamerLogger(logger *slog.Logger) StreamerOption {
	return func(s *Streamer) { s.logger = logger }
}

// WithStreamerCodec sets the payload codec. Default is JSON.
func WithStreamerCodec(c payload.Codec) StreamerOption {
	return func(s *Streamer) { s.codec = c }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) StreamerOption {
	return func(s *Streamer) { s.now = now }
}

// Streamer publishes generated lifecycles over a transport at a bounded
// event rate. Events of one parcel share an ordering key so transports
// with ordered delivery keep the lifecycle in sequence.
type Streamer struct {
	gen     *Generator
	pub     transport.Publisher
	limiter *rate.Limiter
	codec   payload.Codec
	now     func() time.Time
	logger  *slog.Logger
}

// NewStreamer creates a Streamer over the given generator and publisher.
// The event rate comes from the generator's config.
func NewStreamer(gen *Generator, pub transport.Publisher, opts ...StreamerOption) *Streamer {
	eps := gen.cfg.Rate.EventsPerSec
	if eps <= 0 {
		eps = 1
	}
	s := &Streamer{
		gen:     gen,
		pub:     pub,
		limiter: rate.NewLimiter(rate.Limit(eps), eps),
		codec:   payload.Default(),
		now:     time.Now,
		logger:  slog.Default().With("component", "generator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run generates and publishes lifecycles until ctx is cancelled or the
// duration elapses (zero means until cancelled). Returns the number of
// events published.
func (s *Streamer) Run(ctx context.Context, d time.Duration) (int, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	total := 0
	for {
		events := s.gen.Lifecycle(s.now())
		for _, evt := range events {
			if err := s.limiter.Wait(ctx); err != nil {
				// Deadline or cancellation ends the run cleanly.
				return total, nil
			}
			if err := s.publish(ctx, evt); err != nil {
				return total, err
			}
			total++
		}
		s.logger.Debug("lifecycle published",
			"parcel_id", events[0]["parcel_id"],
			"events", len(events))
	}
}

func (s *Streamer) publish(ctx context.Context, evt map[string]any) error {
	data, err := s.codec.Encode(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	orderingKey, _ := evt["parcel_id"].(string)
	attrs := map[string]string{
		"event_type":     str(evt["event_type"]),
		"schema_version": str(evt["schema_version"]),
		"event_version":  str(evt["event_version"]),
	}
	if err := s.pub.Publish(ctx, data, orderingKey, attrs); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
