package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/dlq"
	"github.com/rbaliyan/relay/payload"
	"github.com/rbaliyan/relay/poison"
	"github.com/rbaliyan/relay/transport"
	"github.com/rbaliyan/relay/value"
)

const instrumentationName = "github.com/rbaliyan/relay"

// Sink receives validated events. Implementations must be safe for
// concurrent use; transports may deliver messages in parallel.
type Sink interface {
	Write(ctx context.Context, rec value.Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec value.Record) error

// Write implements Sink.
func (f SinkFunc) Write(ctx context.Context, rec value.Record) error {
	return f(ctx, rec)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithSinks sets the destination sinks. At least one is required.
func WithSinks(sinks ...Sink) ProcessorOption {
	return func(p *Processor) { p.sinks = sinks }
}

// WithCodec sets the payload codec. Default is JSON.
func WithCodec(c payload.Codec) ProcessorOption {
	return func(p *Processor) { p.codec = c }
}

// WithDeadLetter parks rejected messages in the given store.
func WithDeadLetter(store dlq.Store) ProcessorOption {
	return func(p *Processor) { p.deadLetter = store }
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// WithSource labels dead-lettered messages with the consuming pipeline's
// name.
func WithSource(source string) ProcessorOption {
	return func(p *Processor) { p.source = source }
}

// WithPoisonDetector escalates messages that keep failing with retryable
// errors. Past the detector's threshold a message is parked in the dead
// letter store and acked instead of nacked again.
func WithPoisonDetector(det *poison.Detector) ProcessorOption {
	return func(p *Processor) { p.poison = det }
}

// WithTracing enables or disables OpenTelemetry tracing.
func WithTracing(enabled bool) ProcessorOption {
	return func(p *Processor) { p.tracing = enabled }
}

// WithMetrics enables or disables OpenTelemetry metrics.
func WithMetrics(enabled bool) ProcessorOption {
	return func(p *Processor) { p.metrics = enabled }
}

// Processor runs the per-message pipeline: decode, validate, fan out to
// sinks, classify the outcome.
type Processor struct {
	store      *contract.Store
	validator  *contract.Validator
	codec      payload.Codec
	sinks      []Sink
	deadLetter dlq.Store
	poison     *poison.Detector
	source     string
	logger     *slog.Logger
	tracing    bool
	metrics    bool

	tracer    trace.Tracer
	processed metric.Int64Counter
	rejected  metric.Int64Counter
	retried   metric.Int64Counter
}

// NewProcessor creates a Processor over the given contract store and
// validator.
func NewProcessor(store *contract.Store, validator *contract.Validator, opts ...ProcessorOption) (*Processor, error) {
	if store == nil {
		return nil, errors.New("relay: contract store is required")
	}
	if validator == nil {
		return nil, errors.New("relay: validator is required")
	}
	p := &Processor{
		store:     store,
		validator: validator,
		codec:     payload.Default(),
		source:    "relay",
		logger:    slog.Default().With("component", "processor"),
		tracing:   true,
		metrics:   true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.sinks) == 0 {
		return nil, errors.New("relay: at least one sink is required")
	}
	if p.tracing {
		p.tracer = otel.Tracer(instrumentationName)
	}
	if p.metrics {
		meter := otel.Meter(instrumentationName)
		var err error
		if p.processed, err = meter.Int64Counter("relay.messages.processed",
			metric.WithDescription("Messages processed successfully")); err != nil {
			return nil, fmt.Errorf("create counter: %w", err)
		}
		if p.rejected, err = meter.Int64Counter("relay.messages.rejected",
			metric.WithDescription("Messages permanently rejected")); err != nil {
			return nil, fmt.Errorf("create counter: %w", err)
		}
		if p.retried, err = meter.Int64Counter("relay.messages.retried",
			metric.WithDescription("Messages nacked for redelivery")); err != nil {
			return nil, fmt.Errorf("create counter: %w", err)
		}
	}
	return p, nil
}

// Process decodes, validates and delivers one message body. The returned
// error classifies via Classify; nil means every sink accepted the event.
func (p *Processor) Process(ctx context.Context, data []byte) error {
	var span trace.Span
	if p.tracing {
		ctx, span = p.tracer.Start(ctx, "relay.process")
		defer span.End()
	}

	event, err := payload.DecodeEvent(p.codec, data)
	if err != nil {
		p.recordError(span, err)
		return err
	}
	if err := p.validator.Validate(event); err != nil {
		p.recordError(span, err)
		return err
	}

	rec := value.FromMap(event)
	if span != nil {
		eventType, _ := rec.Get("event_type").Str()
		span.SetAttributes(attribute.String("event.type", eventType))
	}
	for _, sink := range p.sinks {
		if err := sink.Write(ctx, rec); err != nil {
			p.recordError(span, err)
			return fmt.Errorf("sink write: %w", err)
		}
	}
	return nil
}

// Handle is a transport.Handler. It runs Process, settles the message and
// parks permanently failed ones in the dead letter store.
func (p *Processor) Handle(ctx context.Context, msg transport.Message) {
	if p.poison != nil {
		quarantined, err := p.poison.Check(ctx, msg.ID())
		if err != nil {
			p.logger.Error("poison check failed",
				"message_id", msg.ID(),
				"error", err)
		}
		if quarantined {
			p.count(ctx, p.rejected)
			p.logger.Warn("message quarantined, parking",
				"message_id", msg.ID())
			p.park(ctx, msg, errors.New("quarantined after repeated failures"))
			msg.Ack()
			return
		}
	}

	err := p.Process(ctx, msg.Data())
	switch Classify(err) {
	case DispositionAck:
		p.count(ctx, p.processed)
		if p.poison != nil {
			if serr := p.poison.Succeed(ctx, msg.ID()); serr != nil {
				p.logger.Error("failed to clear poison count",
					"message_id", msg.ID(),
					"error", serr)
			}
		}
		msg.Ack()
	case DispositionReject:
		p.count(ctx, p.rejected)
		p.logger.Warn("message rejected",
			"message_id", msg.ID(),
			"error", err)
		p.park(ctx, msg, err)
		msg.Ack()
	case DispositionRetry:
		if p.poison != nil {
			escalated, perr := p.poison.Fail(ctx, msg.ID())
			if perr != nil {
				p.logger.Error("failed to record poison failure",
					"message_id", msg.ID(),
					"error", perr)
			}
			if escalated {
				p.count(ctx, p.rejected)
				p.logger.Warn("message escalated after repeated failures, parking",
					"message_id", msg.ID(),
					"error", err)
				p.park(ctx, msg, err)
				msg.Ack()
				return
			}
		}
		p.count(ctx, p.retried)
		p.logger.Error("message processing failed, will retry",
			"message_id", msg.ID(),
			"error", err)
		msg.Nack()
	}
}

func (p *Processor) park(ctx context.Context, msg transport.Message, cause error) {
	if p.deadLetter == nil {
		return
	}
	entry := &dlq.Message{
		ID:         uuid.NewString(),
		EventType:  msg.Attributes()["event_type"],
		OriginalID: msg.ID(),
		Payload:    msg.Data(),
		Error:      cause.Error(),
		Source:     p.source,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.deadLetter.Store(ctx, entry); err != nil {
		p.logger.Error("failed to park message in dead letter store",
			"message_id", msg.ID(),
			"error", err)
	}
}

func (p *Processor) count(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}

func (p *Processor) recordError(span trace.Span, err error) {
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
