// Package relay ingests contract-described JSON events from a message
// transport and relays them to analytical storage.
//
// Architecture:
//   - Contracts (JSON Schema) drive everything: validation, warehouse column
//     mapping and cold-store record schemas are all derived from the same
//     contract set loaded at startup.
//   - A Processor owns the per-message pipeline: decode, validate, fan out
//     to one or more sinks, and decide the message disposition.
//   - Sinks are pluggable. The warehouse sink appends rows to a columnar
//     table and evolves its schema additively; the cold-store sink writes
//     one self-describing object per event.
//   - Transports are pluggable: channel (in-memory), Google Pub/Sub, Kafka.
//
// Basic example:
//
//	store, err := contract.Load(contract.DirSource{Dir: "./schemas"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	validator, err := contract.NewValidator(store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	proc, err := relay.NewProcessor(store, validator,
//	    relay.WithSinks(warehouseLoader, coldLoader),
//	    relay.WithDeadLetter(dlqStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Drive the processor from a transport consumer.
//	err = consumer.Receive(ctx, proc.Handle)
//
// Message disposition:
// Every processing error is classified into a Disposition. Permanent
// failures (unknown event type, contract violation, malformed payload) are
// rejected: the message is acked so it is not redelivered, and a copy is
// parked in the dead letter store when one is configured. Everything else
// (sink outages, transient storage errors) is retried via nack and
// transport redelivery. With a poison detector configured, a message that
// keeps failing transiently is escalated after a threshold of attempts
// and parked instead of retried forever.
//
// Processor Options:
//   - WithSinks: set the destination sinks (at least one required).
//   - WithCodec: set the payload codec. Default is JSON.
//   - WithDeadLetter: park rejected messages in a dlq.Store.
//   - WithPoisonDetector: escalate repeatedly failing messages.
//   - WithProcessorLogger: set logger. Default is slog.Default.
//   - WithTracing: enable/disable OpenTelemetry tracing. Default is true.
//   - WithMetrics: enable/disable OpenTelemetry metrics. Default is true.
package relay
