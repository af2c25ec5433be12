package relay

import (
	"errors"

	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/payload"
)

// Disposition describes what the transport should do with a message after
// a processing attempt.
type Disposition int

const (
	// DispositionAck acknowledges the message. Processing succeeded.
	DispositionAck Disposition = iota

	// DispositionReject acknowledges the message without retrying.
	// The failure is permanent: redelivery would fail the same way.
	// Rejected messages are parked in the dead letter store if one is
	// configured.
	DispositionReject

	// DispositionRetry nacks the message so the transport redelivers it.
	// The failure is transient: a sink outage or a storage error.
	DispositionRetry
)

// String implements fmt.Stringer.
func (d Disposition) String() string {
	switch d {
	case DispositionAck:
		return "ack"
	case DispositionReject:
		return "reject"
	case DispositionRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Classify maps a processing error to a Disposition.
//
// Permanent failures reject: a payload that cannot be decoded, an event
// type no contract describes, or a payload that violates its contract.
// All other errors retry.
func Classify(err error) Disposition {
	if err == nil {
		return DispositionAck
	}
	if errors.Is(err, payload.ErrMalformed) {
		return DispositionReject
	}
	if contract.IsNotFound(err) || contract.IsViolation(err) {
		return DispositionReject
	}
	return DispositionRetry
}
