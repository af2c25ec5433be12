// Package payload provides event payload serialization/deserialization.
//
// The payload package handles decoding of the inbound message body into
// the flat event object the engine works on, separate from transport-level
// message delivery. JSON is the wire default; MessagePack is available for
// producers that prefer a binary body.
//
// Usage:
//
//	// Use JSON codec (default)
//	event, err := payload.DecodeEvent(payload.Default(), msg.Data())
//
//	// Use msgpack codec
//	event, err := payload.DecodeEvent(payload.MsgPack{}, msg.Data())
package payload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformed indicates a message body that could not be decoded into a
// flat event object. Permanent for the message; retrying cannot help.
var ErrMalformed = errors.New("malformed event payload")

// Codec encodes/decodes event payload data.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Encode serializes the payload to bytes.
	Encode(v any) ([]byte, error)

	// Decode deserializes bytes to the target type.
	// The target must be a pointer.
	Decode(data []byte, v any) error

	// ContentType returns the MIME type (e.g., "application/json").
	ContentType() string
}

// Default returns the default codec (JSON).
func Default() Codec {
	return JSON{}
}

// DecodeEvent decodes a message body into a flat event object.
//
// Some delivery paths hand over the body base64-wrapped; a body that
// strictly decodes as base64 is unwrapped first, falling back to the raw
// bytes, matching the tolerant behavior of the upstream subscribers.
func DecodeEvent(c Codec, data []byte) (map[string]any, error) {
	if c == nil {
		c = Default()
	}
	body := data
	if decoded, err := base64.StdEncoding.Strict().DecodeString(string(bytes.TrimSpace(data))); err == nil {
		body = decoded
	}

	var event map[string]any
	if err := c.Decode(body, &event); err != nil {
		// The base64 unwrap may have mangled a legitimate raw body.
		if !bytes.Equal(body, data) {
			if rawErr := c.Decode(data, &event); rawErr == nil {
				return event, nil
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return event, nil
}
