package payload

import (
	"bytes"
	"encoding/json"
)

// JSON implements Codec using JSON serialization.
// This is the default codec.
//
// Decoding preserves number identity: integers stay integers instead of
// collapsing to float64, which the type inference for extra producer
// fields depends on.
type JSON struct{}

// Encode serializes the payload to JSON bytes.
func (JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserializes JSON bytes to the target type.
func (JSON) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// ContentType returns the MIME type for JSON.
func (JSON) ContentType() string {
	return "application/json"
}

// Compile-time check.
var _ Codec = JSON{}
