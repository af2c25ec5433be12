package contract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks raw events against their composed contracts before any
// mapping occurs. Each event contract is compiled once with the envelope
// registered under its $id, so allOf/$ref composition resolves locally and
// a single validation pass enforces both envelope and event constraints.
//
// The Validator is immutable after construction and safe for concurrent
// use.
type Validator struct {
	schemas map[string]*jsonschema.Schema
	keys    []string
}

// localBase anchors contracts that declare no $id of their own.
const localBase = "file:///contracts/"

// NewValidator compiles all contracts in the store.
func NewValidator(store *Store) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	envURL := store.envelope.ID
	if envURL == "" {
		envURL = localBase + EnvelopeFile
	}
	if err := compiler.AddResource(envURL, bytes.NewReader(store.envelope.Raw)); err != nil {
		return nil, fmt.Errorf("register envelope schema: %w", err)
	}

	urls := make(map[string]string, len(store.contracts))
	for key, c := range store.contracts {
		url := c.ID
		if url == "" {
			url = localBase + "events/" + c.Name
		}
		if err := compiler.AddResource(url, bytes.NewReader(c.Raw)); err != nil {
			return nil, fmt.Errorf("register contract %s: %w", c.Name, err)
		}
		urls[key] = url
	}

	schemas := make(map[string]*jsonschema.Schema, len(urls))
	for key, url := range urls {
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile contract %s: %w", key, err)
		}
		schemas[key] = sch
	}

	return &Validator{schemas: schemas, keys: store.Keys()}, nil
}

// Validate checks one raw event against its composed contract.
//
// The contract is selected by the normalized event_type discriminator. An
// unknown discriminator yields a NotFoundError; a failing contract check
// yields a ViolationError carrying the dotted path of the violation.
func (v *Validator) Validate(event map[string]any) error {
	rawType, _ := event["event_type"].(string)
	key := NormalizeKey(rawType)
	sch, ok := v.schemas[key]
	if !ok {
		return &NotFoundError{EventType: rawType, Key: key, Loaded: v.keys}
	}

	if err := sch.Validate(event); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := leafCause(ve)
			return &ViolationError{
				EventType: rawType,
				Path:      dottedPath(leaf.InstanceLocation),
				Message:   leaf.Message,
			}
		}
		return &ViolationError{EventType: rawType, Path: "<root>", Message: err.Error()}
	}
	return nil
}

// leafCause picks the most specific leaf of a validation error tree: the
// leaf whose instance location is deepest.
func leafCause(e *jsonschema.ValidationError) *jsonschema.ValidationError {
	best := e
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if len(node.Causes) == 0 {
			if len(node.InstanceLocation) > len(best.InstanceLocation) ||
				(best == e && len(e.Causes) > 0) {
				best = node
			}
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(e)
	return best
}

// dottedPath converts a JSON pointer instance location to a dotted path.
func dottedPath(pointer string) string {
	if pointer == "" {
		return "<root>"
	}
	parts := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, part := range parts {
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")
		parts[i] = part
	}
	return strings.Join(parts, ".")
}
