package contract

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Bootstrap errors. Any of these at startup means the process cannot serve.
var (
	// ErrNoContracts indicates zero event contracts loaded successfully.
	ErrNoContracts = errors.New("no event contracts loaded")

	// ErrMissingEnvelope indicates the envelope contract could not be read.
	ErrMissingEnvelope = errors.New("envelope contract missing")
)

// DuplicateKeyError indicates two contract files normalized to the same
// lookup key. Loading fails rather than silently keeping the last one,
// since a field must resolve to exactly one contract.
type DuplicateKeyError struct {
	Key      string
	File     string
	Existing string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate contract key %s: %s collides with %s", e.Key, e.File, e.Existing)
}

// NotFoundError indicates an event discriminator with no loaded contract.
// Fatal for the event, not for the process.
type NotFoundError struct {
	EventType string
	Key       string
	Loaded    []string
}

func (e *NotFoundError) Error() string {
	loaded := make([]string, len(e.Loaded))
	copy(loaded, e.Loaded)
	sort.Strings(loaded)
	return fmt.Sprintf("no event contract loaded for event_type=%q (lookup key=%q), loaded: %s",
		e.EventType, e.Key, strings.Join(loaded, ", "))
}

// IsNotFound checks if an error indicates a missing event contract.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ViolationError indicates an event that failed validation against its
// composed contract. Path is the dotted location of the failing instance
// node, "<root>" when the violation applies to the whole document.
type ViolationError struct {
	EventType string
	Path      string
	Message   string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("schema validation failed at %s: %s", e.Path, e.Message)
}

// IsViolation checks if an error indicates a contract violation.
func IsViolation(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}
