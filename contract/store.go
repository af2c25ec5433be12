// Package contract loads, indexes, merges and validates the versioned
// event contracts that describe every event flowing through the pipeline.
//
// A contract set consists of one envelope schema (the fields common to
// every event) and one schema per event type, each a JSON Schema document.
// Event contracts may declare their fields at the root or nested inside an
// allOf composition over the envelope; both spellings flatten to the same
// merged property map.
//
// The Store and its index are built once at startup and are immutable
// afterwards, so they are safe for unsynchronized concurrent reads from
// every in-flight message.
//
// # Basic Usage
//
//	store, err := contract.Load(contract.DirSource{Dir: "data_contracts/schemas"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	props, err := store.MergedProperties("PARCEL_CREATED")
//
// Tests can supply contracts without touching a filesystem:
//
//	store, err := contract.Load(contract.MapSource{
//	    EnvelopeData: envelopeJSON,
//	    EventData:    map[string][]byte{"delivered.schema.json": deliveredJSON},
//	})
package contract

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnvelopeFile is the well-known envelope contract file name.
const EnvelopeFile = "event-envelope.schema.json"

// eventsSubdir is the per-event-type contract subdirectory of a schema dir.
const eventsSubdir = "events"

// Entry is one named contract document from a Source.
type Entry struct {
	Name string
	Data []byte
}

// Source enumerates contract documents. Abstracting the source keeps the
// loader independent of the on-disk layout and lets tests feed in-memory
// contracts.
type Source interface {
	// Envelope returns the envelope contract document.
	Envelope() ([]byte, error)

	// Events returns the event contract documents in a stable order.
	Events() ([]Entry, error)
}

// DirSource reads contracts from a schema directory laid out as
// <dir>/event-envelope.schema.json plus <dir>/events/*.schema.json.
type DirSource struct {
	Dir string
}

// Envelope reads the envelope contract file.
func (d DirSource) Envelope() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.Dir, EnvelopeFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingEnvelope, err)
	}
	return data, nil
}

// Events reads every *.schema.json file under the events subdirectory.
func (d DirSource) Events() ([]Entry, error) {
	dir := filepath.Join(d.Dir, eventsSubdir)
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("events schema directory not found: %w", err)
	}
	var entries []Entry
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), FileSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("read contract %s: %w", de.Name(), err)
		}
		entries = append(entries, Entry{Name: de.Name(), Data: data})
	}
	return entries, nil
}

// MapSource serves contracts from memory. EventData keys are treated as
// file names for key derivation.
type MapSource struct {
	EnvelopeData []byte
	EventData    map[string][]byte
}

// Envelope returns the in-memory envelope document.
func (m MapSource) Envelope() ([]byte, error) {
	if len(m.EnvelopeData) == 0 {
		return nil, ErrMissingEnvelope
	}
	return m.EnvelopeData, nil
}

// Events returns the in-memory event documents sorted by name.
func (m MapSource) Events() ([]Entry, error) {
	names := make([]string, 0, len(m.EventData))
	for name := range m.EventData {
		names = append(names, name)
	}
	sort.Strings(names)
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, Entry{Name: name, Data: m.EventData[name]})
	}
	return entries, nil
}

// Store is the immutable contract index: the envelope plus one contract
// per normalized event-type key.
type Store struct {
	envelope  *Contract
	contracts map[string]*Contract
	logger    *slog.Logger
}

// LoadOption configures Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *slog.Logger) LoadOption {
	return func(c *loadConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Load builds the contract store from a source.
//
// Load fails when the envelope is missing, when the event source cannot be
// enumerated, when two contracts normalize to the same key, or when zero
// event contracts load successfully. An individual contract that fails to
// parse is skipped with a diagnostic instead of failing the whole load.
func Load(src Source, opts ...LoadOption) (*Store, error) {
	cfg := loadConfig{logger: slog.Default().With("component", "contract.store")}
	for _, opt := range opts {
		opt(&cfg)
	}

	envData, err := src.Envelope()
	if err != nil {
		return nil, err
	}
	envelope, err := Parse(EnvelopeFile, envData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingEnvelope, err)
	}
	cfg.logger.Info("loaded envelope contract",
		"id", envelope.ID,
		"fields", envelope.Properties.Len())

	entries, err := src.Events()
	if err != nil {
		return nil, err
	}

	contracts := make(map[string]*Contract)
	for _, entry := range entries {
		c, err := Parse(entry.Name, entry.Data)
		if err != nil {
			cfg.logger.Warn("skipping unparseable contract", "file", entry.Name, "error", err)
			continue
		}
		key := c.Key()
		// The envelope is never an event contract, even when a copy
		// lands in the events source.
		if key == "EVENT_ENVELOPE" || key == "EVENTENVELOPE" {
			continue
		}
		if existing, ok := contracts[key]; ok {
			return nil, &DuplicateKeyError{Key: key, File: entry.Name, Existing: existing.Name}
		}
		contracts[key] = c
		cfg.logger.Info("loaded event contract",
			"file", entry.Name,
			"key", key,
			"fields", c.OwnProperties().Len())
	}
	if len(contracts) == 0 {
		return nil, ErrNoContracts
	}

	store := &Store{envelope: envelope, contracts: contracts, logger: cfg.logger}
	cfg.logger.Info("contract store ready", "contracts", len(contracts), "keys", store.Keys())
	return store, nil
}

// Envelope returns the envelope contract.
func (s *Store) Envelope() *Contract { return s.envelope }

// Contract resolves the contract for an event type via the normalized key.
func (s *Store) Contract(eventType string) (*Contract, error) {
	key := NormalizeKey(eventType)
	c, ok := s.contracts[key]
	if !ok {
		return nil, &NotFoundError{EventType: eventType, Key: key, Loaded: s.Keys()}
	}
	return c, nil
}

// MergedProperties returns the merged property map for an event type:
// envelope fields overlaid with the event contract's own fields.
func (s *Store) MergedProperties(eventType string) (Properties, error) {
	c, err := s.Contract(eventType)
	if err != nil {
		return Properties{}, err
	}
	return Merge(s.envelope, c), nil
}

// Keys returns the sorted normalized keys of all loaded contracts.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.contracts))
	for key := range s.contracts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of loaded event contracts.
func (s *Store) Len() int { return len(s.contracts) }
