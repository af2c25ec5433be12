package coldstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hamba/avro/v2/ocf"

	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/value"
)

// ContentType is the stored blob content type.
const ContentType = "application/avro"

// ObjectPath composes the storage path for one event blob, partitioned by
// event time (year/month/day/hour) and event type.
func ObjectPath(now time.Time, eventType, eventID string) string {
	now = now.UTC()
	if eventID == "" {
		eventID = "no-id"
	}
	return fmt.Sprintf("events/%04d/%02d/%02d/%02d/%s/%s.avro",
		now.Year(), int(now.Month()), now.Day(), now.Hour(), eventType, eventID)
}

// Loader is the schema-aware Avro writer for cold storage. Per event it
// builds a self-describing record schema, normalizes the event into it and
// uploads one OCF blob.
type Loader struct {
	store   *contract.Store
	objects ObjectStore
	now     func() time.Time
	logger  *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithClock overrides the partition-time clock, for deterministic paths in
// tests.
func WithClock(now func() time.Time) LoaderOption {
	return func(l *Loader) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLoader creates a cold-store loader over a contract store and an
// object store.
func NewLoader(store *contract.Store, objects ObjectStore, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:   store,
		objects: objects,
		now:     time.Now,
		logger:  slog.Default().With("component", "coldstore.loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Upload writes one event as an Avro OCF blob and returns its path.
func (l *Loader) Upload(ctx context.Context, rec value.Record) (string, error) {
	eventType, _ := rec.Get("event_type").Str()
	props, err := l.store.MergedProperties(eventType)
	if err != nil {
		return "", err
	}

	schema, err := BuildSchema(eventType, props, rec)
	if err != nil {
		return "", fmt.Errorf("build record schema: %w", err)
	}
	row := Normalize(rec, schema.Fields)

	blob, err := encodeOCF(schema, row)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	eventID, _ := rec.Get("event_id").Str()
	path := ObjectPath(l.now(), eventType, eventID)
	if err := l.objects.Put(ctx, path, ContentType, blob); err != nil {
		return "", err
	}
	l.logger.Debug("uploaded event blob", "path", path, "bytes", len(blob))
	return path, nil
}

// Write implements the pipeline sink contract.
func (l *Loader) Write(ctx context.Context, rec value.Record) error {
	_, err := l.Upload(ctx, rec)
	return err
}

// encodeOCF writes one normalized row as an object container file.
// Timestamp fields are carried as int64 microseconds in the row; the Avro
// encoder expects time.Time for timestamp-micros, so they are converted
// here at the boundary.
func encodeOCF(schema *Schema, row map[string]any) ([]byte, error) {
	encRow := make(map[string]any, len(row))
	for _, f := range schema.Fields {
		v := row[f.Name]
		if f.Kind == KindTimestamp {
			if micros, ok := v.(int64); ok {
				encRow[f.Name] = time.UnixMicro(micros).UTC()
			} else {
				encRow[f.Name] = nil
			}
			continue
		}
		encRow[f.Name] = v
	}

	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(schema.Record.String(), &buf)
	if err != nil {
		return nil, err
	}
	if err := enc.Encode(encRow); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
