package contract

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testEnvelope = []byte(`{
	"$id": "https://example.test/event-envelope.schema.json",
	"title": "EVENT_ENVELOPE",
	"type": "object",
	"properties": {
		"event_id": {"type": "string"},
		"event_type": {"type": "string"},
		"event_ts": {"type": "string", "format": "date-time"}
	},
	"required": ["event_id", "event_type", "event_ts"]
}`)

func eventDoc(eventType string) []byte {
	return []byte(`{
		"$id": "https://example.test/events/` + eventType + `.schema.json",
		"type": "object",
		"allOf": [
			{"$ref": "https://example.test/event-envelope.schema.json"},
			{"properties": {"event_type": {"const": "` + eventType + `"}}}
		]
	}`)
}

func TestLoad(t *testing.T) {
	t.Run("indexes contracts by normalized key", func(t *testing.T) {
		store, err := Load(MapSource{
			EnvelopeData: testEnvelope,
			EventData: map[string][]byte{
				"parcel-created.schema.json": eventDoc("PARCEL_CREATED"),
				"delivered.schema.json":      eventDoc("DELIVERED"),
			},
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if diff := cmp.Diff([]string{"DELIVERED", "PARCEL_CREATED"}, store.Keys()); diff != "" {
			t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
		}
		if _, err := store.Contract("parcel_created"); err != nil {
			t.Errorf("lookup by discriminator spelling failed: %v", err)
		}
	})

	t.Run("missing envelope is fatal", func(t *testing.T) {
		_, err := Load(MapSource{EventData: map[string][]byte{
			"delivered.schema.json": eventDoc("DELIVERED"),
		}})
		if !errors.Is(err, ErrMissingEnvelope) {
			t.Errorf("Load error = %v, want ErrMissingEnvelope", err)
		}
	})

	t.Run("zero contracts is fatal", func(t *testing.T) {
		_, err := Load(MapSource{EnvelopeData: testEnvelope})
		if !errors.Is(err, ErrNoContracts) {
			t.Errorf("Load error = %v, want ErrNoContracts", err)
		}
	})

	t.Run("unparseable contract is skipped", func(t *testing.T) {
		store, err := Load(MapSource{
			EnvelopeData: testEnvelope,
			EventData: map[string][]byte{
				"delivered.schema.json": eventDoc("DELIVERED"),
				"broken.schema.json":    []byte(`{not json`),
			},
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if store.Len() != 1 {
			t.Errorf("Len() = %d, want 1", store.Len())
		}
	})

	t.Run("only unparseable contracts is fatal", func(t *testing.T) {
		_, err := Load(MapSource{
			EnvelopeData: testEnvelope,
			EventData: map[string][]byte{
				"broken.schema.json": []byte(`{not json`),
			},
		})
		if !errors.Is(err, ErrNoContracts) {
			t.Errorf("Load error = %v, want ErrNoContracts", err)
		}
	})

	t.Run("duplicate normalized key is fatal", func(t *testing.T) {
		_, err := Load(MapSource{
			EnvelopeData: testEnvelope,
			EventData: map[string][]byte{
				"delivered.schema.json":  eventDoc("DELIVERED"),
				"delivered2.schema.json": eventDoc("DELIVERED"),
			},
		})
		var dup *DuplicateKeyError
		if !errors.As(err, &dup) {
			t.Fatalf("Load error = %v, want DuplicateKeyError", err)
		}
		if dup.Key != "DELIVERED" {
			t.Errorf("duplicate key = %q, want DELIVERED", dup.Key)
		}
	})

	t.Run("envelope copy in events source is ignored", func(t *testing.T) {
		store, err := Load(MapSource{
			EnvelopeData: testEnvelope,
			EventData: map[string][]byte{
				"event-envelope.schema.json": testEnvelope,
				"delivered.schema.json":      eventDoc("DELIVERED"),
			},
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if diff := cmp.Diff([]string{"DELIVERED"}, store.Keys()); diff != "" {
			t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestStoreLookups(t *testing.T) {
	store, err := Load(MapSource{
		EnvelopeData: testEnvelope,
		EventData: map[string][]byte{
			"delivered.schema.json": []byte(`{
				"allOf": [
					{"$ref": "https://example.test/event-envelope.schema.json"},
					{"properties": {
						"event_type": {"const": "DELIVERED"},
						"outcome": {"type": "string"}
					}}
				]
			}`),
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	t.Run("merged properties", func(t *testing.T) {
		props, err := store.MergedProperties("DELIVERED")
		if err != nil {
			t.Fatalf("MergedProperties: %v", err)
		}
		want := []string{"event_id", "event_type", "event_ts", "outcome"}
		if diff := cmp.Diff(want, props.Names()); diff != "" {
			t.Errorf("merged names mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown event type", func(t *testing.T) {
		_, err := store.Contract("TELEPORTED")
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("error = %v, want NotFoundError", err)
		}
		if !IsNotFound(err) {
			t.Error("IsNotFound should report true")
		}
	})
}

func TestDirSource(t *testing.T) {
	src := DirSource{Dir: "../testdata/schemas"}
	store, err := Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{
		"DELIVERED", "ETA_SET", "ETA_UPDATED", "EXCEPTION", "LOADED_TO_VAN",
		"OUT_FOR_DELIVERY", "PARCEL_CREATED", "SCAN_IN_DEPOT", "SCAN_OUT_DEPOT",
	}
	if diff := cmp.Diff(want, store.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
}
