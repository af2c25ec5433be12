package contract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"parcel-created.schema.json", "PARCEL_CREATED"},
		{"parcel_created", "PARCEL_CREATED"},
		{"  delivered ", "DELIVERED"},
		{"ETA-SET", "ETA_SET"},
		{"exception.schema.json", "EXCEPTION"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeKey(tt.in); got != tt.want {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPropertyUnmarshal(t *testing.T) {
	t.Run("scalar type", func(t *testing.T) {
		c := mustParse(t, "x.schema.json", `{"properties":{"f":{"type":"integer"}}}`)
		def, ok := c.Properties.Get("f")
		if !ok || def.PrimaryType() != "integer" {
			t.Fatalf("got %+v, want integer", def)
		}
	})

	t.Run("type list discards null", func(t *testing.T) {
		c := mustParse(t, "x.schema.json", `{"properties":{"f":{"type":["null","number"]}}}`)
		def, _ := c.Properties.Get("f")
		if def.PrimaryType() != "number" {
			t.Errorf("PrimaryType() = %q, want number", def.PrimaryType())
		}
	})

	t.Run("all null yields no type", func(t *testing.T) {
		c := mustParse(t, "x.schema.json", `{"properties":{"f":{"type":["null"]}}}`)
		def, _ := c.Properties.Get("f")
		if def.PrimaryType() != "" {
			t.Errorf("PrimaryType() = %q, want empty", def.PrimaryType())
		}
	})
}

func TestPropertiesOrder(t *testing.T) {
	c := mustParse(t, "x.schema.json",
		`{"properties":{"zeta":{"type":"string"},"alpha":{"type":"integer"},"mid":{"type":"boolean"}}}`)
	want := []string{"zeta", "alpha", "mid"}
	if diff := cmp.Diff(want, c.Properties.Names()); diff != "" {
		t.Errorf("declaration order not preserved (-want +got):\n%s", diff)
	}
}

func TestDiscriminator(t *testing.T) {
	t.Run("root const", func(t *testing.T) {
		c := mustParse(t, "x.schema.json",
			`{"properties":{"event_type":{"const":"DELIVERED"}}}`)
		d, ok := c.Discriminator()
		if !ok || d != "DELIVERED" {
			t.Errorf("Discriminator() = (%q, %v), want DELIVERED", d, ok)
		}
	})

	t.Run("const in composition branch", func(t *testing.T) {
		c := mustParse(t, "x.schema.json",
			`{"allOf":[{"$ref":"env"},{"properties":{"event_type":{"const":"ETA_SET"}}}]}`)
		d, ok := c.Discriminator()
		if !ok || d != "ETA_SET" {
			t.Errorf("Discriminator() = (%q, %v), want ETA_SET", d, ok)
		}
	})
}

func TestKeyDerivation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		file string
		want string
	}{
		{"const wins", `{"title":"Wrong","properties":{"event_type":{"const":"scan-in-depot"}}}`, "other.schema.json", "SCAN_IN_DEPOT"},
		{"title next", `{"title":"eta-updated"}`, "other.schema.json", "ETA_UPDATED"},
		{"file name last", `{}`, "loaded-to-van.schema.json", "LOADED_TO_VAN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustParse(t, tt.file, tt.doc)
			if got := c.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOwnPropertiesFlattening(t *testing.T) {
	c := mustParse(t, "x.schema.json", `{
		"properties": {"a": {"type": "string"}, "b": {"type": "string"}},
		"allOf": [
			{"$ref": "env"},
			{"properties": {"b": {"type": "integer"}, "c": {"type": "boolean"}}}
		]
	}`)
	own := c.OwnProperties()

	if diff := cmp.Diff([]string{"a", "b", "c"}, own.Names()); diff != "" {
		t.Errorf("flattened order mismatch (-want +got):\n%s", diff)
	}
	// The branch redeclaration of b wins over the root.
	b, _ := own.Get("b")
	if b.PrimaryType() != "integer" {
		t.Errorf("branch should win: b type = %q, want integer", b.PrimaryType())
	}
}

func TestMerge(t *testing.T) {
	env := mustParse(t, EnvelopeFile, `{
		"properties": {
			"event_id": {"type": "string"},
			"event_ts": {"type": "string", "format": "date-time"},
			"sequence_no": {"type": "integer"}
		}
	}`)
	evt := mustParse(t, "delivered.schema.json", `{
		"allOf": [
			{"$ref": "env"},
			{"properties": {
				"event_type": {"const": "DELIVERED"},
				"sequence_no": {"type": "number"},
				"outcome": {"type": "string"}
			}}
		]
	}`)

	merged := Merge(env, evt)

	want := []string{"event_id", "event_ts", "sequence_no", "event_type", "outcome"}
	if diff := cmp.Diff(want, merged.Names()); diff != "" {
		t.Errorf("merged order mismatch (-want +got):\n%s", diff)
	}
	// Event declaration wins on collision, at the envelope's position.
	seq, _ := merged.Get("sequence_no")
	if seq.PrimaryType() != "number" {
		t.Errorf("event should win collision: sequence_no = %q, want number", seq.PrimaryType())
	}
}

func mustParse(t *testing.T, name, doc string) *Contract {
	t.Helper()
	c, err := Parse(name, []byte(doc))
	if err != nil {
		t.Fatalf("Parse(%s): %v", name, err)
	}
	return c
}
