package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FileSuffix is the contract file suffix stripped during key derivation.
const FileSuffix = ".schema.json"

// NormalizeKey derives the lookup key for an event type or contract file
// name: the contract file suffix is stripped, whitespace trimmed, dashes
// unified to underscores and the result upper-cased. Both the file name
// "parcel-created.schema.json" and the discriminator value "parcel_created"
// normalize to "PARCEL_CREATED".
func NormalizeKey(s string) string {
	s = strings.TrimSuffix(s, FileSuffix)
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToUpper(s)
}

// Property is one field definition from a contract.
type Property struct {
	// Types is the declared JSON Schema type, as a list. A scalar
	// declaration parses to a single-element list.
	Types []string
	// Format is the declared format, e.g. "date-time".
	Format string
	// Const is the declared constant value when it is a string.
	Const string
}

// UnmarshalJSON accepts both scalar and list type declarations.
func (p *Property) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   json.RawMessage `json:"type"`
		Format string          `json:"format"`
		Const  json.RawMessage `json:"const"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Format = raw.Format
	p.Types = nil
	p.Const = ""
	if len(raw.Type) > 0 {
		var single string
		if err := json.Unmarshal(raw.Type, &single); err == nil {
			p.Types = []string{single}
		} else {
			var list []string
			if err := json.Unmarshal(raw.Type, &list); err == nil {
				p.Types = list
			}
		}
	}
	if len(raw.Const) > 0 {
		var c string
		if err := json.Unmarshal(raw.Const, &c); err == nil {
			p.Const = c
		}
	}
	return nil
}

// PrimaryType returns the declared type with the "null" branch discarded,
// or "" when the contract declares no usable type.
func (p Property) PrimaryType() string {
	for _, t := range p.Types {
		if t != "null" {
			return t
		}
	}
	return ""
}

// Properties is an ordered field-name to definition map. Declaration order
// is preserved so downstream column order is stable; keys are unique, a
// later declaration of an existing name replaces the definition in place.
type Properties struct {
	names []string
	defs  map[string]Property
}

// UnmarshalJSON decodes a JSON Schema "properties" object preserving the
// document order of its keys.
func (p *Properties) UnmarshalJSON(data []byte) error {
	p.names = nil
	p.defs = nil

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("properties: expected field name, got %v", keyTok)
		}
		var def Property
		if err := dec.Decode(&def); err != nil {
			return fmt.Errorf("properties: field %s: %w", name, err)
		}
		p.Set(name, def)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// Set adds or replaces a definition. Replacing keeps the original position.
func (p *Properties) Set(name string, def Property) {
	if p.defs == nil {
		p.defs = make(map[string]Property)
	}
	if _, exists := p.defs[name]; !exists {
		p.names = append(p.names, name)
	}
	p.defs[name] = def
}

// Get returns the definition for name.
func (p Properties) Get(name string) (Property, bool) {
	def, ok := p.defs[name]
	return def, ok
}

// Has reports whether name is defined.
func (p Properties) Has(name string) bool {
	_, ok := p.defs[name]
	return ok
}

// Names returns the field names in declaration order.
func (p Properties) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Len returns the number of defined fields.
func (p Properties) Len() int { return len(p.names) }

// Branch is one entry of a contract's composition list.
type Branch struct {
	Ref        string     `json:"$ref"`
	Properties Properties `json:"properties"`
	Required   []string   `json:"required"`
}

// Contract is one parsed JSON Schema contract document.
//
// Raw keeps the original bytes so the validator can compile the schema
// with full fidelity; the parsed fields cover only what the mapping
// engine needs.
type Contract struct {
	// Name is the source entry name the contract was loaded from.
	Name string
	// ID is the declared $id, when present.
	ID string
	// Title is the declared title, when present.
	Title string
	// Properties are the root-level property definitions.
	Properties Properties
	// AllOf is the composition list, for contracts authored as
	// "envelope + extension".
	AllOf []Branch
	// Raw is the original document.
	Raw []byte
}

// Parse parses a contract document.
func Parse(name string, data []byte) (*Contract, error) {
	var raw struct {
		ID         string     `json:"$id"`
		Title      string     `json:"title"`
		Properties Properties `json:"properties"`
		AllOf      []Branch   `json:"allOf"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse contract %s: %w", name, err)
	}
	return &Contract{
		Name:       name,
		ID:         raw.ID,
		Title:      raw.Title,
		Properties: raw.Properties,
		AllOf:      raw.AllOf,
		Raw:        data,
	}, nil
}

// Discriminator returns the constant event-type value declared on the
// contract's event_type property, at the root or inside any composition
// branch.
func (c *Contract) Discriminator() (string, bool) {
	if def, ok := c.Properties.Get("event_type"); ok && def.Const != "" {
		return def.Const, true
	}
	for _, branch := range c.AllOf {
		if def, ok := branch.Properties.Get("event_type"); ok && def.Const != "" {
			return def.Const, true
		}
	}
	return "", false
}

// Key derives the contract's normalized lookup key: the discriminator
// constant when declared, else the title, else the source file name.
func (c *Contract) Key() string {
	if d, ok := c.Discriminator(); ok {
		return NormalizeKey(d)
	}
	if c.Title != "" {
		return NormalizeKey(c.Title)
	}
	return NormalizeKey(c.Name)
}

// OwnProperties flattens the contract's own property definitions: root
// properties plus every composition branch, walked in order with later
// declarations winning.
func (c *Contract) OwnProperties() Properties {
	var out Properties
	for _, name := range c.Properties.Names() {
		def, _ := c.Properties.Get(name)
		out.Set(name, def)
	}
	for _, branch := range c.AllOf {
		for _, name := range branch.Properties.Names() {
			def, _ := branch.Properties.Get(name)
			out.Set(name, def)
		}
	}
	return out
}

// Merge produces the merged property map for an event type: the envelope's
// root properties overlaid with the event contract's own properties, the
// event definition winning on name collision.
func Merge(envelope, event *Contract) Properties {
	var out Properties
	for _, name := range envelope.Properties.Names() {
		def, _ := envelope.Properties.Get(name)
		out.Set(name, def)
	}
	own := event.OwnProperties()
	for _, name := range own.Names() {
		def, _ := own.Get(name)
		out.Set(name, def)
	}
	return out
}
