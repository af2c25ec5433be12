// Package coldstore implements the cold path of the pipeline:
// self-describing Avro records written to an object store, partitioned by
// event time and event type.
//
// Unlike the warehouse path there is no persisted schema to race on. Every
// event gets its own record schema built from the merged property map plus
// the extra fields the producer actually sent, with every field a nullable
// union. Timestamps are carried as long microseconds since the epoch with
// the timestamp-micros logical type.
package coldstore

import (
	"sort"
	"strings"

	"github.com/hamba/avro/v2"

	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/value"
)

// FieldKind classifies the non-null branch of a field's union.
type FieldKind int

const (
	// KindString maps to the Avro string primitive.
	KindString FieldKind = iota
	// KindLong maps to the Avro long primitive.
	KindLong
	// KindDouble maps to the Avro double primitive.
	KindDouble
	// KindBoolean maps to the Avro boolean primitive.
	KindBoolean
	// KindTimestamp maps to long with the timestamp-micros logical type.
	KindTimestamp
)

// Field is one planned record field: its name and the destination kind of
// its nullable union.
type Field struct {
	Name string
	Kind FieldKind
}

// Schema is a per-event record schema: the compiled Avro schema plus the
// flat field plan the normalizer works from.
type Schema struct {
	Record *avro.RecordSchema
	Fields []Field
}

// isTimestampProp reports whether a contract property carries timestamp
// semantics: a string with format date-time, or failing a declared type,
// the *_ts name heuristic.
func isTimestampProp(name string, prop contract.Property) bool {
	if prop.PrimaryType() == "string" && prop.Format == "date-time" {
		return true
	}
	return strings.HasSuffix(name, "_ts")
}

// kindForProp maps a contract property to its destination kind.
func kindForProp(name string, prop contract.Property) FieldKind {
	if isTimestampProp(name, prop) {
		return KindTimestamp
	}
	switch prop.PrimaryType() {
	case "integer":
		return KindLong
	case "number":
		return KindDouble
	case "boolean":
		return KindBoolean
	default:
		return KindString
	}
}

// kindForValue infers the destination kind for an extra producer field
// from the runtime value.
func kindForValue(name string, v value.Value) FieldKind {
	switch v.Kind() {
	case value.KindBool:
		return KindBoolean
	case value.KindInt:
		return KindLong
	case value.KindFloat:
		return KindDouble
	case value.KindString:
		if strings.HasSuffix(name, "_ts") {
			return KindTimestamp
		}
		return KindString
	default:
		return KindString
	}
}

// BuildSchema composes the record schema for one event: merged contract
// fields in declaration order, then extra producer fields sorted by name.
// Every field is a ["null", T] union; nothing is required.
func BuildSchema(eventType string, props contract.Properties, rec value.Record) (*Schema, error) {
	plan := make([]Field, 0, props.Len())
	for _, name := range props.Names() {
		def, _ := props.Get(name)
		plan = append(plan, Field{Name: name, Kind: kindForProp(name, def)})
	}

	var extras []string
	for name := range rec {
		if !props.Has(name) {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		plan = append(plan, Field{Name: name, Kind: kindForValue(name, rec[name])})
	}

	fields := make([]*avro.Field, 0, len(plan))
	for _, f := range plan {
		union, err := avro.NewUnionSchema([]avro.Schema{
			avro.NewPrimitiveSchema(avro.Null, nil),
			avroSchemaFor(f.Kind),
		})
		if err != nil {
			return nil, err
		}
		field, err := avro.NewField(f.Name, union)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}

	record, err := avro.NewRecordSchema(contract.NormalizeKey(eventType)+"_Event", "", fields)
	if err != nil {
		return nil, err
	}
	return &Schema{Record: record, Fields: plan}, nil
}

func avroSchemaFor(kind FieldKind) avro.Schema {
	switch kind {
	case KindTimestamp:
		return avro.NewPrimitiveSchema(avro.Long, avro.NewPrimitiveLogicalSchema(avro.TimestampMicros))
	case KindLong:
		return avro.NewPrimitiveSchema(avro.Long, nil)
	case KindDouble:
		return avro.NewPrimitiveSchema(avro.Double, nil)
	case KindBoolean:
		return avro.NewPrimitiveSchema(avro.Boolean, nil)
	default:
		return avro.NewPrimitiveSchema(avro.String, nil)
	}
}
