// Package warehouse implements the hot path of the pipeline: contract
// fields are mapped to typed nullable columns, incoming records are
// completed to cover the full merged property map, and the destination
// table schema is evolved additively as new event shapes appear.
//
// Table access goes through the TableClient interface. The BigQuery
// implementation is the production backend; MemoryTable backs tests and
// lets them inject schema-update conflicts.
//
// # Basic Usage
//
//	store, _ := contract.Load(contract.DirSource{Dir: schemaDir})
//	table := warehouse.NewBigQueryTable(bqClient, dataset, "events")
//	loader := warehouse.NewLoader(store, table)
//
//	err := loader.Insert(ctx, rec)
package warehouse

import (
	"sort"
	"strings"

	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/value"
)

// ColumnType is a warehouse-native column type.
type ColumnType string

// Column types produced by the mapper. Every column is nullable; the
// mapper never emits a required column.
const (
	TypeString    ColumnType = "STRING"
	TypeInt64     ColumnType = "INT64"
	TypeNumeric   ColumnType = "NUMERIC"
	TypeBool      ColumnType = "BOOL"
	TypeTimestamp ColumnType = "TIMESTAMP"
)

// Column is one named, typed, nullable destination column.
type Column struct {
	Name string
	Type ColumnType
}

// ColumnTypeOf maps a contract property definition to a column type.
//
// String fields with format date-time become timestamps; string, integer,
// number and boolean map to their natural analogs. When the contract
// declares no usable type the field name decides: a *_ts suffix means
// timestamp, a *_id suffix means string, anything else defaults to string.
func ColumnTypeOf(name string, prop contract.Property) ColumnType {
	switch prop.PrimaryType() {
	case "string":
		if prop.Format == "date-time" {
			return TypeTimestamp
		}
		return TypeString
	case "integer":
		return TypeInt64
	case "number":
		return TypeNumeric
	case "boolean":
		return TypeBool
	}
	if strings.HasSuffix(name, "_ts") {
		return TypeTimestamp
	}
	if strings.HasSuffix(name, "_id") {
		return TypeString
	}
	return TypeString
}

// InferColumnType maps a runtime value to a column type, for producer
// fields that have no contract definition.
func InferColumnType(name string, v value.Value) ColumnType {
	switch v.Kind() {
	case value.KindBool:
		return TypeBool
	case value.KindInt:
		return TypeInt64
	case value.KindFloat:
		return TypeNumeric
	case value.KindString:
		if strings.HasSuffix(name, "_ts") {
			return TypeTimestamp
		}
		return TypeString
	default:
		return TypeString
	}
}

// DesiredColumns computes the full desired column set for one event:
// every merged contract field in declaration order, followed by any extra
// producer fields sorted by name. Extra fields are never dropped here;
// keeping them in the desired set is what drives additive evolution.
func DesiredColumns(props contract.Properties, rec value.Record) []Column {
	cols := make([]Column, 0, props.Len())
	for _, name := range props.Names() {
		def, _ := props.Get(name)
		cols = append(cols, Column{Name: name, Type: ColumnTypeOf(name, def)})
	}

	var extras []string
	for name := range rec {
		if !props.Has(name) {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		cols = append(cols, Column{Name: name, Type: InferColumnType(name, rec[name])})
	}
	return cols
}

// appendNewColumns merges desired columns into the existing set by name,
// appending only columns the table does not already have. Existing columns
// are never renamed, retyped or removed.
func appendNewColumns(existing, desired []Column) ([]Column, bool) {
	have := make(map[string]struct{}, len(existing))
	merged := make([]Column, len(existing), len(existing)+len(desired))
	copy(merged, existing)
	for _, col := range existing {
		have[col.Name] = struct{}{}
	}
	changed := false
	for _, col := range desired {
		if _, ok := have[col.Name]; ok {
			continue
		}
		have[col.Name] = struct{}{}
		merged = append(merged, col)
		changed = true
	}
	return merged, changed
}
