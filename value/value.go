// Package value provides the tagged value model used throughout the
// ingestion engine.
//
// Incoming events arrive as decoded JSON. At the ingestion boundary every
// field is converted once into a Value, after which all type mapping and
// normalization logic switches exhaustively over the Value's Kind instead
// of probing runtime types. This keeps coercion rules in one place and
// makes the mappers total functions over a closed set of kinds.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the runtime kind of a Value.
type Kind int

const (
	// KindNull is the zero kind: an absent or explicit-null field.
	KindNull Kind = iota
	// KindBool is a JSON boolean.
	KindBool
	// KindInt is a JSON number with no fractional part.
	KindInt
	// KindFloat is a JSON number with a fractional part.
	KindFloat
	// KindString is a JSON string, or any non-scalar rendered as text.
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an immutable tagged variant holding one event field.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// FromAny converts a decoded JSON value into a Value.
//
// Numbers decoded with json.Decoder.UseNumber keep integer identity;
// plain float64 values are classified as KindInt when they carry no
// fractional part. Objects and arrays are rendered as their JSON text,
// matching the string fallback applied everywhere else in the engine.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t))
		}
		return Float(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		if f, err := t.Float64(); err == nil {
			return Float(f)
		}
		return String(t.String())
	default:
		if data, err := json.Marshal(v); err == nil {
			return String(string(data))
		}
		return String(fmt.Sprint(v))
	}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInt64 coerces the value to an int64.
// Floats truncate, booleans map to 0/1 and numeric strings parse.
// Reports false when no lossless-enough conversion exists.
func (v Value) AsInt64() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		return int64(v.f), true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindString:
		i, err := strconv.ParseInt(v.s, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// AsFloat64 coerces the value to a float64.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsBool returns the boolean payload. Only genuine booleans convert;
// everything else reports false, so a destination boolean column receives
// null rather than a guessed truthiness.
func (v Value) AsBool() (bool, bool) {
	if v.kind == KindBool {
		return v.b, true
	}
	return false, false
}

// AsText renders any non-null value as text.
func (v Value) AsText() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindInt:
		return strconv.FormatInt(v.i, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	default:
		return "", false
	}
}

// Str returns the string payload when the value is a string.
func (v Value) Str() (string, bool) {
	if v.kind == KindString {
		return v.s, true
	}
	return "", false
}

// Interface converts the value back into a plain Go value suitable for
// JSON encoding or warehouse row insertion.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Record is a flat event: field name to Value.
type Record map[string]Value

// FromMap converts a decoded JSON object into a Record.
func FromMap(m map[string]any) Record {
	rec := make(Record, len(m))
	for k, v := range m {
		rec[k] = FromAny(v)
	}
	return rec
}

// Get returns the value for key, or null when the key is absent.
func (r Record) Get(key string) Value {
	return r[key]
}

// Has reports whether the key is present, even with a null value.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Keys returns the record's field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ToMap converts the record back into a plain JSON-style map.
func (r Record) ToMap() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Interface()
	}
	return out
}
