package coldstore

import (
	"time"

	"github.com/rbaliyan/relay/value"
)

// ToMicros parses an RFC 3339 timestamp into microseconds since the epoch.
func ToMicros(ts string) (int64, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return 0, err
	}
	return t.UnixMicro(), nil
}

// Normalize produces a row matching the record schema. Every planned field
// is present; coercion follows the destination kind:
//
//   - timestamp: a non-empty RFC 3339 string converts to int64 microseconds
//     since the epoch; anything missing or unparsable becomes null
//   - long/double/boolean: direct coercion of the raw value, null on failure
//   - string: null stays null, any other value is rendered as text
//
// Coercion never fails the record; a bad value degrades to null.
func Normalize(rec value.Record, fields []Field) map[string]any {
	row := make(map[string]any, len(fields))
	for _, f := range fields {
		v := rec.Get(f.Name)
		switch f.Kind {
		case KindTimestamp:
			s, ok := v.Str()
			if !ok || s == "" {
				row[f.Name] = nil
				break
			}
			micros, err := ToMicros(s)
			if err != nil {
				row[f.Name] = nil
				break
			}
			row[f.Name] = micros
		case KindLong:
			if i, ok := v.AsInt64(); ok {
				row[f.Name] = i
			} else {
				row[f.Name] = nil
			}
		case KindDouble:
			if fl, ok := v.AsFloat64(); ok {
				row[f.Name] = fl
			} else {
				row[f.Name] = nil
			}
		case KindBoolean:
			if b, ok := v.AsBool(); ok {
				row[f.Name] = b
			} else {
				row[f.Name] = nil
			}
		default:
			if s, ok := v.AsText(); ok {
				row[f.Name] = s
			} else {
				row[f.Name] = nil
			}
		}
	}
	return row
}
