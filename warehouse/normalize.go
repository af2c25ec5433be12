package warehouse

import (
	"github.com/rbaliyan/relay/contract"
	"github.com/rbaliyan/relay/value"
)

// FillMissing completes a record against the merged property map: every
// contract field absent from the raw event is set to explicit null, so the
// emitted row covers the full destination schema regardless of field order
// or producer omissions. Extra producer fields pass through untouched.
func FillMissing(rec value.Record, props contract.Properties) value.Record {
	filled := rec.Clone()
	for _, name := range props.Names() {
		if !filled.Has(name) {
			filled[name] = value.Null()
		}
	}
	return filled
}
