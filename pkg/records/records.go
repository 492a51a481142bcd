// Package records defines the record type shared by the parsers, the field
// normalizer, the checkpoint manager, and the storage backends.
//
// A Record is a loose mapping of column name to scalar value (string, int64,
// or nil). Parsers produce raw records keyed by source field names; the
// normalizer rewrites them into canonical records keyed by destination
// columns. Keeping a single map type across both stages avoids conversion
// layers at every pipeline boundary.
package records

// Record maps a column name to a scalar value. A nil value means SQL NULL.
type Record map[string]any

// Clone returns a shallow copy of r. Values are scalars, so a shallow copy
// is a full copy for pipeline purposes.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Columns returns the union of keys across recs. Order is unspecified.
func Columns(recs []Record) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range recs {
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				cols = append(cols, k)
			}
		}
	}
	return cols
}
