// Package schema holds the static dataset registry: for every supported bulk
// dataset it records the destination table, the canonical column set, the
// source-field alias table, the record-extraction strategy, and the conflict
// policy used by the batch loader.
//
// The registry is pure data. It is populated at init time and never mutated;
// resolving an unknown dataset identifier is a configuration error, not a
// per-record error.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownDataset is returned by Resolve for identifiers the registry does
// not know about.
var ErrUnknownDataset = errors.New("unknown dataset identifier")

// Strategy selects how the hierarchical parser turns a matched source element
// into destination records. Tabular sources always behave like StrategyFlat.
type Strategy string

const (
	// StrategyFlat emits one record per matched element (or per tabular row),
	// taking every direct child text value as a field.
	StrategyFlat Strategy = "flat"

	// StrategyNestedSingle probes a fixed set of nested subtrees and emits
	// exactly one record per matched element.
	StrategyNestedSingle Strategy = "nested-single"

	// StrategyNestedFanout extracts base fields once and emits one record per
	// entry of a repeating sub-collection. An element with an empty
	// sub-collection emits nothing.
	StrategyNestedFanout Strategy = "nested-fanout"
)

// ConflictPolicy selects how the batch loader resolves key collisions.
type ConflictPolicy string

const (
	// ConflictIgnore skips rows whose natural key already exists
	// (write-once datasets such as yearly snapshots).
	ConflictIgnore ConflictPolicy = "ignore"

	// ConflictUpdate refreshes the descriptor's UpdateColumns on collision
	// (slowly-changing datasets such as daily files).
	ConflictUpdate ConflictPolicy = "update"
)

// ColType is a portable column type rendered into backend-specific DDL by the
// storage packages.
type ColType string

const (
	TypeText   ColType = "text"
	TypeBigInt ColType = "bigint"
	TypeInt    ColType = "integer"
	TypeDate   ColType = "date"
	// TypeFlag is a two-valued 'T'/'F' indicator stored as a single character.
	TypeFlag ColType = "flag"
)

// Column describes one destination column.
type Column struct {
	Name string
	Type ColType
}

// Descriptor is the immutable description of one dataset.
type Descriptor struct {
	// ID is the catalog product identifier, e.g. "TRTDXFAP".
	ID string

	// Table is the destination table name.
	Table string

	// Title is the human-readable dataset title (informational only).
	Title string

	// RecordTag is the local name of the XML element that delimits one source
	// record. Empty for tabular-only datasets.
	RecordTag string

	// AltRecordTags are additional record element names accepted alongside
	// RecordTag, for products whose releases renamed the element.
	AltRecordTags []string

	// Columns is the canonical destination column set, in DDL order.
	Columns []Column

	// Aliases maps cleaned source field names to canonical column names.
	// Keys not present here and not in Columns are dropped by the normalizer.
	Aliases map[string]string

	// Strategy selects the extraction strategy for hierarchical sources.
	Strategy Strategy

	// KeyColumns is the natural identifier used for idempotent loads.
	// Never the internal auto-increment key.
	KeyColumns []string

	// Conflict is the loader's collision policy.
	Conflict ConflictPolicy

	// UpdateColumns lists the columns refreshed when Conflict is
	// ConflictUpdate. Ignored otherwise.
	UpdateColumns []string

	// Latin1 marks tabular sources delivered as ISO 8859-1 rather than
	// UTF-8.
	Latin1 bool
}

// ColumnNames returns the descriptor's column names in DDL order.
func (d Descriptor) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// ColumnSet returns the destination column set for membership tests.
func (d Descriptor) ColumnSet() map[string]struct{} {
	set := make(map[string]struct{}, len(d.Columns))
	for _, c := range d.Columns {
		set[c.Name] = struct{}{}
	}
	return set
}

// ColumnType returns the declared type for name, or TypeText when the column
// is not part of the descriptor.
func (d Descriptor) ColumnType(name string) ColType {
	for _, c := range d.Columns {
		if c.Name == name {
			return c.Type
		}
	}
	return TypeText
}

// Resolve returns the descriptor for the given dataset identifier.
// Identifiers are case-insensitive.
func Resolve(id string) (Descriptor, error) {
	d, ok := registry[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return Descriptor{}, fmt.Errorf("resolve %q: %w", id, ErrUnknownDataset)
	}
	return d, nil
}

// All returns every registered descriptor. The slice is a copy; callers may
// not mutate registry state through it.
func All() []Descriptor {
	out := make([]Descriptor, 0, len(registry))
	for _, id := range registryOrder {
		out = append(out, registry[id])
	}
	return out
}

// Known reports whether id resolves to a registered dataset.
func Known(id string) bool {
	_, ok := registry[strings.ToUpper(strings.TrimSpace(id))]
	return ok
}
