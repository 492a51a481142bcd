// Package parser defines the batch contract shared by the tabular and
// hierarchical source parsers. Parsers never buffer a whole file: they emit
// fixed-size batches of raw records through an EmitFunc and report how many
// source rows each batch consumed, which is what checkpointed resume is
// keyed on.
package parser

import (
	"context"

	"tmbulk/pkg/records"
)

// Batch is one parser emission. RowsConsumed is the cumulative count of
// source rows (or source elements, for hierarchical files) consumed up to and
// including this batch; it is monotonically increasing within a file.
type Batch struct {
	Seq          int
	Records      []records.Record
	RowsConsumed int64
}

// EmitFunc receives parsed batches. Returning an error aborts the parse;
// the parser propagates it unchanged.
type EmitFunc func(ctx context.Context, b Batch) error

// RowErrorFunc receives recoverable per-row errors. The row is dropped and
// the stream continues.
type RowErrorFunc func(line int64, err error)
