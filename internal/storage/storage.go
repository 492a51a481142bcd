// Package storage defines the destination store contract and the batch
// loader that feeds it. Backends live in the postgres and sqlite
// subpackages; both create the same control tables (bulk_datasets,
// file_ledger) and the per-dataset destination tables, and both implement
// the same idempotent upsert keyed on each dataset's natural identifier.
package storage

import (
	"context"
	"errors"

	"tmbulk/internal/ledger"
	"tmbulk/internal/schema"
)

// ErrNotFound is returned by ledger lookups for unknown (dataset, file)
// pairs.
var ErrNotFound = errors.New("not found")

// Store is a destination database. Implementations are safe for concurrent
// use.
type Store interface {
	// EnsureControl creates the control tables when missing.
	EnsureControl(ctx context.Context) error

	// RegisterDataset creates the dataset's destination table when missing
	// and records the dataset in bulk_datasets with schema_created set.
	RegisterDataset(ctx context.Context, desc schema.Descriptor) error

	// LiveColumns returns the destination table's actual column set, as the
	// database reports it. Loads intersect against this so a batch never
	// references a column the table does not have.
	LiveColumns(ctx context.Context, table string) ([]string, error)

	// Upsert loads rows (aligned to cols) into the dataset's table,
	// resolving natural-key collisions per the descriptor's conflict
	// policy. It returns the number of rows written or refreshed; loading
	// the same batch twice leaves the table unchanged.
	Upsert(ctx context.Context, desc schema.Descriptor, cols []string, rows [][]any) (int64, error)

	// MarkProcessing upserts the ledger entry to processing. A completed
	// entry is never downgraded.
	MarkProcessing(ctx context.Context, dataset, file string) error

	// MarkCompleted marks the entry completed with its final counters.
	MarkCompleted(ctx context.Context, dataset, file string, c ledger.Counters) error

	// MarkError records a failure message. A completed entry is never
	// downgraded.
	MarkError(ctx context.Context, dataset, file, msg string) error

	// LedgerGet returns the ledger entry, or ErrNotFound.
	LedgerGet(ctx context.Context, dataset, file string) (ledger.Entry, error)

	// LedgerList returns every entry for the dataset, newest first.
	LedgerList(ctx context.Context, dataset string) ([]ledger.Entry, error)

	Close()
}
