// Package ledger defines the processing ledger vocabulary: the per-file
// lifecycle recorded in the destination store. Persistence lives in the
// storage backends; this package only carries the types and the skip rule.
package ledger

import "time"

// Status is a file's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Entry is one ledger row: the processing history of a (dataset, file) pair.
type Entry struct {
	Dataset       string
	File          string
	Status        Status
	RowsProcessed int64
	RowsLoaded    int64
	Batches       int64
	ErrorMessage  string
	StartedAt     time.Time
	CompletedAt   time.Time
	UpdatedAt     time.Time
}

// Counters are the final tallies recorded when a file completes.
// RowsProcessed counts source rows consumed, including malformed and
// unkeyed rows that never reached the store; RowsLoaded counts rows the
// store reported written; Batches counts the load batches executed.
type Counters struct {
	RowsProcessed int64
	RowsLoaded    int64
	Batches       int64
}

// ShouldSkip reports whether a file can be skipped on this run. Completed
// files are skipped unless the run forces reprocessing; every other state
// (including a previous error) is retried.
func ShouldSkip(e Entry, found, force bool) bool {
	return found && !force && e.Status == StatusCompleted
}
