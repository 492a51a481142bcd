package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tmbulk/internal/metrics"
	"tmbulk/internal/schema"
	"tmbulk/pkg/records"
)

// Loader feeds canonical record batches into a Store. It intersects each
// batch's keys with the destination table's live columns, so a record field
// the table does not carry is dropped rather than failing the load.
type Loader struct {
	store Store
	log   zerolog.Logger

	mu   sync.Mutex
	live map[string]map[string]struct{} // table -> live column set
}

// NewLoader returns a Loader writing through store.
func NewLoader(store Store, log zerolog.Logger) *Loader {
	return &Loader{
		store: store,
		log:   log,
		live:  make(map[string]map[string]struct{}),
	}
}

// liveSet returns the cached live column set for table, querying the store
// on first use.
func (l *Loader) liveSet(ctx context.Context, table string) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if set, ok := l.live[table]; ok {
		return set, nil
	}
	cols, err := l.store.LiveColumns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("live columns for %s: %w", table, err)
	}
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[c] = struct{}{}
	}
	l.live[table] = set
	return set, nil
}

// LoadBatch writes one batch of canonical records and returns the number of
// rows written or refreshed. An empty batch is a no-op.
func (l *Loader) LoadBatch(ctx context.Context, desc schema.Descriptor, recs []records.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	live, err := l.liveSet(ctx, desc.Table)
	if err != nil {
		return 0, err
	}
	for _, k := range desc.KeyColumns {
		if _, ok := live[k]; !ok {
			return 0, fmt.Errorf("table %s: key column %q missing from live schema", desc.Table, k)
		}
	}

	// Column order follows the descriptor so loads are deterministic.
	used := make(map[string]struct{})
	for _, r := range recs {
		for k := range r {
			if _, ok := live[k]; ok {
				used[k] = struct{}{}
			}
		}
	}
	for _, k := range desc.KeyColumns {
		used[k] = struct{}{}
	}
	cols := make([]string, 0, len(used))
	for _, c := range desc.ColumnNames() {
		if _, ok := used[c]; ok {
			cols = append(cols, c)
		}
	}

	rows := make([][]any, len(recs))
	for i, rec := range recs {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = rec[c]
		}
		rows[i] = row
	}

	start := time.Now()
	n, err := l.store.Upsert(ctx, desc, cols, rows)
	if err != nil {
		return 0, fmt.Errorf("upsert into %s: %w", desc.Table, err)
	}
	dur := time.Since(start)
	metrics.ObserveLoad(desc.ID, len(recs), dur)

	secs := dur.Seconds()
	if secs < 0.001 {
		secs = 0.001
	}
	rps := float64(len(recs)) / secs
	l.log.Debug().
		Str("table", desc.Table).
		Int("batch", len(recs)).
		Int64("written", n).
		Dur("took", dur).
		Float64("rps", rps).
		Msg("batch loaded")
	return n, nil
}
