// Package sqlite implements the destination store on SQLite via the
// modernc.org driver (no cgo). It serves local runs and tests; semantics
// match the postgres backend, including the ledger's never-downgrade rule.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tmbulk/internal/ledger"
	"tmbulk/internal/schema"
	"tmbulk/internal/storage"
)

// Store is a SQLite-backed storage.Store.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path. ":memory:" works for
// tests.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The driver opens lazily; force the file into existence and keep a
	// single connection so :memory: databases survive across calls.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the handle.
func (s *Store) Close() { s.db.Close() }

func colDDL(c schema.Column) string {
	t := "TEXT"
	switch c.Type {
	case schema.TypeBigInt, schema.TypeInt:
		t = "INTEGER"
	}
	return quoteIdent(c.Name) + " " + t
}

// EnsureControl creates the dataset registry and the file ledger.
func (s *Store) EnsureControl(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bulk_datasets (
			dataset_id     TEXT PRIMARY KEY,
			title          TEXT,
			table_name     TEXT NOT NULL,
			schema_created INTEGER NOT NULL DEFAULT 0,
			updated_at     TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS file_ledger (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			dataset_id     TEXT NOT NULL,
			file_name      TEXT NOT NULL,
			status         TEXT NOT NULL,
			rows_processed INTEGER NOT NULL DEFAULT 0,
			rows_loaded    INTEGER NOT NULL DEFAULT 0,
			batch_count    INTEGER NOT NULL DEFAULT 0,
			error_message  TEXT,
			started_at     TEXT,
			completed_at   TEXT,
			updated_at     TEXT NOT NULL,
			UNIQUE (dataset_id, file_name)
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure control tables: %w", err)
		}
	}
	return nil
}

// RegisterDataset creates the destination table when missing and records the
// dataset in the registry.
func (s *Store) RegisterDataset(ctx context.Context, desc schema.Descriptor) error {
	cols := make([]string, 0, len(desc.Columns)+2)
	cols = append(cols, `id INTEGER PRIMARY KEY AUTOINCREMENT`)
	for _, c := range desc.Columns {
		cols = append(cols, colDDL(c))
	}
	cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(quoteAll(desc.KeyColumns), ", ")))
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quoteIdent(desc.Table), strings.Join(cols, ",\n\t"))
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", desc.Table, err)
	}

	reg := `INSERT INTO bulk_datasets (dataset_id, title, table_name, schema_created, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (dataset_id) DO UPDATE
		SET title = excluded.title, table_name = excluded.table_name,
		    schema_created = 1, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, reg, desc.ID, desc.Title, desc.Table, nowUTC()); err != nil {
		return fmt.Errorf("register dataset %s: %w", desc.ID, err)
	}
	return nil
}

// LiveColumns reads the table's column set via PRAGMA table_info.
func (s *Store) LiveColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table_info: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("table %s: %w", table, storage.ErrNotFound)
	}
	return out, nil
}

// TableStats returns the table's row count and an order-independent
// checksum of its natural identifiers, for verifying that reruns and
// resumed runs leave the table byte-for-byte equivalent.
func (s *Store) TableStats(ctx context.Context, table, keyColumn string) (int64, string, error) {
	q := fmt.Sprintf(
		"SELECT COUNT(*), COALESCE(group_concat(k), '') FROM (SELECT %s AS k FROM %s ORDER BY k)",
		quoteIdent(keyColumn), quoteIdent(table),
	)
	var (
		count    int64
		checksum string
	)
	if err := s.db.QueryRowContext(ctx, q).Scan(&count, &checksum); err != nil {
		return 0, "", fmt.Errorf("table stats %s: %w", table, err)
	}
	return count, checksum, nil
}

// maxBindVars keeps multi-row inserts under SQLite's default host
// parameter ceiling.
const maxBindVars = 900

// Upsert inserts rows in chunks inside one transaction, resolving key
// collisions per the descriptor's conflict policy.
func (s *Store) Upsert(ctx context.Context, desc schema.Descriptor, cols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	keyList := strings.Join(quoteAll(desc.KeyColumns), ", ")
	conflict := "DO NOTHING"
	if desc.Conflict == schema.ConflictUpdate {
		if sets := updateSet(desc.UpdateColumns, cols); len(sets) > 0 {
			conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
		}
	}

	rowsPerStmt := maxBindVars / len(cols)
	if rowsPerStmt < 1 {
		rowsPerStmt = 1
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"

	var written int64
	for start := 0; start < len(rows); start += rowsPerStmt {
		end := start + rowsPerStmt
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		values := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*len(cols))
		for i, row := range chunk {
			values[i] = placeholder
			args = append(args, row...)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) %s",
			quoteIdent(desc.Table), strings.Join(quoteAll(cols), ", "),
			strings.Join(values, ", "), keyList, conflict)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert chunk: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		written += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

func updateSet(updateCols, batchCols []string) []string {
	present := make(map[string]struct{}, len(batchCols))
	for _, c := range batchCols {
		present[c] = struct{}{}
	}
	var out []string
	for _, c := range updateCols {
		if _, ok := present[c]; ok {
			out = append(out, fmt.Sprintf("%s = excluded.%s", quoteIdent(c), quoteIdent(c)))
		}
	}
	return out
}

// MarkProcessing upserts the ledger row to processing without downgrading a
// completed row.
func (s *Store) MarkProcessing(ctx context.Context, dataset, file string) error {
	q := `INSERT INTO file_ledger (dataset_id, file_name, status, started_at, updated_at)
		VALUES (?, ?, 'processing', ?, ?)
		ON CONFLICT (dataset_id, file_name) DO UPDATE
		SET status = CASE WHEN file_ledger.status = 'completed'
		                  THEN file_ledger.status ELSE 'processing' END,
		    started_at = CASE WHEN file_ledger.status = 'completed'
		                  THEN file_ledger.started_at ELSE excluded.started_at END,
		    error_message = NULL,
		    updated_at = excluded.updated_at`
	now := nowUTC()
	if _, err := s.db.ExecContext(ctx, q, dataset, file, now, now); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// MarkCompleted finalizes the ledger row.
func (s *Store) MarkCompleted(ctx context.Context, dataset, file string, c ledger.Counters) error {
	q := `INSERT INTO file_ledger (dataset_id, file_name, status, rows_processed, rows_loaded, batch_count, completed_at, updated_at)
		VALUES (?, ?, 'completed', ?, ?, ?, ?, ?)
		ON CONFLICT (dataset_id, file_name) DO UPDATE
		SET status = 'completed', rows_processed = excluded.rows_processed,
		    rows_loaded = excluded.rows_loaded, batch_count = excluded.batch_count,
		    error_message = NULL, completed_at = excluded.completed_at,
		    updated_at = excluded.updated_at`
	now := nowUTC()
	if _, err := s.db.ExecContext(ctx, q, dataset, file, c.RowsProcessed, c.RowsLoaded, c.Batches, now, now); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkError records a failure without downgrading a completed row.
func (s *Store) MarkError(ctx context.Context, dataset, file, msg string) error {
	q := `INSERT INTO file_ledger (dataset_id, file_name, status, error_message, updated_at)
		VALUES (?, ?, 'error', ?, ?)
		ON CONFLICT (dataset_id, file_name) DO UPDATE
		SET status = CASE WHEN file_ledger.status = 'completed'
		                  THEN file_ledger.status ELSE 'error' END,
		    error_message = CASE WHEN file_ledger.status = 'completed'
		                  THEN file_ledger.error_message ELSE excluded.error_message END,
		    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, dataset, file, msg, nowUTC()); err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return nil
}

const ledgerSelect = `SELECT dataset_id, file_name, status, rows_processed,
	rows_loaded, batch_count, COALESCE(error_message, ''),
	COALESCE(started_at, ''), COALESCE(completed_at, ''), updated_at
	FROM file_ledger`

func scanEntry(scan func(dest ...any) error) (ledger.Entry, error) {
	var (
		e                               ledger.Entry
		status, started, completed, upd string
	)
	if err := scan(&e.Dataset, &e.File, &status, &e.RowsProcessed, &e.RowsLoaded,
		&e.Batches, &e.ErrorMessage, &started, &completed, &upd); err != nil {
		return ledger.Entry{}, err
	}
	e.Status = ledger.Status(status)
	e.StartedAt = parseTime(started)
	e.CompletedAt = parseTime(completed)
	e.UpdatedAt = parseTime(upd)
	return e, nil
}

// LedgerGet returns one ledger entry.
func (s *Store) LedgerGet(ctx context.Context, dataset, file string) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx, ledgerSelect+` WHERE dataset_id = ? AND file_name = ?`, dataset, file)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, storage.ErrNotFound
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("ledger get: %w", err)
	}
	return e, nil
}

// LedgerList returns the dataset's entries, newest first.
func (s *Store) LedgerList(ctx context.Context, dataset string) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, ledgerSelect+` WHERE dataset_id = ? ORDER BY updated_at DESC, id DESC`, dataset)
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	defer rows.Close()
	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func nowUTC() string { return time.Now().UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// quoteIdent safely quotes an identifier.
func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c)
	}
	return out
}
