// Package postgres implements the destination store on Postgres using pgx
// v5. Batch loads COPY into a session temp table and upsert from there into
// the target table, so a batch is one round trip regardless of size.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tmbulk/internal/ledger"
	"tmbulk/internal/schema"
	"tmbulk/internal/storage"
)

// Store is a Postgres-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool and pings it.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

func colDDL(c schema.Column) string {
	var t string
	switch c.Type {
	case schema.TypeBigInt:
		t = "BIGINT"
	case schema.TypeInt:
		t = "INTEGER"
	case schema.TypeDate:
		t = "DATE"
	case schema.TypeFlag:
		t = "CHAR(1)"
	default:
		t = "TEXT"
	}
	return pgIdent(c.Name) + " " + t
}

// EnsureControl creates the dataset registry and the file ledger.
func (s *Store) EnsureControl(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bulk_datasets (
			dataset_id     TEXT PRIMARY KEY,
			title          TEXT,
			table_name     TEXT NOT NULL,
			schema_created BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS file_ledger (
			id             BIGSERIAL PRIMARY KEY,
			dataset_id     TEXT NOT NULL,
			file_name      TEXT NOT NULL,
			status         TEXT NOT NULL,
			rows_processed BIGINT NOT NULL DEFAULT 0,
			rows_loaded    BIGINT NOT NULL DEFAULT 0,
			batch_count    BIGINT NOT NULL DEFAULT 0,
			error_message  TEXT,
			started_at     TIMESTAMPTZ,
			completed_at   TIMESTAMPTZ,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (dataset_id, file_name)
		)`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure control tables: %w", err)
		}
	}
	return nil
}

// RegisterDataset creates the destination table when missing and records the
// dataset in the registry.
func (s *Store) RegisterDataset(ctx context.Context, desc schema.Descriptor) error {
	cols := make([]string, 0, len(desc.Columns)+1)
	cols = append(cols, `id BIGSERIAL PRIMARY KEY`)
	for _, c := range desc.Columns {
		cols = append(cols, colDDL(c))
	}
	cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(mapIdent(desc.KeyColumns), ", ")))
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		pgIdent(desc.Table), strings.Join(cols, ",\n\t"))
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", desc.Table, err)
	}

	reg := `INSERT INTO bulk_datasets (dataset_id, title, table_name, schema_created, updated_at)
		VALUES ($1, $2, $3, TRUE, now())
		ON CONFLICT (dataset_id) DO UPDATE
		SET title = EXCLUDED.title, table_name = EXCLUDED.table_name,
		    schema_created = TRUE, updated_at = now()`
	if _, err := s.pool.Exec(ctx, reg, desc.ID, desc.Title, desc.Table); err != nil {
		return fmt.Errorf("register dataset %s: %w", desc.ID, err)
	}
	return nil
}

// LiveColumns reads the table's column set from information_schema.
func (s *Store) LiveColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("table %s: %w", table, storage.ErrNotFound)
	}
	return out, nil
}

// Upsert COPYs rows into a temp table and inserts from there with the
// descriptor's conflict policy.
func (s *Store) Upsert(ctx context.Context, desc schema.Descriptor, cols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tmp := "tmp_" + desc.Table
	create := fmt.Sprintf(
		"CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WHERE false",
		pgIdent(tmp), strings.Join(mapIdent(cols), ", "), pgIdent(desc.Table),
	)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tmp}, cols, pgx.CopyFromRows(rows)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("copy into temp: %s (%s)", pgErr.Detail, pgErr.SQLState())
		}
		return 0, fmt.Errorf("copy into temp: %w", err)
	}

	keyList := strings.Join(mapIdent(desc.KeyColumns), ", ")
	var conflict string
	switch desc.Conflict {
	case schema.ConflictUpdate:
		sets := updateSet(desc.UpdateColumns, cols)
		if len(sets) == 0 {
			conflict = "DO NOTHING"
		} else {
			conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
		}
	default:
		conflict = "DO NOTHING"
	}

	// DISTINCT ON guards against a batch carrying the same natural key
	// twice, which ON CONFLICT DO UPDATE rejects.
	insert := fmt.Sprintf(
		`INSERT INTO %s (%s)
		 SELECT DISTINCT ON (%s) %s FROM %s
		 ON CONFLICT (%s) %s`,
		pgIdent(desc.Table), strings.Join(mapIdent(cols), ", "),
		keyList, strings.Join(mapIdent(cols), ", "), pgIdent(tmp),
		keyList, conflict,
	)
	tag, err := tx.Exec(ctx, insert)
	if err != nil {
		return 0, fmt.Errorf("insert phase: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// updateSet renders "col = EXCLUDED.col" for the update columns that are
// actually present in this batch.
func updateSet(updateCols, batchCols []string) []string {
	present := make(map[string]struct{}, len(batchCols))
	for _, c := range batchCols {
		present[c] = struct{}{}
	}
	var out []string
	for _, c := range updateCols {
		if _, ok := present[c]; ok {
			out = append(out, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(c), pgIdent(c)))
		}
	}
	return out
}

// MarkProcessing upserts the ledger row to processing. The CASE keeps a
// completed row completed.
func (s *Store) MarkProcessing(ctx context.Context, dataset, file string) error {
	q := `INSERT INTO file_ledger (dataset_id, file_name, status, started_at, updated_at)
		VALUES ($1, $2, 'processing', now(), now())
		ON CONFLICT (dataset_id, file_name) DO UPDATE
		SET status = CASE WHEN file_ledger.status = 'completed'
		                  THEN file_ledger.status ELSE 'processing' END,
		    started_at = CASE WHEN file_ledger.status = 'completed'
		                  THEN file_ledger.started_at ELSE now() END,
		    error_message = NULL,
		    updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, dataset, file); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// MarkCompleted finalizes the ledger row.
func (s *Store) MarkCompleted(ctx context.Context, dataset, file string, c ledger.Counters) error {
	q := `INSERT INTO file_ledger (dataset_id, file_name, status, rows_processed, rows_loaded, batch_count, completed_at, updated_at)
		VALUES ($1, $2, 'completed', $3, $4, $5, now(), now())
		ON CONFLICT (dataset_id, file_name) DO UPDATE
		SET status = 'completed', rows_processed = EXCLUDED.rows_processed,
		    rows_loaded = EXCLUDED.rows_loaded, batch_count = EXCLUDED.batch_count,
		    error_message = NULL, completed_at = now(), updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, dataset, file, c.RowsProcessed, c.RowsLoaded, c.Batches); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkError records a failure. A completed row is never downgraded.
func (s *Store) MarkError(ctx context.Context, dataset, file, msg string) error {
	q := `INSERT INTO file_ledger (dataset_id, file_name, status, error_message, updated_at)
		VALUES ($1, $2, 'error', $3, now())
		ON CONFLICT (dataset_id, file_name) DO UPDATE
		SET status = CASE WHEN file_ledger.status = 'completed'
		                  THEN file_ledger.status ELSE 'error' END,
		    error_message = CASE WHEN file_ledger.status = 'completed'
		                  THEN file_ledger.error_message ELSE EXCLUDED.error_message END,
		    updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, dataset, file, msg); err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return nil
}

// LedgerGet returns one ledger entry.
func (s *Store) LedgerGet(ctx context.Context, dataset, file string) (ledger.Entry, error) {
	q := `SELECT dataset_id, file_name, status, rows_processed, rows_loaded, batch_count,
	             COALESCE(error_message, ''),
	             COALESCE(started_at, 'epoch'::timestamptz),
	             COALESCE(completed_at, 'epoch'::timestamptz),
	             updated_at
	      FROM file_ledger WHERE dataset_id = $1 AND file_name = $2`
	var e ledger.Entry
	err := s.pool.QueryRow(ctx, q, dataset, file).Scan(
		&e.Dataset, &e.File, &e.Status, &e.RowsProcessed, &e.RowsLoaded, &e.Batches,
		&e.ErrorMessage, &e.StartedAt, &e.CompletedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, storage.ErrNotFound
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("ledger get: %w", err)
	}
	return e, nil
}

// LedgerList returns the dataset's entries, newest first.
func (s *Store) LedgerList(ctx context.Context, dataset string) ([]ledger.Entry, error) {
	q := `SELECT dataset_id, file_name, status, rows_processed, rows_loaded, batch_count,
	             COALESCE(error_message, ''),
	             COALESCE(started_at, 'epoch'::timestamptz),
	             COALESCE(completed_at, 'epoch'::timestamptz),
	             updated_at
	      FROM file_ledger WHERE dataset_id = $1 ORDER BY updated_at DESC`
	rows, err := s.pool.Query(ctx, q, dataset)
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	defer rows.Close()
	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.Dataset, &e.File, &e.Status, &e.RowsProcessed, &e.RowsLoaded,
			&e.Batches, &e.ErrorMessage, &e.StartedAt, &e.CompletedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// pgIdent safely quotes a single identifier segment.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// mapIdent maps column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
