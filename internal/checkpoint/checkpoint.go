// Package checkpoint persists per-file parse progress and a staging log of
// batches that were parsed but not yet confirmed loaded. Together they make
// an interrupted file resumable without re-parsing already-loaded rows and
// without losing rows that were parsed but never reached the destination.
//
// State lives under a single directory, two files per (dataset, file) pair:
//
//	<key>.checkpoint.json  parse counters
//	<key>.staged.ndjson    one batch's records, newline-delimited JSON
//
// Writes go through a temp file and rename, so a crash never leaves a
// half-written checkpoint behind.
package checkpoint

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"tmbulk/pkg/records"
)

// State is the persisted parse position of one file.
type State struct {
	Dataset string `json:"dataset"`
	File    string `json:"file"`

	// RowsConsumed is how many source rows (or elements) have been parsed
	// and handed off, including any rows currently in the staging log.
	RowsConsumed int64 `json:"rows_consumed"`

	// RowsSaved is how many of those rows are confirmed loaded. It trails
	// RowsConsumed while a batch is in flight and catches up when the batch
	// commits.
	RowsSaved int64 `json:"rows_saved"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Manager reads and writes checkpoint state under a single directory.
type Manager struct {
	dir string
}

// NewManager creates the state directory if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// key builds a filesystem-safe, content-stable name for the pair. The hash
// suffix keeps distinct pairs distinct even after sanitization collapses
// their names.
func (m *Manager) key(dataset, file string) string {
	raw := dataset + "\x00" + file
	sum := xxh3.HashString(raw)
	san := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
				b.WriteRune(r)
			default:
				b.WriteByte('_')
			}
		}
		return b.String()
	}
	return fmt.Sprintf("%s__%s__%016x", san(dataset), san(file), sum)
}

func (m *Manager) checkpointPath(dataset, file string) string {
	return filepath.Join(m.dir, m.key(dataset, file)+".checkpoint.json")
}

func (m *Manager) stagedPath(dataset, file string) string {
	return filepath.Join(m.dir, m.key(dataset, file)+".staged.ndjson")
}

// Load returns the persisted state, or a zero-progress state when none
// exists.
func (m *Manager) Load(dataset, file string) (State, error) {
	b, err := os.ReadFile(m.checkpointPath(dataset, file))
	if errors.Is(err, fs.ErrNotExist) {
		return State{Dataset: dataset, File: file}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return st, nil
}

// Save atomically persists st.
func (m *Manager) Save(st State) error {
	st.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return writeAtomic(m.checkpointPath(st.Dataset, st.File), b)
}

// AppendStaged replaces the staging log with the given batch. Only one batch
// is ever in flight per file, so the log never grows past a batch.
func (m *Manager) AppendStaged(dataset, file string, recs []records.Record) error {
	path := m.stagedPath(dataset, file)
	f, err := os.OpenFile(path+".tmp", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open staging log: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			f.Close()
			return fmt.Errorf("stage record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush staging log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync staging log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close staging log: %w", err)
	}
	return os.Rename(path+".tmp", path)
}

// ReadStaged returns the staged batch, or nil when nothing is staged.
func (m *Manager) ReadStaged(dataset, file string) ([]records.Record, error) {
	f, err := os.Open(m.stagedPath(dataset, file))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open staging log: %w", err)
	}
	defer f.Close()

	var out []records.Record
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var r records.Record
		if err := dec.Decode(&r); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, fmt.Errorf("decode staged record: %w", err)
		}
		out = append(out, r)
	}
}

// HasStaged reports whether a staged batch exists for the pair.
func (m *Manager) HasStaged(dataset, file string) bool {
	_, err := os.Stat(m.stagedPath(dataset, file))
	return err == nil
}

// ClearStaged removes the staging log after its batch is confirmed loaded.
func (m *Manager) ClearStaged(dataset, file string) error {
	err := os.Remove(m.stagedPath(dataset, file))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear staging log: %w", err)
	}
	return nil
}

// Clear removes all state for the pair; called when a file completes.
func (m *Manager) Clear(dataset, file string) error {
	if err := m.ClearStaged(dataset, file); err != nil {
		return err
	}
	err := os.Remove(m.checkpointPath(dataset, file))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit %s: %w", filepath.Base(path), err)
	}
	return nil
}
