package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"tmbulk/internal/ledger"
	"tmbulk/internal/schema"
	"tmbulk/pkg/records"
)

type fakeStore struct {
	liveCols  []string
	liveCalls int

	upsertDesc schema.Descriptor
	upsertCols []string
	upsertRows [][]any
	upsertErr  error
}

func (f *fakeStore) EnsureControl(context.Context) error                       { return nil }
func (f *fakeStore) RegisterDataset(context.Context, schema.Descriptor) error  { return nil }
func (f *fakeStore) MarkProcessing(context.Context, string, string) error      { return nil }
func (f *fakeStore) MarkCompleted(context.Context, string, string, ledger.Counters) error {
	return nil
}
func (f *fakeStore) MarkError(context.Context, string, string, string) error   { return nil }
func (f *fakeStore) Close()                                                    {}

func (f *fakeStore) LedgerGet(context.Context, string, string) (ledger.Entry, error) {
	return ledger.Entry{}, ErrNotFound
}

func (f *fakeStore) LedgerList(context.Context, string) ([]ledger.Entry, error) {
	return nil, nil
}

func (f *fakeStore) LiveColumns(context.Context, string) ([]string, error) {
	f.liveCalls++
	return f.liveCols, nil
}

func (f *fakeStore) Upsert(_ context.Context, desc schema.Descriptor, cols []string, rows [][]any) (int64, error) {
	f.upsertDesc, f.upsertCols, f.upsertRows = desc, cols, rows
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	return int64(len(rows)), nil
}

func ttabDesc(t *testing.T) schema.Descriptor {
	t.Helper()
	d, err := schema.Resolve("TTABYR")
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestLoadBatchIntersectsLiveColumns(t *testing.T) {
	// Live table lacks goods_services; records carry a field the
	// destination does not: both sides get intersected away.
	fs := &fakeStore{liveCols: []string{"proceeding_number", "proceeding_type", "status"}}
	l := NewLoader(fs, zerolog.Nop())

	recs := []records.Record{
		{"proceeding_number": "91000001", "proceeding_type": "OPP", "goods_services": "dropped"},
		{"proceeding_number": "91000002", "status": "TERMINATED"},
	}
	n, err := l.LoadBatch(context.Background(), ttabDesc(t), recs)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("n = %d", n)
	}
	wantCols := []string{"proceeding_number", "proceeding_type", "status"}
	if len(fs.upsertCols) != len(wantCols) {
		t.Fatalf("cols = %v", fs.upsertCols)
	}
	for i, c := range wantCols {
		if fs.upsertCols[i] != c {
			t.Fatalf("cols = %v, want %v", fs.upsertCols, wantCols)
		}
	}
	// Missing fields become nil in the row.
	if fs.upsertRows[1][1] != nil {
		t.Errorf("row 1 = %v", fs.upsertRows[1])
	}
	if fs.upsertRows[1][2] != "TERMINATED" {
		t.Errorf("row 1 = %v", fs.upsertRows[1])
	}
}

func TestLoadBatchLiveColumnsCached(t *testing.T) {
	fs := &fakeStore{liveCols: []string{"proceeding_number"}}
	l := NewLoader(fs, zerolog.Nop())
	recs := []records.Record{{"proceeding_number": "1"}}
	for i := 0; i < 3; i++ {
		if _, err := l.LoadBatch(context.Background(), ttabDesc(t), recs); err != nil {
			t.Fatal(err)
		}
	}
	if fs.liveCalls != 1 {
		t.Errorf("LiveColumns calls = %d", fs.liveCalls)
	}
}

func TestLoadBatchMissingKeyColumn(t *testing.T) {
	fs := &fakeStore{liveCols: []string{"status"}}
	l := NewLoader(fs, zerolog.Nop())
	_, err := l.LoadBatch(context.Background(), ttabDesc(t), []records.Record{{"status": "x"}})
	if err == nil {
		t.Fatal("want error for missing key column")
	}
}

func TestLoadBatchEmpty(t *testing.T) {
	fs := &fakeStore{}
	l := NewLoader(fs, zerolog.Nop())
	n, err := l.LoadBatch(context.Background(), ttabDesc(t), nil)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if fs.liveCalls != 0 {
		t.Error("empty batch should not touch the store")
	}
}

func TestLoadBatchUpsertError(t *testing.T) {
	boom := errors.New("boom")
	fs := &fakeStore{liveCols: []string{"proceeding_number"}, upsertErr: boom}
	l := NewLoader(fs, zerolog.Nop())
	_, err := l.LoadBatch(context.Background(), ttabDesc(t), []records.Record{{"proceeding_number": "1"}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
