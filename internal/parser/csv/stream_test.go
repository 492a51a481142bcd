package csv

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tmbulk/internal/parser"
	"tmbulk/pkg/records"
)

func collect(t *testing.T, src string, opt Options) []parser.Batch {
	t.Helper()
	var got []parser.Batch
	err := Stream(context.Background(), strings.NewReader(src), opt, func(_ context.Context, b parser.Batch) error {
		got = append(got, b)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	return got
}

func TestStreamBasic(t *testing.T) {
	src := "Serial Number,Filing DT\n75000001,19990101\n75000002,19990102\n"
	batches := collect(t, src, Options{})
	if len(batches) != 1 {
		t.Fatalf("batches = %d", len(batches))
	}
	b := batches[0]
	if b.RowsConsumed != 2 || len(b.Records) != 2 {
		t.Fatalf("rows=%d records=%d", b.RowsConsumed, len(b.Records))
	}
	want := records.Record{"serial_number": "75000001", "filing_dt": "19990101"}
	if b.Records[0]["serial_number"] != want["serial_number"] || b.Records[0]["filing_dt"] != want["filing_dt"] {
		t.Errorf("record = %#v", b.Records[0])
	}
}

func TestStreamBatchBoundaries(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a,b\n")
	for i := 0; i < 5; i++ {
		sb.WriteString("x,y\n")
	}
	batches := collect(t, sb.String(), Options{BatchSize: 2})
	if len(batches) != 3 {
		t.Fatalf("batches = %d", len(batches))
	}
	wantRows := []int64{2, 4, 5}
	for i, b := range batches {
		if b.Seq != i {
			t.Errorf("batch %d: seq = %d", i, b.Seq)
		}
		if b.RowsConsumed != wantRows[i] {
			t.Errorf("batch %d: rows = %d, want %d", i, b.RowsConsumed, wantRows[i])
		}
	}
}

func TestStreamSkipRows(t *testing.T) {
	src := "a\n1\n2\n3\n"
	batches := collect(t, src, Options{SkipRows: 2})
	if len(batches) != 1 || len(batches[0].Records) != 1 {
		t.Fatalf("batches = %#v", batches)
	}
	if batches[0].Records[0]["a"] != "3" {
		t.Errorf("resumed at wrong row: %#v", batches[0].Records[0])
	}
	// RowsConsumed counts skipped rows too, so checkpoints stay absolute.
	if batches[0].RowsConsumed != 3 {
		t.Errorf("rows = %d", batches[0].RowsConsumed)
	}
}

func TestStreamSoftRowErrors(t *testing.T) {
	src := "a,b\n1,2\n1,2,3\n4,5\n"
	var bad []int64
	batches := collect(t, src, Options{
		OnRowError: func(line int64, err error) { bad = append(bad, line) },
	})
	if len(bad) != 1 || bad[0] != 2 {
		t.Errorf("bad rows = %v", bad)
	}
	if n := len(batches[0].Records); n != 2 {
		t.Errorf("kept records = %d", n)
	}
}

func TestStreamEmptyCellsOmitted(t *testing.T) {
	src := "a,b,c\n1,,3\n"
	batches := collect(t, src, Options{})
	rec := batches[0].Records[0]
	if _, ok := rec["b"]; ok {
		t.Errorf("empty cell kept: %#v", rec)
	}
}

func TestStreamBOMHeader(t *testing.T) {
	src := "\xef\xbb\xbfa,b\n1,2\n"
	batches := collect(t, src, Options{})
	if _, ok := batches[0].Records[0]["a"]; !ok {
		t.Errorf("BOM not stripped: %#v", batches[0].Records[0])
	}
}

func TestStreamEmitErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	src := "a\n1\n2\n3\n"
	calls := 0
	err := Stream(context.Background(), strings.NewReader(src), Options{BatchSize: 1},
		func(_ context.Context, b parser.Batch) error {
			calls++
			return boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("emit calls = %d", calls)
	}
}

func TestStreamContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Stream(ctx, strings.NewReader("a\n1\n"), Options{}, func(context.Context, parser.Batch) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestStreamLatin1(t *testing.T) {
	// 0xE9 is 'é' in ISO 8859-1 and invalid as a standalone UTF-8 byte.
	src := "name\ncaf\xe9\n"
	batches := collect(t, src, Options{Latin1: true})
	if got := batches[0].Records[0]["name"]; got != "café" {
		t.Errorf("latin-1 decode: got %q", got)
	}
}
