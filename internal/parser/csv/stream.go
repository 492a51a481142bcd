// Package csv provides streaming parsing of large tabular bulk files.
//
// Stream emits raw records batch-by-batch without whole-file buffering.
// The header row is read once and cleaned; data rows become string-keyed
// records with empty cells left out. Per-row errors are soft: they are
// reported through onErr and the stream continues.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"tmbulk/internal/normalize"
	"tmbulk/internal/parser"
	"tmbulk/pkg/records"
)

const utf8BOM = "\xef\xbb\xbf"

// Options tunes a streaming parse. The zero value is usable; BatchSize
// defaults to 10000 rows.
type Options struct {
	// BatchSize is the number of records per emitted batch.
	BatchSize int

	// SkipRows resumes a checkpointed file: that many data rows after the
	// header are read and discarded before emission starts.
	SkipRows int64

	// Comma overrides the field separator. Zero means ','.
	Comma rune

	// Latin1 decodes the source as ISO 8859-1 instead of UTF-8. The
	// economics CSV exports predate UTF-8 delivery.
	Latin1 bool

	// OnRowError receives recoverable per-row errors.
	OnRowError parser.RowErrorFunc
}

func (o Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return 10000
}

// StreamFile opens path and streams it through Stream.
func StreamFile(ctx context.Context, path string, opt Options, emit parser.EmitFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	return Stream(ctx, f, opt, emit)
}

// Stream parses r as CSV and emits raw records in batches. It returns nil on
// EOF, the emit error if emission fails, or a fatal error when the header
// cannot be read.
func Stream(ctx context.Context, r io.Reader, opt Options, emit parser.EmitFunc) error {
	if opt.Latin1 {
		r = charmap.ISO8859_1.NewDecoder().Reader(r)
	}

	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.FieldsPerRecord = -1 // width enforced against the header below

	hdr, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	headers := make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		headers[i] = normalize.CleanKey(h)
	}

	var (
		line  int64 // data rows read, header excluded
		seq   int
		batch = make([]records.Record, 0, opt.batchSize())
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		b := parser.Batch{Seq: seq, Records: batch, RowsConsumed: line}
		if err := emit(ctx, b); err != nil {
			return err
		}
		seq++
		batch = make([]records.Record, 0, opt.batchSize())
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return flush()
		}
		line++
		if err != nil {
			if opt.OnRowError != nil {
				opt.OnRowError(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}
		if line <= opt.SkipRows {
			continue
		}
		if len(rec) != len(headers) {
			if opt.OnRowError != nil {
				opt.OnRowError(line, fmt.Errorf("incorrect number of fields: expected %d, got %d", len(headers), len(rec)))
			}
			continue
		}

		row := make(records.Record, len(headers))
		for i, v := range rec {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			row[headers[i]] = v
		}
		batch = append(batch, row)

		if len(batch) >= opt.batchSize() {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
