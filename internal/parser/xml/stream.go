// Package xmlparser provides streaming parsing of large hierarchical bulk
// files. It walks the token stream with a single decoder, materializes one
// record subtree at a time, hands it to the dataset's extractor, and drops
// the subtree before advancing. Truncated inputs yield the records parsed so
// far rather than an error; the bulk products are occasionally cut short at
// the source.
package xmlparser

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"tmbulk/internal/parser"
	"tmbulk/pkg/records"
)

// ExtractFunc turns one record subtree into zero or more raw records.
type ExtractFunc func(*Node) []records.Record

// Options tunes a streaming parse. RecordTag and Extract are required.
type Options struct {
	// RecordTag is the local name of the element delimiting one record.
	RecordTag string

	// AltRecordTags are additional element names treated as records; some
	// products renamed their record element across releases.
	AltRecordTags []string

	// BatchSize is the record count that triggers a batch emission.
	// Batches are cut on element boundaries, so a fan-out element's records
	// never straddle two batches.
	BatchSize int

	// SkipElements resumes a checkpointed file: that many record elements
	// are skipped without extraction before emission starts.
	SkipElements int64

	// Extract is the dataset's extraction strategy.
	Extract ExtractFunc

	// OnRowError receives recoverable per-element errors.
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

// Stream parses r and emits raw records in batches. RowsConsumed counts
// record elements, not emitted records; a fan-out element counts once no
// matter how many records it produces.
func Stream(ctx context.Context, r io.Reader, opt Options, emit parser.EmitFunc) error {
	if opt.RecordTag == "" || opt.Extract == nil {
		return errors.New("xml stream: record tag and extractor are required")
	}
	recordTags := map[string]struct{}{opt.RecordTag: {}}
	for _, tag := range opt.AltRecordTags {
		recordTags[tag] = struct{}{}
	}

	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = charsetReader

	var (
		elements int64
		seq      int
		batch    = make([]records.Record, 0, opt.batchSize())
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		b := parser.Batch{Seq: seq, Records: batch, RowsConsumed: elements}
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

		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF || isTruncated(err) {
				return flush()
			}
			return fmt.Errorf("xml token: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if _, isRecord := recordTags[start.Name.Local]; !isRecord {
			continue
		}

		elements++
		if elements <= opt.SkipElements {
			if err := dec.Skip(); err != nil {
				if err == io.EOF || isTruncated(err) {
					return flush()
				}
				return fmt.Errorf("xml skip: %w", err)
			}
			continue
		}

		node, err := readSubtree(dec, start)
		if err != nil {
			if err == io.EOF || isTruncated(err) {
				// The final element was cut off mid-record; drop it.
				return flush()
			}
			if opt.OnRowError != nil {
				opt.OnRowError(elements, fmt.Errorf("element %d: %w", elements, err))
			}
			continue
		}

		batch = append(batch, opt.Extract(node)...)
		if len(batch) >= opt.batchSize() {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// isTruncated reports whether err is encoding/xml's complaint about input
// ending inside an open element.
func isTruncated(err error) bool {
	if err == nil {
		return false
	}
	var syn *xml.SyntaxError
	if errors.As(err, &syn) {
		return strings.Contains(syn.Msg, "unexpected EOF")
	}
	return false
}

// charsetReader accepts the latin-1 declarations found in older bulk files.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "iso-8859-1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "us-ascii", "utf-8":
		return input, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", charset)
}
