// Package inspect inventories the structure of a hierarchical bulk-data
// file: every element path under the record tag, how often it occurs, and
// example values. The report is compared against a dataset descriptor to
// show which source paths the registry maps and which it would drop —
// the first thing to check when a new release format shows up.
//
// Like the stream parser, discovery tolerates truncated input: only fully
// closed records are counted, so probing the first megabytes of a large
// file gives an accurate per-record picture.
package inspect

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"tmbulk/internal/normalize"
	"tmbulk/internal/schema"
)

const maxExamples = 3

// PathStats aggregates one relative element path under the record tag.
type PathStats struct {
	Count        int      `json:"count"`
	RecordsWith  int      `json:"records_with"`
	MaxPerRecord int      `json:"max_per_record"`
	Examples     []string `json:"examples,omitempty"`
}

// Report is the structural inventory of one file.
type Report struct {
	RecordTag    string               `json:"record_tag"`
	TotalRecords int                  `json:"total_records"`
	Paths        map[string]PathStats `json:"paths"`
}

// Discover scans r and inventories every element path under recordTag.
// Truncated input ends the scan cleanly; the cut-off record is not counted.
func Discover(r io.Reader, recordTag string) (Report, error) {
	if strings.TrimSpace(recordTag) == "" {
		return Report{}, errors.New("inspect: record tag is required")
	}

	dec := xml.NewDecoder(r)
	dec.Strict = false

	rep := Report{RecordTag: recordTag, Paths: map[string]PathStats{}}

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF || isTruncated(err) {
				return rep, nil
			}
			return rep, fmt.Errorf("inspect: token: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != recordTag {
			continue
		}

		perRecord := map[string]int{}
		examples := map[string]string{}
		if err := walkRecord(dec, nil, perRecord, examples); err != nil {
			if err == io.EOF || isTruncated(err) {
				// Record cut off mid-stream; discard its partial counts.
				return rep, nil
			}
			return rep, fmt.Errorf("inspect: record %d: %w", rep.TotalRecords+1, err)
		}

		rep.TotalRecords++
		for path, n := range perRecord {
			st := rep.Paths[path]
			st.Count += n
			st.RecordsWith++
			if n > st.MaxPerRecord {
				st.MaxPerRecord = n
			}
			if txt := examples[path]; txt != "" && len(st.Examples) < maxExamples {
				st.Examples = append(st.Examples, txt)
			}
			rep.Paths[path] = st
		}
	}
}

// walkRecord consumes one record subtree, accumulating per-path counts and
// one example text per path.
func walkRecord(dec *xml.Decoder, stack []string, perRecord map[string]int, examples map[string]string) error {
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := append(stack, t.Name.Local)
			path := strings.Join(child, "/")
			perRecord[path]++
			if err := walkRecord(dec, child, perRecord, examples); err != nil {
				return err
			}
		case xml.CharData:
			if len(stack) > 0 {
				text.Write(t)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				path := strings.Join(stack, "/")
				if txt := strings.TrimSpace(text.String()); txt != "" && examples[path] == "" {
					examples[path] = txt
				}
			}
			return nil
		}
	}
}

func isTruncated(err error) bool {
	var syn *xml.SyntaxError
	return errors.As(err, &syn) && strings.Contains(syn.Msg, "unexpected EOF")
}

// Coverage classifies a report's leaf paths against a descriptor: Mapped
// paths land in a destination column (directly or via alias), Dropped paths
// would be discarded by normalization.
type Coverage struct {
	Mapped  map[string]string `json:"mapped"` // path -> destination column
	Dropped []string          `json:"dropped"`
}

// Cover computes descriptor coverage for a report. Only leaf paths (those
// with example text) are classified; container elements never map to
// columns.
func Cover(rep Report, desc schema.Descriptor) Coverage {
	cov := Coverage{Mapped: map[string]string{}}
	cols := desc.ColumnSet()

	var paths []string
	for path, st := range rep.Paths {
		if len(st.Examples) == 0 {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		parts := strings.Split(path, "/")
		key := normalize.CleanKey(parts[len(parts)-1])
		if alias, ok := desc.Aliases[key]; ok {
			key = alias
		}
		if _, ok := cols[key]; ok {
			cov.Mapped[path] = key
		} else {
			cov.Dropped = append(cov.Dropped, path)
		}
	}
	return cov
}
