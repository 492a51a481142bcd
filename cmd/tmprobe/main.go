// Command tmprobe inspects a hierarchical bulk-data file without loading
// anything: it inventories the element paths under a dataset's record tag
// and reports which of them the schema registry maps to destination columns.
// Run it against the head of a new release to spot format drift before a
// full ingestion run.
//
//	tmprobe -i apc250101.xml -dataset TRTDXFAP
//	head -c 10000000 big.xml | tmprobe -dataset TRTDXFAG -coverage
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"tmbulk/internal/inspect"
	"tmbulk/internal/schema"
)

func main() {
	var (
		inputPath = flag.String("i", "", "input XML file (default stdin)")
		datasetID = flag.String("dataset", "", "dataset id from the registry (sets the record tag)")
		recordTag = flag.String("record-tag", "", "record tag override")
		coverage  = flag.Bool("coverage", false, "also report registry column coverage")
	)
	flag.Parse()

	if err := run(*inputPath, *datasetID, *recordTag, *coverage, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "tmprobe: %v\n", err)
		os.Exit(1)
	}
}

func run(inputPath, datasetID, recordTag string, coverage bool, out io.Writer) error {
	var desc schema.Descriptor
	if datasetID != "" {
		var err error
		desc, err = schema.Resolve(datasetID)
		if err != nil {
			return err
		}
		if recordTag == "" {
			recordTag = desc.RecordTag
		}
	}
	if recordTag == "" {
		return fmt.Errorf("a -dataset with a record tag or an explicit -record-tag is required")
	}
	if coverage && datasetID == "" {
		return fmt.Errorf("-coverage requires -dataset")
	}

	var in io.Reader = os.Stdin
	if inputPath != "" {
		f, err := os.Open(inputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	rep, err := inspect.Discover(in, recordTag)
	if err != nil {
		return err
	}

	payload := struct {
		inspect.Report
		Coverage *inspect.Coverage `json:"coverage,omitempty"`
	}{Report: rep}
	if coverage {
		cov := inspect.Cover(rep, desc)
		payload.Coverage = &cov
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
