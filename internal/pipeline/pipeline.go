// Package pipeline orchestrates a full ingestion run: catalog discovery,
// download and extraction, parser dispatch, normalization, checkpointed
// batch loading, and ledger bookkeeping. Side effects are strictly additive;
// the pipeline never deletes previously loaded rows.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tmbulk/internal/catalog"
	"tmbulk/internal/checkpoint"
	"tmbulk/internal/config"
	"tmbulk/internal/ledger"
	"tmbulk/internal/metrics"
	"tmbulk/internal/normalize"
	"tmbulk/internal/parser"
	csvparser "tmbulk/internal/parser/csv"
	xmlparser "tmbulk/internal/parser/xml"
	"tmbulk/internal/schema"
	"tmbulk/internal/storage"
	"tmbulk/pkg/records"
)

// Catalog lists a product's downloadable files. *catalog.Client satisfies it.
type Catalog interface {
	Product(ctx context.Context, id string) (catalog.Product, error)
}

// Fetcher downloads and unpacks product archives. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Download(ctx context.Context, file catalog.File, force bool) (string, error)
	ExtractZip(zipPath, productID string) (string, error)
}

// Options are the operator knobs for one run.
type Options struct {
	// Force reprocesses completed files and re-downloads archives.
	Force bool

	// Only restricts the run to these dataset ids; empty means all
	// configured datasets. Skip excludes ids and wins over Only.
	Only []string
	Skip []string
}

// Summary is the run report.
type Summary struct {
	RunID     string
	Processed int
	Skipped   int
	Errored   int

	// FileErrors maps "dataset/file" to the failure message.
	FileErrors map[string]string
}

// Pipeline processes the configured datasets end to end.
type Pipeline struct {
	cfg     config.Config
	store   storage.Store
	loader  *storage.Loader
	ckpt    *checkpoint.Manager
	catalog Catalog
	fetch   Fetcher
	log     zerolog.Logger
	opts    Options

	// dataFiles lists extracted data files; swapped by tests.
	dataFiles func(dir string) ([]string, error)

	mu      sync.Mutex
	summary Summary
}

func New(cfg config.Config, store storage.Store, ckpt *checkpoint.Manager, cat Catalog, fetch Fetcher, dataFiles func(string) ([]string, error), log zerolog.Logger, opts Options) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		loader:    storage.NewLoader(store, log),
		ckpt:      ckpt,
		catalog:   cat,
		fetch:     fetch,
		log:       log,
		opts:      opts,
		dataFiles: dataFiles,
		summary:   Summary{RunID: uuid.NewString(), FileErrors: map[string]string{}},
	}
}

// Run executes the whole pipeline. The returned Summary is valid even when
// err is non-nil; err reports setup failures (config, store, catalog), not
// per-file processing errors, which land in the summary instead.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	log := p.log.With().Str("run_id", p.summary.RunID).Logger()

	datasets, err := p.selectDatasets()
	if err != nil {
		return p.snapshot(), err
	}
	if len(datasets) == 0 {
		return p.snapshot(), errors.New("pipeline: no datasets selected")
	}

	if err := p.store.EnsureControl(ctx); err != nil {
		return p.snapshot(), fmt.Errorf("pipeline: ensure control tables: %w", err)
	}
	for _, desc := range datasets {
		if err := p.store.RegisterDataset(ctx, desc); err != nil {
			return p.snapshot(), fmt.Errorf("pipeline: register dataset %s: %w", desc.ID, err)
		}
	}

	for _, desc := range datasets {
		if err := p.runDataset(ctx, desc, log); err != nil {
			return p.snapshot(), err
		}
	}

	log.Info().
		Int("processed", p.summary.Processed).
		Int("skipped", p.summary.Skipped).
		Int("errored", p.summary.Errored).
		Msg("run finished")
	return p.snapshot(), nil
}

// selectDatasets resolves the configured dataset list through the Only/Skip
// filters. An unknown id anywhere in the result is a fatal configuration
// error.
func (p *Pipeline) selectDatasets() ([]schema.Descriptor, error) {
	only := idSet(p.opts.Only)
	skip := idSet(p.opts.Skip)

	var out []schema.Descriptor
	for _, id := range p.cfg.Datasets {
		key := strings.ToUpper(strings.TrimSpace(id))
		if len(only) > 0 {
			if _, ok := only[key]; !ok {
				continue
			}
		}
		if _, ok := skip[key]; ok {
			continue
		}
		desc, err := schema.Resolve(id)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		out = append(out, desc)
	}
	return out, nil
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// runDataset fetches the dataset's catalog listing, materializes its data
// files locally, and processes them. Download and extraction are sequential;
// data files then fan out over the worker pool.
func (p *Pipeline) runDataset(ctx context.Context, desc schema.Descriptor, log zerolog.Logger) error {
	dlog := log.With().Str("dataset", desc.ID).Logger()

	product, err := p.catalog.Product(ctx, desc.ID)
	if err != nil {
		return fmt.Errorf("pipeline: catalog listing for %s: %w", desc.ID, err)
	}

	catalogFiles := product.Files
	if max := p.cfg.Runtime.MaxFiles; max > 0 && len(catalogFiles) > max {
		catalogFiles = catalogFiles[:max]
	}
	dlog.Info().Int("files", len(catalogFiles)).Msg("dataset listing fetched")

	var local []string
	for _, cf := range catalogFiles {
		paths, err := p.materialize(ctx, desc.ID, cf)
		if err != nil {
			// A failed download errors the archive's ledger entry and the
			// run moves on to the next file.
			p.recordError(desc.ID, cf.Name, err, dlog)
			_ = p.store.MarkError(ctx, desc.ID, cf.Name, err.Error())
			continue
		}
		local = append(local, paths...)
	}
	sort.Strings(local)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers())
	for _, path := range local {
		path := path
		g.Go(func() error {
			return p.processFile(gctx, desc, path, dlog)
		})
	}
	return g.Wait()
}

// materialize downloads one catalog file and returns the local data files it
// yields: the extraction contents for a zip, the downloaded path itself
// otherwise.
func (p *Pipeline) materialize(ctx context.Context, datasetID string, cf catalog.File) ([]string, error) {
	path, err := p.fetch.Download(ctx, cf, p.opts.Force)
	if err != nil {
		return nil, err
	}
	if strings.ToLower(filepath.Ext(path)) != ".zip" {
		return []string{path}, nil
	}
	dir, err := p.fetch.ExtractZip(path, datasetID)
	if err != nil {
		return nil, err
	}
	files, err := p.dataFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no data files in %s", filepath.Base(path))
	}
	return files, nil
}

func (p *Pipeline) workers() int {
	if p.cfg.Runtime.Workers > 1 {
		return p.cfg.Runtime.Workers
	}
	return 1
}

// processFile runs one data file through the ledger/checkpoint protocol.
// Per-file failures are recorded in the summary and the ledger; only context
// cancellation aborts the run.
func (p *Pipeline) processFile(ctx context.Context, desc schema.Descriptor, path string, log zerolog.Logger) error {
	fileName := filepath.Base(path)
	flog := log.With().Str("file", fileName).Logger()

	entry, err := p.store.LedgerGet(ctx, desc.ID, fileName)
	found := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("pipeline: ledger lookup %s/%s: %w", desc.ID, fileName, err)
	}
	if ledger.ShouldSkip(entry, found, p.opts.Force) {
		flog.Info().Msg("already completed, skipping")
		p.mu.Lock()
		p.summary.Skipped++
		p.mu.Unlock()
		return nil
	}

	if err := p.store.MarkProcessing(ctx, desc.ID, fileName); err != nil {
		return fmt.Errorf("pipeline: mark processing %s/%s: %w", desc.ID, fileName, err)
	}

	start := time.Now()
	counters, err := p.ingest(ctx, desc, path, fileName, flog)
	metrics.RecordFile(desc.ID, err, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted, not failed: leave the entry in processing so the
			// next run resumes from the checkpoint.
			return ctx.Err()
		}
		p.recordError(desc.ID, fileName, err, flog)
		if merr := p.store.MarkError(ctx, desc.ID, fileName, err.Error()); merr != nil {
			flog.Error().Err(merr).Msg("ledger mark error failed")
		}
		return nil
	}

	if err := p.ckpt.Clear(desc.ID, fileName); err != nil {
		return fmt.Errorf("pipeline: clear checkpoint %s/%s: %w", desc.ID, fileName, err)
	}
	if err := p.store.MarkCompleted(ctx, desc.ID, fileName, counters); err != nil {
		return fmt.Errorf("pipeline: mark completed %s/%s: %w", desc.ID, fileName, err)
	}
	flog.Info().
		Int64("rows", counters.RowsLoaded).
		Int64("batches", counters.Batches).
		Dur("took", time.Since(start)).
		Msg("file completed")
	p.mu.Lock()
	p.summary.Processed++
	p.mu.Unlock()
	return nil
}

// ingest parses one file from its checkpoint position and loads every batch,
// returning the run's final counters. The per-batch protocol is: stage the
// normalized chunk, advance rows-consumed, load, clear the stage, advance
// rows-saved. A crash between stage and clear is healed by drainStaged on the
// next run.
func (p *Pipeline) ingest(ctx context.Context, desc schema.Descriptor, path, fileName string, log zerolog.Logger) (ledger.Counters, error) {
	st, err := p.ckpt.Load(desc.ID, fileName)
	if err != nil {
		return ledger.Counters{}, fmt.Errorf("load checkpoint: %w", err)
	}

	var c ledger.Counters
	if err := p.drainStaged(ctx, desc, fileName, &st, &c, log); err != nil {
		return c, err
	}

	if st.RowsConsumed > 0 {
		log.Info().Int64("rows_consumed", st.RowsConsumed).Msg("resuming from checkpoint")
	}

	isCSV := strings.ToLower(filepath.Ext(path)) == ".csv"
	sourceTag := " [XML]"
	if isCSV {
		sourceTag = " [CSV]"
	}
	dataSource := desc.ID + sourceTag

	onRowError := func(line int64, err error) {
		metrics.RecordRows(desc.ID, "malformed", 1)
		log.Warn().Int64("line", line).Err(err).Msg("row dropped")
	}

	emit := func(ctx context.Context, b parser.Batch) error {
		recs := make([]records.Record, 0, len(b.Records))
		for _, raw := range b.Records {
			rec := normalize.Record(raw, desc)
			// A record that normalized to a null natural key can never be
			// deduplicated by the destination's unique constraint, so it is
			// dropped here rather than loaded as an unmatchable row.
			if col, missing := missingKey(rec, desc.KeyColumns); missing {
				metrics.RecordRows(desc.ID, "unkeyed", 1)
				log.Warn().Str("column", col).Msg("record missing natural key, dropped")
				continue
			}
			rec["data_source"] = dataSource
			rec["batch_number"] = int64(b.Seq)
			recs = append(recs, rec)
		}
		metrics.RecordRows(desc.ID, "parsed", int64(len(recs)))

		if err := p.ckpt.AppendStaged(desc.ID, fileName, recs); err != nil {
			return fmt.Errorf("stage batch %d: %w", b.Seq, err)
		}
		st.RowsConsumed = b.RowsConsumed
		if err := p.ckpt.Save(st); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}

		n, batches, err := p.loadChunk(ctx, desc, recs)
		if err != nil {
			return fmt.Errorf("load batch %d (%d records): %w", b.Seq, len(recs), err)
		}
		c.RowsLoaded += n
		c.Batches += batches

		if err := p.ckpt.ClearStaged(desc.ID, fileName); err != nil {
			return fmt.Errorf("clear staged: %w", err)
		}
		st.RowsSaved = st.RowsConsumed
		return p.ckpt.Save(st)
	}

	if isCSV {
		err = csvparser.StreamFile(ctx, path, csvparser.Options{
			BatchSize:  p.chunkSize(),
			SkipRows:   st.RowsConsumed,
			Latin1:     desc.Latin1,
			OnRowError: onRowError,
		}, emit)
	} else {
		var extract xmlparser.ExtractFunc
		extract, err = xmlparser.ExtractorFor(desc)
		if err != nil {
			return c, err
		}
		err = xmlparser.StreamFile(ctx, path, xmlparser.Options{
			RecordTag:     desc.RecordTag,
			AltRecordTags: desc.AltRecordTags,
			BatchSize:     p.chunkSize(),
			SkipElements:  st.RowsConsumed,
			Extract:       extract,
			OnRowError:    onRowError,
		}, emit)
	}
	c.RowsProcessed = st.RowsConsumed
	if err != nil {
		return c, err
	}
	return c, nil
}

// missingKey reports the first natural-key column the record lacks.
func missingKey(rec records.Record, keys []string) (string, bool) {
	for _, k := range keys {
		if rec[k] == nil {
			return k, true
		}
	}
	return "", false
}

// drainStaged replays a staging log left by an interrupted run, loading it
// without re-parsing the source.
func (p *Pipeline) drainStaged(ctx context.Context, desc schema.Descriptor, fileName string, st *checkpoint.State, c *ledger.Counters, log zerolog.Logger) error {
	staged, err := p.ckpt.ReadStaged(desc.ID, fileName)
	if err != nil {
		return fmt.Errorf("read staged: %w", err)
	}
	if len(staged) == 0 {
		return nil
	}
	log.Info().Int("records", len(staged)).Msg("replaying staged batch")

	n, batches, err := p.loadChunk(ctx, desc, staged)
	if err != nil {
		return fmt.Errorf("replay staged batch: %w", err)
	}
	c.RowsLoaded += n
	c.Batches += batches
	if err := p.ckpt.ClearStaged(desc.ID, fileName); err != nil {
		return fmt.Errorf("clear staged: %w", err)
	}
	st.RowsSaved = st.RowsConsumed
	if err := p.ckpt.Save(*st); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// loadChunk feeds one parsed chunk to the loader in load-batch slices,
// returning the rows written and the batch count.
func (p *Pipeline) loadChunk(ctx context.Context, desc schema.Descriptor, recs []records.Record) (int64, int64, error) {
	size := p.batchSize()
	var written, batches int64
	for off := 0; off < len(recs); off += size {
		end := off + size
		if end > len(recs) {
			end = len(recs)
		}
		n, err := p.loader.LoadBatch(ctx, desc, recs[off:end])
		if err != nil {
			return written, batches, err
		}
		written += n
		batches++
	}
	return written, batches, nil
}

func (p *Pipeline) batchSize() int {
	if p.cfg.Runtime.BatchSize > 0 {
		return p.cfg.Runtime.BatchSize
	}
	return 5000
}

func (p *Pipeline) chunkSize() int {
	if p.cfg.Runtime.ChunkSize > 0 {
		return p.cfg.Runtime.ChunkSize
	}
	return 50000
}

func (p *Pipeline) recordError(dataset, file string, err error, log zerolog.Logger) {
	log.Error().Str("file", file).Err(err).Msg("file failed")
	p.mu.Lock()
	p.summary.Errored++
	p.summary.FileErrors[dataset+"/"+file] = err.Error()
	p.mu.Unlock()
}

func (p *Pipeline) snapshot() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.summary
	s.FileErrors = make(map[string]string, len(p.summary.FileErrors))
	for k, v := range p.summary.FileErrors {
		s.FileErrors[k] = v
	}
	return s
}
