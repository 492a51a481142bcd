// Command tmbulk runs the trademark bulk-data ingestion pipeline: it lists
// the configured datasets in the remote catalog, downloads and extracts
// their data files, and loads them into the destination store with
// checkpointed resume. Exit status is non-zero when any file ends in error
// state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tmbulk/internal/catalog"
	"tmbulk/internal/checkpoint"
	"tmbulk/internal/config"
	"tmbulk/internal/fetch"
	"tmbulk/internal/logging"
	"tmbulk/internal/metrics"
	"tmbulk/internal/metrics/datadog"
	"tmbulk/internal/metrics/prompush"
	"tmbulk/internal/pipeline"
	"tmbulk/internal/schema"
	"tmbulk/internal/storage"
	"tmbulk/internal/storage/postgres"
	"tmbulk/internal/storage/sqlite"
)

func main() {
	var (
		cfgPath        string
		maxFiles       int
		force          bool
		batchSize      int
		chunkSize      int
		memoryLimitMB  int
		only           string
		skip           string
		stateDir       string
		check          bool
		metricsBackend string
		pushgatewayURL string
	)

	flag.StringVar(&cfgPath, "config", "configs/tmbulk.json", "config JSON path")
	flag.IntVar(&maxFiles, "max-files", 0, "max files per dataset (0 = no cap, overrides config)")
	flag.BoolVar(&force, "force", false, "reprocess completed files and re-download archives")
	flag.IntVar(&batchSize, "batch-size", 0, "records per load batch (overrides config)")
	flag.IntVar(&chunkSize, "chunk-size", 0, "source rows per parser chunk (overrides config)")
	flag.IntVar(&memoryLimitMB, "memory-limit-mb", 0, "soft memory ceiling in MB (overrides config)")
	flag.StringVar(&only, "only", "", "comma-separated dataset ids to include")
	flag.StringVar(&skip, "skip", "", "comma-separated dataset ids to exclude")
	flag.StringVar(&stateDir, "state-dir", "", "checkpoint/staging directory (overrides config)")
	flag.BoolVar(&check, "check", false, "validate config and smoke-check collaborators, then exit")
	flag.StringVar(&metricsBackend, "metrics-backend", "", "metrics backend: none, prometheus, datadog (overrides config)")
	flag.StringVar(&pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides config and PUSHGATEWAY_URL)")
	verbose := flag.Bool("v", false, "debug logging")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	// Flags override file values.
	if maxFiles > 0 {
		cfg.Runtime.MaxFiles = maxFiles
	}
	if batchSize > 0 {
		cfg.Runtime.BatchSize = batchSize
	}
	if chunkSize > 0 {
		cfg.Runtime.ChunkSize = chunkSize
	}
	if memoryLimitMB > 0 {
		cfg.Runtime.MemoryLimitMB = memoryLimitMB
	}
	if stateDir != "" {
		cfg.Paths.StateDir = stateDir
	}
	if metricsBackend != "" {
		cfg.Metrics.Backend = metricsBackend
	}
	if pushgatewayURL != "" {
		cfg.Metrics.PushgatewayURL = pushgatewayURL
	}
	level := cfg.Logging.Level
	if *verbose {
		level = "debug"
	}
	log := logging.New(level, false)

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fatalf("configuration is invalid: %s", cfgPath)
	}

	if cfg.Runtime.MemoryLimitMB > 0 {
		debug.SetMemoryLimit(int64(cfg.Runtime.MemoryLimitMB) << 20)
	}

	setupMetrics(cfg, log)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("metrics flush failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer store.Close()

	cat, err := catalog.New(catalog.Options{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.Key,
		Timeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		fatalf("catalog client: %v", err)
	}

	if check {
		if err := smokeCheck(ctx, cfg, store, cat, log); err != nil {
			fatalf("check failed: %v", err)
		}
		log.Info().Msg("check passed")
		return
	}

	ckpt, err := checkpoint.NewManager(cfg.Paths.StateDir)
	if err != nil {
		fatalf("state dir: %v", err)
	}
	fetcher := fetch.New(cfg.Paths.DownloadDir, time.Duration(cfg.API.TimeoutSeconds)*time.Second, log)

	pipe := pipeline.New(cfg, store, ckpt, cat, fetcher, fetch.DataFiles, log, pipeline.Options{
		Force: force,
		Only:  splitIDs(only),
		Skip:  splitIDs(skip),
	})

	start := time.Now()
	summary, err := pipe.Run(ctx)
	if err != nil {
		fatalf("run: %v", err)
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("errored", summary.Errored).
		Dur("took", time.Since(start).Truncate(time.Millisecond)).
		Msg("done")

	if summary.Errored > 0 {
		keys := make([]string, 0, len(summary.FileErrors))
		for k := range summary.FileErrors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", k, summary.FileErrors[k])
		}
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Kind {
	case "postgres":
		return postgres.New(ctx, cfg.Storage.DB.DSN)
	case "sqlite":
		return sqlite.New(cfg.Storage.DB.Path)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Storage.Kind)
	}
}

// setupMetrics selects a backend from config: flag already won over the file
// value, env fills remaining gaps. Backend construction failure degrades to
// the nop backend rather than aborting the run.
func setupMetrics(cfg config.Config, log zerolog.Logger) {
	switch cfg.Metrics.Backend {
	case "prometheus":
		gwURL := cfg.Metrics.PushgatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		b, err := prompush.NewBackend("tmbulk", gwURL)
		if err != nil {
			log.Warn().Err(err).Msg("prometheus metrics unavailable, continuing without")
			return
		}
		metrics.SetBackend(b)
		log.Info().Str("gateway", gwURL).Msg("prometheus metrics enabled")

	case "datadog":
		addr := cfg.Metrics.DogstatsdAddr
		if addr == "" {
			addr = os.Getenv("DOGSTATSD_ADDR")
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "tmbulk"})
		if err != nil {
			log.Warn().Err(err).Msg("datadog metrics unavailable, continuing without")
			return
		}
		metrics.SetBackend(b)
		log.Info().Str("addr", addr).Msg("datadog metrics enabled")

	case "", "none":
		// nop backend remains

	default:
		log.Warn().Str("backend", cfg.Metrics.Backend).Msg("unknown metrics backend, metrics disabled")
	}
}

// smokeCheck exercises each collaborator once: control tables, dataset
// registration, state dir, and the catalog listing for the first dataset.
func smokeCheck(ctx context.Context, cfg config.Config, store storage.Store, cat *catalog.Client, log zerolog.Logger) error {
	if err := store.EnsureControl(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	for _, id := range cfg.Datasets {
		desc, err := schema.Resolve(id)
		if err != nil {
			return err
		}
		if err := store.RegisterDataset(ctx, desc); err != nil {
			return fmt.Errorf("register %s: %w", desc.ID, err)
		}
	}
	if _, err := checkpoint.NewManager(cfg.Paths.StateDir); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}
	if len(cfg.Datasets) > 0 {
		product, err := cat.Product(ctx, cfg.Datasets[0])
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		log.Info().Str("dataset", product.ID).Int("files", len(product.Files)).Msg("catalog reachable")
	}
	return nil
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
