// Package config defines the canonical, JSON-serializable configuration model
// for the bulk-data pipeline. It is intentionally small, explicit, and
// dependency-free so that configurations can be loaded from disk and passed
// through the program without additional glue code.
//
// Design goals:
//
//  1. Stability: changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: field names in Go mirror the JSON structure of the config file.
//  3. Minimalism: no third-party config libraries; decoding is performed by
//     the standard library.
//
// Example (trimmed):
//
//	{
//	  "api":      { "base_url": "https://api.example.gov/api/v1", "api_key": "..." },
//	  "storage":  { "kind": "postgres", "db": { "dsn": "postgresql://..." } },
//	  "datasets": ["TRTDXFAP", "TRTDXFAG"],
//	  "paths":    { "download_dir": "./downloads", "state_dir": "./state" },
//	  "runtime":  { "batch_size": 5000, "workers": 2 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the top-level object decoded from the config file.
type Config struct {
	// API configures the bulk-data catalog client.
	API API `json:"api"`

	// Storage selects and configures the destination store.
	Storage Storage `json:"storage"`

	// Datasets lists the dataset identifiers to process, in order.
	Datasets []string `json:"datasets"`

	// Paths holds the working directories.
	Paths Paths `json:"paths"`

	// Runtime controls batching and concurrency.
	Runtime Runtime `json:"runtime"`

	// Logging configures log output.
	Logging Logging `json:"logging"`

	// Metrics selects an optional metrics backend.
	Metrics Metrics `json:"metrics"`
}

// API configures the catalog client.
type API struct {
	// BaseURL is the bulk-data API root, e.g. "https://developer.uspto.gov/products/api".
	BaseURL string `json:"base_url"`

	// Key is the API key sent with every request. May be empty for
	// endpoints that do not require one.
	Key string `json:"api_key"`

	// TimeoutSeconds bounds a single HTTP request. Zero means 300.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Storage selects the destination store implementation.
type Storage struct {
	// Kind selects the backend: "postgres" or "sqlite".
	Kind string `json:"kind"`

	// DB carries backend options.
	DB DB `json:"db"`
}

// DB configures the destination database.
type DB struct {
	// DSN is the connection string for pgx/pgxpool (postgres kind).
	DSN string `json:"dsn"`

	// Path is the database file path (sqlite kind).
	Path string `json:"path"`
}

// Paths holds the pipeline's working directories.
type Paths struct {
	// DownloadDir receives fetched and extracted product files.
	DownloadDir string `json:"download_dir"`

	// StateDir holds checkpoints and staging logs.
	StateDir string `json:"state_dir"`
}

// Runtime controls batching, chunking, and concurrency.
type Runtime struct {
	// BatchSize is the number of records per load batch. Zero means 5000.
	BatchSize int `json:"batch_size"`

	// ChunkSize is the number of source rows read per parser chunk.
	// Zero means 50000.
	ChunkSize int `json:"chunk_size"`

	// Workers is the number of files processed concurrently. Zero means 1.
	Workers int `json:"workers"`

	// MaxFiles caps how many files are processed per dataset. Zero means
	// no cap.
	MaxFiles int `json:"max_files"`

	// MemoryLimitMB sets a soft memory ceiling for the process via the
	// runtime. Zero leaves the runtime default.
	MemoryLimitMB int `json:"memory_limit_mb"`
}

// Logging configures log output.
type Logging struct {
	// Level is a zerolog level name: "debug", "info", "warn", "error".
	// Empty means "info".
	Level string `json:"level"`

	// SampleEvery thins debug-level logging to one in every N events.
	// Zero disables sampling.
	SampleEvery int `json:"sample_every"`
}

// Metrics selects an optional metrics backend.
type Metrics struct {
	// Backend is "none", "prometheus", or "datadog". Empty means "none".
	Backend string `json:"backend"`

	// PushgatewayURL is the Prometheus Pushgateway base URL (prometheus
	// backend).
	PushgatewayURL string `json:"pushgateway_url"`

	// DogstatsdAddr is the DogStatsD address (datadog backend).
	DogstatsdAddr string `json:"dogstatsd_addr"`
}

// Load reads and decodes the config file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = 300
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = "sqlite"
	}
	if c.Storage.Kind == "sqlite" && c.Storage.DB.Path == "" {
		c.Storage.DB.Path = "tmbulk.db"
	}
	if c.Paths.DownloadDir == "" {
		c.Paths.DownloadDir = "downloads"
	}
	if c.Paths.StateDir == "" {
		c.Paths.StateDir = "state"
	}
	if c.Runtime.BatchSize <= 0 {
		c.Runtime.BatchSize = 5000
	}
	if c.Runtime.ChunkSize <= 0 {
		c.Runtime.ChunkSize = 50000
	}
	if c.Runtime.Workers <= 0 {
		c.Runtime.Workers = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = "none"
	}
}
