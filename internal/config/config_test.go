package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"api": {"base_url": "https://example.gov/api"}}`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Storage.Kind != "sqlite" || c.Storage.DB.Path != "tmbulk.db" {
		t.Errorf("storage defaults: %+v", c.Storage)
	}
	if c.Runtime.BatchSize != 5000 || c.Runtime.ChunkSize != 50000 || c.Runtime.Workers != 1 {
		t.Errorf("runtime defaults: %+v", c.Runtime)
	}
	if c.API.TimeoutSeconds != 300 {
		t.Errorf("timeout default: %d", c.API.TimeoutSeconds)
	}
	if c.Logging.Level != "info" || c.Metrics.Backend != "none" {
		t.Errorf("logging/metrics defaults: %+v %+v", c.Logging, c.Metrics)
	}
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `{
		"api": {"base_url": "https://example.gov/api", "timeout_seconds": 10},
		"storage": {"kind": "postgres", "db": {"dsn": "postgresql://localhost/tm"}},
		"datasets": ["TRTDXFAP", "TTABYR"],
		"runtime": {"batch_size": 100, "workers": 4}
	}`)
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Storage.Kind != "postgres" || c.API.TimeoutSeconds != 10 {
		t.Errorf("explicit values lost: %+v", c)
	}
	if len(c.Datasets) != 2 || c.Runtime.BatchSize != 100 || c.Runtime.Workers != 4 {
		t.Errorf("explicit values lost: %+v", c)
	}
}

func TestLoadBadJSON(t *testing.T) {
	path := writeConfig(t, `{"api":`)
	if _, err := Load(path); err == nil {
		t.Fatal("want decode error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("want read error")
	}
}
