// This file adds a lightweight linter/validator for Config values. It
// performs static checks over a decoded Config and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"

	"tmbulk/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Config.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "datasets[1]"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation / linting of a Config.
//
// It does not mutate the config. Instead it returns a slice of Issue values;
// callers decide whether to treat warnings as fatal.
func Validate(c Config) []Issue {
	var issues []Issue
	issues = append(issues, validateAPI(c.API)...)
	issues = append(issues, validateStorage(c.Storage)...)
	issues = append(issues, validateDatasets(c.Datasets)...)
	issues = append(issues, validateRuntime(c.Runtime)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	return issues
}

func validateAPI(a API) []Issue {
	var issues []Issue
	if strings.TrimSpace(a.BaseURL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "api.base_url",
			Message:  "base_url must not be empty",
		})
	}
	if a.Key == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "api.api_key",
			Message:  "no API key configured; requests may be rate limited or rejected",
		})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	switch s.Kind {
	case "postgres":
		if strings.TrimSpace(s.DB.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.db.dsn",
				Message:  "postgres storage requires a non-empty dsn",
			})
		}
	case "sqlite":
		if strings.TrimSpace(s.DB.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.db.path",
				Message:  "sqlite storage requires a non-empty path",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; want postgres or sqlite", s.Kind),
		})
	}
	return issues
}

func validateDatasets(ids []string) []Issue {
	var issues []Issue
	if len(ids) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "datasets",
			Message:  "no datasets configured; all registered datasets will be processed",
		})
		return issues
	}
	seen := make(map[string]int, len(ids))
	for i, id := range ids {
		path := fmt.Sprintf("datasets[%d]", i)
		if !schema.Known(id) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("unknown dataset %q", id),
			})
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(id))
		if prev, dup := seen[key]; dup {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path,
				Message:  fmt.Sprintf("dataset %q already listed at datasets[%d]", id, prev),
			})
			continue
		}
		seen[key] = i
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue
	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	if r.BatchSize > 0 && r.ChunkSize > 0 && r.BatchSize > r.ChunkSize {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  "batch_size exceeds chunk_size; batches will be cut at chunk boundaries",
		})
	}
	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "prometheus":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend requires pushgateway_url",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DogstatsdAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.dogstatsd_addr",
				Message:  "datadog backend requires dogstatsd_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		})
	}
	return issues
}
