// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the ingest pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the storage abstraction pattern used elsewhere in the
//     project: the rest of the codebase depends only on this interface while
//     concrete metric systems stay isolated in subpackages.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordFile records one processed file: a completion counter and its
// wall-clock duration, partitioned by dataset and outcome.
func RecordFile(dataset string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"dataset": dataset,
		"status":  status,
	}
	backend.IncCounter("ingest_files_total", 1, lbls)
	backend.ObserveHistogram("ingest_file_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a record-level counter for the given dataset and
// kind.
//
// Typical kinds mirror the run summary fields, e.g.:
//   - "parsed"
//   - "parse_errors"
//   - "staged"
//   - "loaded"
func RecordRows(dataset, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("ingest_records_total", float64(delta), Labels{
		"dataset": dataset,
		"kind":    kind,
	})
}

// ObserveLoad records one load batch: a batch counter and the upsert
// duration, partitioned by dataset.
func ObserveLoad(dataset string, rows int, d time.Duration) {
	lbls := Labels{"dataset": dataset}
	backend.IncCounter("ingest_load_batches_total", 1, lbls)
	backend.ObserveHistogram("ingest_load_duration_seconds", d.Seconds(), lbls)
	RecordRows(dataset, "loaded", int64(rows))
}
