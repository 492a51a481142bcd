// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang counter and summary collectors.
//   - Mapping the pipeline labels (dataset, status, kind) onto Prometheus
//     labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead
//     of exposing an HTTP scrape endpoint; a batch pipeline is usually gone
//     before a scraper would find it.
//
// The package intentionally contains all Prometheus-specific dependencies so
// that the rest of the project remains decoupled from Prometheus and can swap
// to alternative backends (e.g. Datadog) without changes to the pipeline.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"tmbulk/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	files        *prometheus.CounterVec // ingest_files_total
	fileDuration *prometheus.SummaryVec // ingest_file_duration_seconds
	records      *prometheus.CounterVec // ingest_records_total
	loadBatches  *prometheus.CounterVec // ingest_load_batches_total
	loadDuration *prometheus.SummaryVec // ingest_load_duration_seconds
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName is the Pushgateway "job" grouping key; gatewayURL the base URL of
// the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "tmbulk"
	}

	reg := prometheus.NewRegistry()

	files := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_files_total",
		Help: "Files processed, partitioned by dataset and outcome.",
	}, []string{"dataset", "status"})

	fileDuration := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "ingest_file_duration_seconds",
		Help:       "Wall-clock duration of one file, partitioned by dataset and outcome.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"dataset", "status"})

	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_records_total",
		Help: "Record-level counts per dataset and kind (parsed, parse_errors, staged, loaded).",
	}, []string{"dataset", "kind"})

	loadBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_load_batches_total",
		Help: "Upsert batches flushed to the destination store, per dataset.",
	}, []string{"dataset"})

	loadDuration := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "ingest_load_duration_seconds",
		Help:       "Duration of one upsert batch, per dataset.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"dataset"})

	for _, c := range []prometheus.Collector{files, fileDuration, records, loadBatches, loadDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:   gatewayURL,
		jobName:      jobName,
		reg:          reg,
		files:        files,
		fileDuration: fileDuration,
		records:      records,
		loadBatches:  loadBatches,
		loadDuration: loadDuration,
	}, nil
}

// IncCounter implements metrics.Backend.IncCounter.
// Unknown metric names are dropped; the interface is wider than any one
// backend's schema.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "ingest_files_total":
		b.files.WithLabelValues(labels["dataset"], labels["status"]).Add(delta)
	case "ingest_records_total":
		b.records.WithLabelValues(labels["dataset"], labels["kind"]).Add(delta)
	case "ingest_load_batches_total":
		b.loadBatches.WithLabelValues(labels["dataset"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.ObserveHistogram.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case "ingest_file_duration_seconds":
		b.fileDuration.WithLabelValues(labels["dataset"], labels["status"]).Observe(value)
	case "ingest_load_duration_seconds":
		b.loadDuration.WithLabelValues(labels["dataset"]).Observe(value)
	}
}

// Flush pushes all collected metrics to the Pushgateway.
func (b *Backend) Flush() error {
	if err := push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push(); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.gatewayURL, err)
	}
	return nil
}
