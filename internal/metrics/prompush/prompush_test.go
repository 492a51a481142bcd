package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"tmbulk/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()
	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	sum := m.GetSummary()
	return sum.GetSampleCount(), sum.GetSampleSum()
}

func TestNewBackendValidation(t *testing.T) {
	if _, err := NewBackend("tmbulk", ""); err == nil {
		t.Fatal("want error for empty gateway URL")
	}
	b, err := NewBackend("", "http://localhost:9091")
	if err != nil {
		t.Fatal(err)
	}
	if b.jobName != "tmbulk" {
		t.Errorf("default job name = %q", b.jobName)
	}
}

func TestCountersAndSummaries(t *testing.T) {
	b, err := NewBackend("tmbulk", "http://localhost:9091")
	if err != nil {
		t.Fatal(err)
	}

	b.IncCounter("ingest_files_total", 1, metrics.Labels{"dataset": "TRTDXFAP", "status": "success"})
	b.IncCounter("ingest_files_total", 1, metrics.Labels{"dataset": "TRTDXFAP", "status": "success"})
	b.IncCounter("ingest_records_total", 42, metrics.Labels{"dataset": "TRTDXFAP", "kind": "loaded"})
	b.IncCounter("no_such_metric", 7, nil) // silently dropped
	b.ObserveHistogram("ingest_load_duration_seconds", 0.25, metrics.Labels{"dataset": "TRTDXFAP"})
	b.ObserveHistogram("ingest_load_duration_seconds", 0.75, metrics.Labels{"dataset": "TRTDXFAP"})

	files := b.files.WithLabelValues("TRTDXFAP", "success")
	if got := readCounterValue(t, files); got != 2 {
		t.Errorf("files counter = %v", got)
	}
	recs := b.records.WithLabelValues("TRTDXFAP", "loaded")
	if got := readCounterValue(t, recs); got != 42 {
		t.Errorf("records counter = %v", got)
	}
	n, sum := readSummaryCountSum(t, b.loadDuration, "TRTDXFAP")
	if n != 2 || sum < 0.999 || sum > 1.001 {
		t.Errorf("load duration summary: count=%d sum=%v", n, sum)
	}
}

func TestFlushPushesToGateway(t *testing.T) {
	var (
		gotPath string
		gotBody int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = len(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("tmbulk", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter("ingest_files_total", 1, metrics.Labels{"dataset": "TTABYR", "status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if gotPath != "/metrics/job/tmbulk" {
		t.Errorf("push path = %q", gotPath)
	}
	if gotBody == 0 {
		t.Error("empty push body")
	}
}

func TestFlushErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, err := NewBackend("tmbulk", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(); err == nil {
		t.Fatal("want error from failing gateway")
	}
}
