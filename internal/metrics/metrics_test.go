package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func TestRecordFile_SuccessAndFailure(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordFile("TRTDXFAP", nil, 2*time.Second)
	RecordFile("TRTYRAG", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("counters=%d histograms=%d", len(fb.callsCounters), len(fb.callsHistograms))
	}

	c0 := fb.callsCounters[0]
	if c0.name != "ingest_files_total" || c0.delta != 1 {
		t.Fatalf("counter[0] = %#v", c0)
	}
	if c0.labels["dataset"] != "TRTDXFAP" || c0.labels["status"] != "success" {
		t.Fatalf("counter[0] labels = %v", c0.labels)
	}
	h0 := fb.callsHistograms[0]
	if h0.name != "ingest_file_duration_seconds" || h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0] = %#v", h0)
	}

	c1 := fb.callsCounters[1]
	if c1.labels["dataset"] != "TRTYRAG" || c1.labels["status"] != "failure" {
		t.Fatalf("counter[1] labels = %v", c1.labels)
	}
}

func TestRecordRowsAndObserveLoad(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	backend = fb

	RecordRows("TRCFECO2", "parsed", 3)
	RecordRows("TRCFECO2", "parsed", 0) // ignored
	ObserveLoad("TRCFECO2", 5, 250*time.Millisecond)

	if len(fb.callsCounters) != 3 {
		t.Fatalf("counter calls = %d", len(fb.callsCounters))
	}
	c0 := fb.callsCounters[0]
	if c0.name != "ingest_records_total" || c0.delta != 3 || c0.labels["kind"] != "parsed" {
		t.Fatalf("counter[0] = %#v", c0)
	}
	c1 := fb.callsCounters[1]
	if c1.name != "ingest_load_batches_total" || c1.delta != 1 {
		t.Fatalf("counter[1] = %#v", c1)
	}
	c2 := fb.callsCounters[2]
	if c2.name != "ingest_records_total" || c2.delta != 5 || c2.labels["kind"] != "loaded" {
		t.Fatalf("counter[2] = %#v", c2)
	}
	if len(fb.callsHistograms) != 1 || fb.callsHistograms[0].name != "ingest_load_duration_seconds" {
		t.Fatalf("histograms = %#v", fb.callsHistograms)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)

	if backend != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("flushCount = %d", fb.flushCount)
	}

	// SetBackend(nil) should not nil out the backend.
	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
