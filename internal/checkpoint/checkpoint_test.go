package checkpoint

import (
	"testing"

	"tmbulk/pkg/records"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestLoadMissingIsZeroProgress(t *testing.T) {
	m := newManager(t)
	st, err := m.Load("TRCFECO2", "case_file.csv")
	if err != nil {
		t.Fatal(err)
	}
	if st.RowsConsumed != 0 || st.RowsSaved != 0 {
		t.Errorf("zero state: %+v", st)
	}
	if st.Dataset != "TRCFECO2" || st.File != "case_file.csv" {
		t.Errorf("identity not filled: %+v", st)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := newManager(t)
	in := State{Dataset: "TRTDXFAP", File: "apc200101.xml", RowsConsumed: 5000, RowsSaved: 4000}
	if err := m.Save(in); err != nil {
		t.Fatal(err)
	}
	out, err := m.Load("TRTDXFAP", "apc200101.xml")
	if err != nil {
		t.Fatal(err)
	}
	if out.RowsConsumed != 5000 || out.RowsSaved != 4000 {
		t.Errorf("round trip: %+v", out)
	}
	if out.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestStateIsolatedPerPair(t *testing.T) {
	m := newManager(t)
	if err := m.Save(State{Dataset: "A", File: "f.xml", RowsConsumed: 10}); err != nil {
		t.Fatal(err)
	}
	st, err := m.Load("B", "f.xml")
	if err != nil {
		t.Fatal(err)
	}
	if st.RowsConsumed != 0 {
		t.Errorf("state leaked across datasets: %+v", st)
	}
}

func TestStagingRoundTrip(t *testing.T) {
	m := newManager(t)
	batch := []records.Record{
		{"serial_no": int64(75000001), "mark_identification": "ACME"},
		{"serial_no": int64(75000002)},
	}
	if m.HasStaged("D", "f") {
		t.Fatal("staged before append")
	}
	if err := m.AppendStaged("D", "f", batch); err != nil {
		t.Fatal(err)
	}
	if !m.HasStaged("D", "f") {
		t.Fatal("HasStaged = false after append")
	}
	got, err := m.ReadStaged("D", "f")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("staged records = %d", len(got))
	}
	// JSON numbers decode as float64; compare through that.
	if got[0]["serial_no"] != float64(75000001) || got[0]["mark_identification"] != "ACME" {
		t.Errorf("staged record = %#v", got[0])
	}
}

func TestAppendStagedReplaces(t *testing.T) {
	m := newManager(t)
	if err := m.AppendStaged("D", "f", []records.Record{{"a": "1"}}); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendStaged("D", "f", []records.Record{{"b": "2"}}); err != nil {
		t.Fatal(err)
	}
	got, err := m.ReadStaged("D", "f")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("staging log accumulated: %#v", got)
	}
	if _, ok := got[0]["b"]; !ok {
		t.Errorf("old batch survived: %#v", got[0])
	}
}

func TestClearStagedKeepsCheckpoint(t *testing.T) {
	m := newManager(t)
	if err := m.Save(State{Dataset: "D", File: "f", RowsConsumed: 7, RowsSaved: 7}); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendStaged("D", "f", []records.Record{{"a": "1"}}); err != nil {
		t.Fatal(err)
	}
	if err := m.ClearStaged("D", "f"); err != nil {
		t.Fatal(err)
	}
	if m.HasStaged("D", "f") {
		t.Error("staging survived ClearStaged")
	}
	st, err := m.Load("D", "f")
	if err != nil {
		t.Fatal(err)
	}
	if st.RowsConsumed != 7 {
		t.Errorf("checkpoint lost: %+v", st)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	m := newManager(t)
	if err := m.Save(State{Dataset: "D", File: "f", RowsConsumed: 7}); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendStaged("D", "f", []records.Record{{"a": "1"}}); err != nil {
		t.Fatal(err)
	}
	if err := m.Clear("D", "f"); err != nil {
		t.Fatal(err)
	}
	if m.HasStaged("D", "f") {
		t.Error("staging survived Clear")
	}
	st, err := m.Load("D", "f")
	if err != nil {
		t.Fatal(err)
	}
	if st.RowsConsumed != 0 {
		t.Errorf("checkpoint survived Clear: %+v", st)
	}
	// Clearing again is a no-op.
	if err := m.Clear("D", "f"); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestKeySanitization(t *testing.T) {
	m := newManager(t)
	weird := "sub/dir\\file name?.xml"
	if err := m.Save(State{Dataset: "D", File: weird, RowsConsumed: 3}); err != nil {
		t.Fatal(err)
	}
	st, err := m.Load("D", weird)
	if err != nil {
		t.Fatal(err)
	}
	if st.RowsConsumed != 3 {
		t.Errorf("sanitized key round trip: %+v", st)
	}
	// Names that sanitize identically still map to distinct state.
	other := "sub_dir_file name_.xml"
	st2, err := m.Load("D", other)
	if err != nil {
		t.Fatal(err)
	}
	if st2.RowsConsumed != 0 {
		t.Errorf("collision after sanitization: %+v", st2)
	}
}
