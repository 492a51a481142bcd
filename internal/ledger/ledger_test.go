package ledger

import "testing"

func TestShouldSkip(t *testing.T) {
	cases := []struct {
		name   string
		entry  Entry
		found  bool
		force  bool
		want   bool
	}{
		{"unknown file", Entry{}, false, false, false},
		{"completed", Entry{Status: StatusCompleted}, true, false, true},
		{"completed forced", Entry{Status: StatusCompleted}, true, true, false},
		{"errored retries", Entry{Status: StatusError}, true, false, false},
		{"interrupted retries", Entry{Status: StatusProcessing}, true, false, false},
		{"pending retries", Entry{Status: StatusPending}, true, false, false},
	}
	for _, c := range cases {
		if got := ShouldSkip(c.entry, c.found, c.force); got != c.want {
			t.Errorf("%s: ShouldSkip = %v, want %v", c.name, got, c.want)
		}
	}
}
