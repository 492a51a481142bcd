package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		log := New(tc.in, false)
		if got := log.GetLevel(); got != tc.want {
			t.Errorf("New(%q) level = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSampledPassthrough(t *testing.T) {
	log := New("debug", false)
	for _, n := range []int{0, 1} {
		got := Sampled(log, n)
		if got.GetLevel() != log.GetLevel() {
			t.Errorf("Sampled(log, %d) changed level", n)
		}
	}
}
