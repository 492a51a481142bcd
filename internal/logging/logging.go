// Package logging configures the process-wide zerolog logger. Output is
// structured JSON on stderr; a console writer is available for interactive
// runs. High-frequency progress events go through a sampled logger so a
// hundred-million-row file does not produce a hundred million log lines.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the root logger. level is a zerolog level name ("debug",
// "info", "warn", "error"); unknown names fall back to info. When console is
// true the output is human-formatted instead of JSON.
func New(level string, console bool) zerolog.Logger {
	var w io.Writer = os.Stderr
	if console {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Sampled returns a child logger that keeps one in every n debug events.
// n <= 1 returns the logger unchanged.
func Sampled(log zerolog.Logger, n int) zerolog.Logger {
	if n <= 1 {
		return log
	}
	return log.Sample(&zerolog.BasicSampler{N: uint32(n)})
}
