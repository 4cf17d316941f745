// Package logging bootstraps the process-wide zerolog logger. Every
// component logger is a child of the root logger via
// With().Str("component", ...), so a single sink and redaction policy
// governs the whole process.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/truthfeed/engine/internal/secrets"
)

// Config controls the root logger's output shape.
type Config struct {
	// Level parses via zerolog.ParseLevel ("debug", "info", "warn", "error").
	Level string
	// Pretty forces the human-readable console writer regardless of TTY
	// detection; used by `truthfeed serve --pretty-logs` for local dev.
	Pretty bool
	// Redact scrubs DSNs, API keys, and other secret-shaped substrings
	// from every log line before it's written.
	Redact bool
}

// redactingWriter wraps an io.Writer and runs every write through a
// secrets.Redactor first.
type redactingWriter struct {
	out      io.Writer
	redactor *secrets.Redactor
}

func (w redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.RedactBytes(p)
	if _, err := w.out.Write(redacted); err != nil {
		return 0, err
	}
	return len(p), nil
}

// New builds the root logger per cfg. Output goes to stderr,
// console-pretty when stderr is a TTY (or cfg.Pretty is set), structured
// JSON otherwise.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Pretty || isatty.IsTerminal(os.Stderr.Fd()) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	if cfg.Redact {
		out = redactingWriter{out: out, redactor: secrets.NewRedactor()}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with name, the convention every
// package in this module uses to scope its log lines (e.g.
// logger.Component("adapter.evm.thales")).
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
