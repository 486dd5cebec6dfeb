// Package logging builds coredbg's structured logger: a log/slog
// logger fanned out through slog-multi to a human-readable stderr
// handler and, when configured, a JSON file handler — attach/detach,
// breakpoint mutation, signal dispatch, and plugin hook activity all
// go through this one logger rather than ad hoc fmt.Fprintf calls.
package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Config controls how the logger is built.
type Config struct {
	// Level is the minimum level written to either handler.
	Level slog.Level
	// FilePath, if non-empty, is opened for append and receives a
	// JSON-formatted copy of every log record alongside the
	// human-readable stderr stream.
	FilePath string
	// Stderr is where human-readable output goes (default os.Stderr).
	Stderr io.Writer
}

// New builds a *slog.Logger per cfg. Closing the returned file (if
// any) is the caller's responsibility via the returned closer.
func New(cfg Config) (*slog.Logger, func() error, error) {
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	handlers := []slog.Handler{
		slog.NewTextHandler(stderr, opts),
	}

	closer := func() error { return nil }
	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closer = f.Close
	}

	fanout := slogmulti.Fanout(handlers...)
	return slog.New(fanout), closer, nil
}
