// Package logging builds the process-wide slog.Logger from configuration.
//
// Everything else receives a *slog.Logger through its constructor; nothing
// outside cmd/ and this package calls slog.SetDefault.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sakif/runquest/internal/config"
)

// New returns a logger for cfg and a Close func that flushes the log file.
// When cfg.File is empty logs go to stdout and Close is a no-op.
func New(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out     io.Writer = os.Stdout
		closeFn           = func() error { return nil }
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = rotator
		closeFn = rotator.Close
	}

	return slog.New(NewHandler(out, cfg.Format, level)), closeFn, nil
}

// NewHandler picks the JSON or text handler for format.
func NewHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Discard is a logger for tests and for CLI runs that only print results.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
