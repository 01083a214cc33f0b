// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the diagnostic slog.Logger. Diagnostics go to the
// given writer (stderr in the CLI) and optionally to a rotated file.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pdiddy/report-resaver/pkg/types"
)

const (
	fileMaxSizeMB  = 10
	fileMaxBackups = 3
	fileMaxAgeDays = 30
)

// New returns a logger for cfg writing to w. When cfg.FilePath is set the
// returned closer owns the log file and must be closed; otherwise it is a
// no-op.
func New(cfg types.LoggingConfig, w io.Writer) (*slog.Logger, io.Closer, error) {
	if !ValidLevel(cfg.Level) {
		return nil, nil, fmt.Errorf("invalid log level %q: use debug, info, warn, or error", cfg.Level)
	}
	if !ValidFormat(cfg.Format) {
		return nil, nil, fmt.Errorf("invalid log format %q: use text or json", cfg.Format)
	}

	var closer io.Closer = nopCloser{}
	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    fileMaxSizeMB,
			MaxBackups: fileMaxBackups,
			MaxAge:     fileMaxAgeDays,
		}
		w = io.MultiWriter(w, lj)
		closer = lj
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// parseLevel converts a string to slog.Level, defaulting to Warn so that a
// normal run prints only progress lines.
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// ValidLevel returns true if s is a recognized log level or empty.
func ValidLevel(s string) bool {
	switch s {
	case "", "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat returns true if s is a recognized log format or empty.
func ValidFormat(s string) bool {
	switch s {
	case "", "text", "json":
		return true
	}
	return false
}
