// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runlog writes the three append-only text logs of a resave run.
// Writes are best effort: a failure is reported on the console writer and
// otherwise ignored.
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	VersionsFile = "report_versions_log.txt"
	ErrorsFile   = "report_errors_log.txt"
	SummaryFile  = "report_summary_log.txt"
)

// Logs holds the paths of the version, error, and summary logs.
type Logs struct {
	VersionsPath string
	ErrorsPath   string
	SummaryPath  string

	// console receives log-write failures.
	console io.Writer
}

// New returns the logs rooted at destDir. Nothing is created until the
// first append.
func New(destDir string, console io.Writer) *Logs {
	if console == nil {
		console = io.Discard
	}
	return &Logs{
		VersionsPath: filepath.Join(destDir, VersionsFile),
		ErrorsPath:   filepath.Join(destDir, ErrorsFile),
		SummaryPath:  filepath.Join(destDir, SummaryFile),
		console:      console,
	}
}

// Version records the engine version used for a successfully resaved report.
func (l *Logs) Version(src, version string) {
	line := fmt.Sprintf("Report %s is using Crystal Reports version: %s", src, version)
	if err := appendLine(l.VersionsPath, line); err != nil {
		fmt.Fprintf(l.console, "Failed to write to log file: %v\n", err)
	}
}

// Error records a report that failed processing.
func (l *Logs) Error(src, message string) {
	line := fmt.Sprintf("Error processing file %s: %s", src, message)
	if err := appendLine(l.ErrorsPath, line); err != nil {
		fmt.Fprintf(l.console, "Failed to write to error log file: %v\n", err)
	}
}

// Summary appends a run summary block.
func (l *Logs) Summary(summary string) {
	if err := appendLine(l.SummaryPath, summary); err != nil {
		fmt.Fprintf(l.console, "Failed to write to summary log file: %v\n", err)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
