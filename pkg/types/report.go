// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// FileStatus is the outcome of processing one report file.
type FileStatus string

const (
	FileSucceeded FileStatus = "succeeded"
	FileFailed    FileStatus = "failed"
)

// FileResult records what happened to a single source report. Exactly one
// of Version (on success) or Err (on failure) is meaningful.
type FileResult struct {
	// Source is the path of the report as found under the source directory.
	Source string `json:"source" yaml:"source"`

	// Dest is the path the report is (or would have been) saved to.
	Dest string `json:"dest" yaml:"dest"`

	Status FileStatus `json:"status" yaml:"status"`

	// Version is the engine version reported after a successful save.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Err is the first failure of the pipeline.
	Err error `json:"-" yaml:"-"`
}

// Succeeded reports whether the file was resaved.
func (r FileResult) Succeeded() bool {
	return r.Status == FileSucceeded
}

// ErrorMessage returns the failure message, or "" on success.
func (r FileResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RunRecord describes one resave run for the history ledger.
type RunRecord struct {
	ID         string    `json:"id" yaml:"id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	SourceDir  string    `json:"source_dir" yaml:"source_dir"`
	DestDir    string    `json:"dest_dir" yaml:"dest_dir"`
	Total      int       `json:"total" yaml:"total"`
	Succeeded  int       `json:"succeeded" yaml:"succeeded"`
	Failed     int       `json:"failed" yaml:"failed"`
}
