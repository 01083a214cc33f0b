// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resave batch-converts legacy report files by loading each one
// through the report engine, rebinding its database login, refreshing its
// data, and saving it with the data embedded.
package resave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pdiddy/report-resaver/internal/engine"
	"github.com/pdiddy/report-resaver/internal/runlog"
	"github.com/pdiddy/report-resaver/pkg/types"
)

// BatchResult holds the outcome of a resave run.
type BatchResult struct {
	Succeeded int
	Failed    int

	// Files lists every per-file result in processing order.
	Files []types.FileResult
}

// Total returns the number of report files seen.
func (r BatchResult) Total() int {
	return r.Succeeded + r.Failed
}

// HasFailures reports whether any report failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

func (r *BatchResult) add(res types.FileResult) {
	if res.Succeeded() {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Files = append(r.Files, res)
}

// Summary returns the run summary block printed at the end of a run.
func (r BatchResult) Summary(errorLogPath string) string {
	return fmt.Sprintf("Total .rpt files: %d\n"+
		"Successfully processed files: %d\n"+
		"Files with errors: %d\n"+
		"Error log file: %s",
		r.Total(), r.Succeeded, r.Failed, errorLogPath)
}

// Resaver runs the per-file pipeline against one engine for one run
// configuration.
type Resaver struct {
	engine engine.Engine
	cfg    types.ResaveConfig
	logs   *runlog.Logs
	out    io.Writer
	logger *slog.Logger
}

// New creates a Resaver. Progress lines go to out; the run logs are rooted
// at cfg.DestDir.
func New(e engine.Engine, cfg types.ResaveConfig, out io.Writer, logger *slog.Logger) *Resaver {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resaver{
		engine: e,
		cfg:    cfg,
		logs:   runlog.New(cfg.DestDir, out),
		out:    out,
		logger: logger,
	}
}

// Logs returns the run logs.
func (r *Resaver) Logs() *runlog.Logs {
	return r.logs
}

// Run creates the destination directory, resaves every report under the
// source directory, then prints and logs the summary. Per-file failures are
// counted, never returned; only an uncreatable destination or a failed scan
// is an error.
func (r *Resaver) Run(ctx context.Context) (BatchResult, error) {
	if err := os.MkdirAll(r.cfg.DestDir, 0o755); err != nil {
		return BatchResult{}, fmt.Errorf("creating destination directory %s: %w", r.cfg.DestDir, err)
	}

	paths, err := FindReports(r.cfg.SourceDir)
	if err != nil {
		return BatchResult{}, err
	}
	r.logger.Info("resave started", "source", r.cfg.SourceDir, "dest", r.cfg.DestDir, "reports", len(paths))

	var result BatchResult
	for _, p := range paths {
		result.add(r.ProcessOne(ctx, p))
	}

	summary := result.Summary(r.logs.ErrorsPath)
	fmt.Fprintln(r.out, summary)
	r.logs.Summary(summary)

	r.logger.Info("resave finished",
		"total", result.Total(), "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// ProcessOne resaves a single report and records the outcome in the
// version or error log.
func (r *Resaver) ProcessOne(ctx context.Context, src string) types.FileResult {
	res := types.FileResult{Source: src, Dest: DestPath(r.cfg.DestDir, src)}

	version, err := r.resave(ctx, src, res.Dest)
	if err != nil {
		fmt.Fprintf(r.out, "Error processing file %s: %v\n", src, err)
		r.logs.Error(src, err.Error())
		r.logger.Debug("report failed", "path", src, "step", failedStep(err), "error", err)
		res.Status = types.FileFailed
		res.Err = err
		return res
	}

	res.Status = types.FileSucceeded
	res.Version = version
	return res
}

func (r *Resaver) resave(ctx context.Context, src, dest string) (string, error) {
	doc, err := r.engine.Open(ctx, src)
	if err != nil {
		return "", &StepError{Step: StepLoad, Err: err}
	}
	defer func() {
		if err := doc.Close(); err != nil {
			fmt.Fprintf(r.out, "warning: closing report %s: %v\n", src, err)
		}
	}()
	fmt.Fprintf(r.out, "Report %s loaded successfully.\n", src)

	if err := ApplyLogOn(ctx, doc, r.cfg.Connection); err != nil {
		return "", &StepError{Step: StepLogOn, Err: err}
	}

	if err := doc.VerifyDatabase(ctx); err != nil {
		return "", &StepError{Step: StepVerify, Err: err}
	}
	if err := doc.Refresh(ctx); err != nil {
		return "", &StepError{Step: StepRefresh, Err: err}
	}
	fmt.Fprintln(r.out, "Data loaded into the report.")

	if err := doc.SetSaveDataWithReport(ctx, true); err != nil {
		return "", &StepError{Step: StepSaveData, Err: err}
	}

	defaulted, err := DefaultParameters(ctx, doc)
	if err != nil {
		return "", &StepError{Step: StepParams, Err: err}
	}
	if len(defaulted) > 0 {
		r.logger.Debug("parameters defaulted to null", "path", src, "parameters", defaulted)
	}

	if err := doc.SaveAs(ctx, dest, true); err != nil {
		return "", &StepError{Step: StepSave, Err: err}
	}
	fmt.Fprintf(r.out, "Report saved as %s.\n", dest)

	version, err := r.engine.Version(ctx)
	if err != nil {
		return "", &StepError{Step: StepVersion, Err: err}
	}
	r.logs.Version(src, version)
	fmt.Fprintf(r.out, "Report %s is using Crystal Reports version: %s\n", src, version)

	return version, nil
}

func failedStep(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
