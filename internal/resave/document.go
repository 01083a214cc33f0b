// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resave

import (
	"context"
	"fmt"

	"github.com/pdiddy/report-resaver/internal/engine"
	"github.com/pdiddy/report-resaver/pkg/types"
)

// ApplyLogOn binds conn to every table of doc and of each of its
// sub-documents. It stops at the first failure.
func ApplyLogOn(ctx context.Context, doc engine.Document, conn types.ConnectionInfo) error {
	if err := applyTablesLogOn(ctx, doc, conn); err != nil {
		return err
	}

	subs, err := doc.Subreports(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := applyTablesLogOn(ctx, sub, conn); err != nil {
			return err
		}
	}
	return nil
}

func applyTablesLogOn(ctx context.Context, doc engine.Document, conn types.ConnectionInfo) error {
	tables, err := doc.Tables(ctx)
	if err != nil {
		return err
	}
	info := engine.LogOnInfo{Connection: conn}
	for _, t := range tables {
		if err := doc.ApplyLogOn(ctx, t, info); err != nil {
			return err
		}
	}
	return nil
}

// DefaultParameters binds a single null discrete value to every parameter
// of the main document that has no current value. Parameters owned by
// sub-documents are left alone. It returns the names of the parameters it
// defaulted.
func DefaultParameters(ctx context.Context, doc engine.Document) ([]string, error) {
	fields, err := doc.ParameterFields(ctx)
	if err != nil {
		return nil, err
	}

	var defaulted []string
	for _, f := range fields {
		if !f.BelongsTo(doc.Name()) || len(f.CurrentValues) > 0 {
			continue
		}
		if err := doc.ApplyCurrentValues(ctx, f, []engine.ParameterValue{engine.NullDiscrete()}); err != nil {
			return defaulted, err
		}
		defaulted = append(defaulted, f.Name)
	}
	return defaulted, nil
}

// Step names one stage of the per-file pipeline.
type Step string

const (
	StepLoad     Step = "load"
	StepLogOn    Step = "logon"
	StepVerify   Step = "verify"
	StepRefresh  Step = "refresh"
	StepSaveData Step = "save-data"
	StepParams   Step = "parameters"
	StepSave     Step = "save"
	StepVersion  Step = "version"
)

// StepError tags a pipeline failure with the stage it happened in. Its
// message is the underlying error's message alone.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Step)
	}
	return e.Err.Error()
}

func (e *StepError) Unwrap() error { return e.Err }
