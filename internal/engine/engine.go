// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine defines the report engine capability set used by the
// resaver and a Bridge implementation that drives an out-of-process engine
// host over a JSON line protocol.
package engine

import (
	"context"

	"github.com/pdiddy/report-resaver/pkg/types"
)

// Engine loads report documents and reports its own version.
type Engine interface {
	// Open loads the report at path. The caller owns the returned Document
	// and must Close it.
	Open(ctx context.Context, path string) (Document, error)

	// Version returns the engine's version identifier.
	Version(ctx context.Context) (string, error)
}

// Document is a loaded report. Sub-documents returned by Subreports share
// the parent's lifetime; only the main document is closed.
type Document interface {
	// Name is the report name as known to the engine.
	Name() string

	// Tables lists the database tables the document reads from.
	Tables(ctx context.Context) ([]Table, error)

	// Subreports lists the documents embedded in this one.
	Subreports(ctx context.Context) ([]Document, error)

	// ApplyLogOn replaces the login info of one table.
	ApplyLogOn(ctx context.Context, table Table, info LogOnInfo) error

	// VerifyDatabase checks the document schema against the live database.
	VerifyDatabase(ctx context.Context) error

	// Refresh re-executes the document queries.
	Refresh(ctx context.Context) error

	// SetSaveDataWithReport toggles persisting fetched data on save.
	SetSaveDataWithReport(ctx context.Context, enabled bool) error

	// ParameterFields lists every declared parameter, including those that
	// belong to sub-documents (see ParameterField.ReportName).
	ParameterFields(ctx context.Context) ([]ParameterField, error)

	// ApplyCurrentValues binds values to a parameter.
	ApplyCurrentValues(ctx context.Context, field ParameterField, values []ParameterValue) error

	// SaveAs writes the document to path.
	SaveAs(ctx context.Context, path string, overwrite bool) error

	// Close releases the engine's in-memory document.
	Close() error
}

// Table identifies one database table referenced by a document.
type Table struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// LogOnInfo is the login applied to a table.
type LogOnInfo struct {
	Connection types.ConnectionInfo `json:"connection"`
}

// ParameterValueKind distinguishes discrete from range values.
type ParameterValueKind string

const (
	DiscreteValue ParameterValueKind = "discrete"
	RangeValue    ParameterValueKind = "range"
)

// ParameterValue is one bound value of a parameter. A nil Value is the
// engine's null payload.
type ParameterValue struct {
	Kind  ParameterValueKind `json:"kind"`
	Value any                `json:"value"`
}

// NullDiscrete returns a discrete value with a null payload.
func NullDiscrete() ParameterValue {
	return ParameterValue{Kind: DiscreteValue, Value: nil}
}

// ParameterField is a declared report parameter.
type ParameterField struct {
	Name string `json:"name"`

	// ReportName is the owning sub-document, or "" for the main document.
	// Some engines report the main document's own name instead of "".
	ReportName string `json:"report_name"`

	CurrentValues []ParameterValue `json:"current_values"`
}

// BelongsTo reports whether the parameter is declared on the document
// named reportName (treated as the main document).
func (p ParameterField) BelongsTo(reportName string) bool {
	return p.ReportName == "" || p.ReportName == reportName
}
