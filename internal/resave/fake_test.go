// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resave

import (
	"context"
	"errors"
	"os"

	"github.com/pdiddy/report-resaver/internal/engine"
	"github.com/pdiddy/report-resaver/pkg/types"
)

// fakeEngine implements engine.Engine over an in-memory set of documents
// keyed by source path.
type fakeEngine struct {
	docs       map[string]*fakeDoc
	version    string
	versionErr error
	opened     []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{docs: map[string]*fakeDoc{}, version: "13.0.4000.0"}
}

// add registers a document for path and returns it for further setup.
func (e *fakeEngine) add(path string, doc *fakeDoc) *fakeDoc {
	e.docs[path] = doc
	return doc
}

func (e *fakeEngine) Open(ctx context.Context, path string) (engine.Document, error) {
	e.opened = append(e.opened, path)
	d, ok := e.docs[path]
	if !ok {
		return nil, errors.New("Load report failed.")
	}
	if d.loadErr != nil {
		return nil, d.loadErr
	}
	d.open = true
	return d, nil
}

func (e *fakeEngine) Version(ctx context.Context) (string, error) {
	if e.versionErr != nil {
		return "", e.versionErr
	}
	return e.version, nil
}

// fakeDoc is a report (or sub-document) that records every call.
type fakeDoc struct {
	name   string
	tables []engine.Table
	subs   []*fakeDoc
	params []engine.ParameterField

	loadErr    error
	logonErr   error
	verifyErr  error
	refreshErr error
	saveErr    error
	closeErr   error

	logons   map[string]types.ConnectionInfo
	calls    []string
	saveData bool
	savedTo  string
	open     bool
	closed   int
}

func newDoc(name string, tables ...string) *fakeDoc {
	d := &fakeDoc{name: name, logons: map[string]types.ConnectionInfo{}}
	for _, t := range tables {
		d.tables = append(d.tables, engine.Table{Name: t})
	}
	return d
}

func (d *fakeDoc) Name() string { return d.name }

func (d *fakeDoc) Tables(ctx context.Context) ([]engine.Table, error) {
	return d.tables, nil
}

func (d *fakeDoc) Subreports(ctx context.Context) ([]engine.Document, error) {
	subs := make([]engine.Document, len(d.subs))
	for i, s := range d.subs {
		subs[i] = s
	}
	return subs, nil
}

func (d *fakeDoc) ApplyLogOn(ctx context.Context, table engine.Table, info engine.LogOnInfo) error {
	if d.logonErr != nil {
		return d.logonErr
	}
	d.logons[table.Name] = info.Connection
	return nil
}

func (d *fakeDoc) VerifyDatabase(ctx context.Context) error {
	d.calls = append(d.calls, "verify")
	return d.verifyErr
}

func (d *fakeDoc) Refresh(ctx context.Context) error {
	d.calls = append(d.calls, "refresh")
	return d.refreshErr
}

func (d *fakeDoc) SetSaveDataWithReport(ctx context.Context, enabled bool) error {
	d.calls = append(d.calls, "save-data")
	d.saveData = enabled
	return nil
}

func (d *fakeDoc) ParameterFields(ctx context.Context) ([]engine.ParameterField, error) {
	return d.params, nil
}

func (d *fakeDoc) ApplyCurrentValues(ctx context.Context, field engine.ParameterField, values []engine.ParameterValue) error {
	d.calls = append(d.calls, "param:"+field.Name)
	for i := range d.params {
		if d.params[i].Name == field.Name && d.params[i].ReportName == field.ReportName {
			d.params[i].CurrentValues = values
		}
	}
	return nil
}

func (d *fakeDoc) SaveAs(ctx context.Context, path string, overwrite bool) error {
	d.calls = append(d.calls, "save")
	if d.saveErr != nil {
		return d.saveErr
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists")
		}
	}
	d.savedTo = path
	return os.WriteFile(path, []byte("resaved "+d.name), 0o644)
}

func (d *fakeDoc) Close() error {
	d.closed++
	d.open = false
	return d.closeErr
}
