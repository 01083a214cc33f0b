// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resave

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/report-resaver/internal/engine"
	"github.com/pdiddy/report-resaver/internal/runlog"
	"github.com/pdiddy/report-resaver/pkg/types"
)

var testConn = types.ConnectionInfo{
	ServerName:   "sql01",
	DatabaseName: "Sales",
	UserID:       "report_svc",
	Password:     "s3cret",
}

// setupSource creates .rpt files (relative paths, may include subdirs)
// under a fresh source directory and returns the run config.
func setupSource(t *testing.T, names ...string) types.ResaveConfig {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "in")
	for _, n := range names {
		p := filepath.Join(src, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("legacy"), 0o644))
	}
	return types.ResaveConfig{
		SourceDir:  src,
		DestDir:    filepath.Join(root, "out"),
		Connection: testConn,
	}
}

func readLog(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestRunMixedOutcomes(t *testing.T) {
	cfg := setupSource(t, "a.rpt", "nested/b.rpt", "c.rpt")
	eng := newFakeEngine()
	eng.add(filepath.Join(cfg.SourceDir, "a.rpt"), newDoc("a", "Orders"))
	eng.add(filepath.Join(cfg.SourceDir, "nested", "b.rpt"), newDoc("b", "Customers"))
	bad := eng.add(filepath.Join(cfg.SourceDir, "c.rpt"), newDoc("c", "Invoices"))
	bad.verifyErr = errors.New("Failed to open the connection.")

	var out bytes.Buffer
	r := New(eng, cfg, &out, nil)
	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total())
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, result.HasFailures())
	assert.Len(t, result.Files, 3)

	versions := readLog(t, filepath.Join(cfg.DestDir, runlog.VersionsFile))
	errs := readLog(t, filepath.Join(cfg.DestDir, runlog.ErrorsFile))
	assert.Len(t, versions, 2)
	require.Len(t, errs, 1)
	assert.Equal(t, "Error processing file "+filepath.Join(cfg.SourceDir, "c.rpt")+": Failed to open the connection.", errs[0])

	// Output reports sit directly under the destination directory.
	for _, name := range []string{"a.rpt", "b.rpt"} {
		assert.FileExists(t, filepath.Join(cfg.DestDir, name))
	}
	assert.NoFileExists(t, filepath.Join(cfg.DestDir, "c.rpt"))
	assert.NoDirExists(t, filepath.Join(cfg.DestDir, "nested"))

	summary := out.String()
	assert.Contains(t, summary, "Total .rpt files: 3\n")
	assert.Contains(t, summary, "Successfully processed files: 2\n")
	assert.Contains(t, summary, "Files with errors: 1\n")
	assert.Contains(t, summary, "Error log file: "+filepath.Join(cfg.DestDir, runlog.ErrorsFile))

	summaryLog := readLog(t, filepath.Join(cfg.DestDir, runlog.SummaryFile))
	assert.Equal(t, []string{
		"Total .rpt files: 3",
		"Successfully processed files: 2",
		"Files with errors: 1",
		"Error log file: " + filepath.Join(cfg.DestDir, runlog.ErrorsFile),
	}, summaryLog)
}

func TestRunEveryFileLoggedExactlyOnce(t *testing.T) {
	cfg := setupSource(t, "ok1.rpt", "ok2.rpt", "bad-load.rpt", "bad-save.rpt", "deep/x/ok3.rpt")
	eng := newFakeEngine()
	for _, n := range []string{"ok1.rpt", "ok2.rpt", "deep/x/ok3.rpt"} {
		eng.add(filepath.Join(cfg.SourceDir, n), newDoc(n, "T"))
	}
	eng.add(filepath.Join(cfg.SourceDir, "bad-load.rpt"), &fakeDoc{loadErr: errors.New("Invalid file.")})
	saveFail := eng.add(filepath.Join(cfg.SourceDir, "bad-save.rpt"), newDoc("bad-save", "T"))
	saveFail.saveErr = errors.New("Access is denied.")

	result, err := New(eng, cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, result.Total(), result.Succeeded+result.Failed)

	versions := strings.Join(readLog(t, filepath.Join(cfg.DestDir, runlog.VersionsFile)), "\n")
	errs := strings.Join(readLog(t, filepath.Join(cfg.DestDir, runlog.ErrorsFile)), "\n")

	for _, f := range result.Files {
		inVersions := strings.Contains(versions, "Report "+f.Source+" ")
		inErrors := strings.Contains(errs, "Error processing file "+f.Source+":")
		if f.Succeeded() {
			assert.True(t, inVersions, "%s missing from version log", f.Source)
			assert.False(t, inErrors, "%s must not be in error log", f.Source)
			assert.FileExists(t, f.Dest)
		} else {
			assert.False(t, inVersions, "%s must not be in version log", f.Source)
			assert.True(t, inErrors, "%s missing from error log", f.Source)
		}
	}
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
}

func TestRunCreatesDestination(t *testing.T) {
	cfg := setupSource(t, "a.rpt")
	cfg.DestDir = filepath.Join(cfg.DestDir, "deeply", "nested")
	eng := newFakeEngine()
	eng.add(filepath.Join(cfg.SourceDir, "a.rpt"), newDoc("a"))

	_, err := os.Stat(cfg.DestDir)
	require.True(t, os.IsNotExist(err))

	_, err = New(eng, cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)

	assert.DirExists(t, cfg.DestDir)
	versions := readLog(t, filepath.Join(cfg.DestDir, runlog.VersionsFile))
	require.Len(t, versions, 1)
	assert.True(t, strings.HasPrefix(versions[0], "Report "), "fresh log begins with the first entry")
}

func TestRunDestinationUncreatableIsFatal(t *testing.T) {
	cfg := setupSource(t, "a.rpt")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.DestDir = filepath.Join(blocker, "out")

	eng := newFakeEngine()
	_, err := New(eng, cfg, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating destination directory")
	assert.Empty(t, eng.opened, "no file is processed when the destination cannot be created")
}

func TestRunMissingSourceIsFatal(t *testing.T) {
	cfg := setupSource(t)
	cfg.SourceDir = filepath.Join(cfg.SourceDir, "missing")

	_, err := New(newFakeEngine(), cfg, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanning")
}

func TestRunRerunAppendsAndOverwrites(t *testing.T) {
	cfg := setupSource(t, "a.rpt")
	eng := newFakeEngine()
	eng.add(filepath.Join(cfg.SourceDir, "a.rpt"), newDoc("a", "T"))

	require.NoError(t, os.MkdirAll(cfg.DestDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DestDir, "a.rpt"), []byte("stale"), 0o644))

	for i := 0; i < 2; i++ {
		_, err := New(eng, cfg, nil, nil).Run(context.Background())
		require.NoError(t, err)
	}

	assert.Len(t, readLog(t, filepath.Join(cfg.DestDir, runlog.VersionsFile)), 2)
	assert.Len(t, readLog(t, filepath.Join(cfg.DestDir, runlog.SummaryFile)), 8)

	data, err := os.ReadFile(filepath.Join(cfg.DestDir, "a.rpt"))
	require.NoError(t, err)
	assert.Equal(t, "resaved a", string(data))
}

func TestRunEmptySource(t *testing.T) {
	cfg := setupSource(t, "notes.txt")

	var out bytes.Buffer
	result, err := New(newFakeEngine(), cfg, &out, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total())
	assert.Contains(t, out.String(), "Total .rpt files: 0")
}

func TestProcessOnePipeline(t *testing.T) {
	cfg := setupSource(t, "main.rpt")
	require.NoError(t, os.MkdirAll(cfg.DestDir, 0o755))
	src := filepath.Join(cfg.SourceDir, "main.rpt")

	eng := newFakeEngine()
	sub1 := newDoc("Lines", "InvoiceLines", "Products")
	sub2 := newDoc("Totals", "Ledger")
	doc := eng.add(src, newDoc("Invoices", "Invoices", "Customers"))
	doc.subs = []*fakeDoc{sub1, sub2}

	var out bytes.Buffer
	res := New(eng, cfg, &out, nil).ProcessOne(context.Background(), src)

	require.True(t, res.Succeeded(), "unexpected failure: %v", res.Err)
	assert.Equal(t, "13.0.4000.0", res.Version)
	assert.Equal(t, filepath.Join(cfg.DestDir, "main.rpt"), res.Dest)

	for _, d := range []*fakeDoc{doc, sub1, sub2} {
		require.Len(t, d.logons, len(d.tables), "every table of %s is rebound", d.name)
		for _, conn := range d.logons {
			assert.Equal(t, testConn, conn)
		}
	}

	assert.Equal(t, []string{"verify", "refresh", "save-data", "save"}, doc.calls)
	assert.True(t, doc.saveData)
	assert.Equal(t, 1, doc.closed)
	assert.Equal(t, 0, sub1.closed, "sub-documents are released with the main document")

	got := out.String()
	assert.Contains(t, got, "Report "+src+" loaded successfully.\n")
	assert.Contains(t, got, "Data loaded into the report.\n")
	assert.Contains(t, got, "Report saved as "+res.Dest+".\n")
	assert.Contains(t, got, "Report "+src+" is using Crystal Reports version: 13.0.4000.0\n")
}

func TestProcessOneFailuresCloseDocument(t *testing.T) {
	stepErr := errors.New("engine said no")

	tests := []struct {
		name     string
		setup    func(d *fakeDoc)
		wantStep Step
	}{
		{name: "logon", setup: func(d *fakeDoc) { d.logonErr = stepErr }, wantStep: StepLogOn},
		{name: "sub-document logon", setup: func(d *fakeDoc) {
			sub := newDoc("sub", "T2")
			sub.logonErr = stepErr
			d.subs = []*fakeDoc{sub}
		}, wantStep: StepLogOn},
		{name: "verify", setup: func(d *fakeDoc) { d.verifyErr = stepErr }, wantStep: StepVerify},
		{name: "refresh", setup: func(d *fakeDoc) { d.refreshErr = stepErr }, wantStep: StepRefresh},
		{name: "save", setup: func(d *fakeDoc) { d.saveErr = stepErr }, wantStep: StepSave},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := setupSource(t, "r.rpt")
			require.NoError(t, os.MkdirAll(cfg.DestDir, 0o755))
			src := filepath.Join(cfg.SourceDir, "r.rpt")

			eng := newFakeEngine()
			doc := eng.add(src, newDoc("r", "T"))
			tt.setup(doc)

			r := New(eng, cfg, nil, nil)
			res := r.ProcessOne(context.Background(), src)

			require.False(t, res.Succeeded())
			assert.Equal(t, types.FileFailed, res.Status)
			assert.Equal(t, "engine said no", res.ErrorMessage(), "only the engine message is kept")
			assert.Equal(t, tt.wantStep, failedStep(res.Err))
			assert.ErrorIs(t, res.Err, stepErr)
			assert.Equal(t, 1, doc.closed, "document is released on failure")

			assert.Equal(t, []string{"Error processing file " + src + ": engine said no"},
				readLog(t, r.Logs().ErrorsPath))
			assert.Nil(t, readLog(t, r.Logs().VersionsPath))
		})
	}
}

func TestProcessOneVerifyFailureSkipsRefresh(t *testing.T) {
	cfg := setupSource(t, "r.rpt")
	require.NoError(t, os.MkdirAll(cfg.DestDir, 0o755))
	src := filepath.Join(cfg.SourceDir, "r.rpt")

	eng := newFakeEngine()
	doc := eng.add(src, newDoc("r", "T"))
	doc.verifyErr = errors.New("Database logon failed.")

	res := New(eng, cfg, nil, nil).ProcessOne(context.Background(), src)
	require.False(t, res.Succeeded())
	assert.Equal(t, []string{"verify"}, doc.calls)
}

func TestProcessOneLoadFailure(t *testing.T) {
	cfg := setupSource(t, "r.rpt")
	require.NoError(t, os.MkdirAll(cfg.DestDir, 0o755))
	src := filepath.Join(cfg.SourceDir, "r.rpt")

	eng := newFakeEngine()
	eng.add(src, &fakeDoc{loadErr: errors.New("The report format is not supported.")})

	res := New(eng, cfg, nil, nil).ProcessOne(context.Background(), src)
	require.False(t, res.Succeeded())
	assert.Equal(t, StepLoad, failedStep(res.Err))
	assert.Equal(t, "The report format is not supported.", res.ErrorMessage())
}

func TestProcessOneVersionFailure(t *testing.T) {
	cfg := setupSource(t, "r.rpt")
	require.NoError(t, os.MkdirAll(cfg.DestDir, 0o755))
	src := filepath.Join(cfg.SourceDir, "r.rpt")

	eng := newFakeEngine()
	doc := eng.add(src, newDoc("r", "T"))
	eng.versionErr = errors.New("engine version unavailable")

	r := New(eng, cfg, nil, nil)
	res := r.ProcessOne(context.Background(), src)
	require.False(t, res.Succeeded())
	assert.Equal(t, StepVersion, failedStep(res.Err))
	assert.Equal(t, 1, doc.closed)
	assert.Nil(t, readLog(t, r.Logs().VersionsPath))
}

func TestProcessOneCloseFailureKeepsSuccess(t *testing.T) {
	cfg := setupSource(t, "r.rpt")
	require.NoError(t, os.MkdirAll(cfg.DestDir, 0o755))
	src := filepath.Join(cfg.SourceDir, "r.rpt")

	eng := newFakeEngine()
	doc := eng.add(src, newDoc("r", "T"))
	doc.closeErr = errors.New("engine host exited 1")

	var out bytes.Buffer
	res := New(eng, cfg, &out, nil).ProcessOne(context.Background(), src)
	assert.True(t, res.Succeeded())
	assert.Contains(t, out.String(), "warning: closing report")
}

func TestDefaultParametersMainDocumentOnly(t *testing.T) {
	cfg := setupSource(t, "p.rpt")
	require.NoError(t, os.MkdirAll(cfg.DestDir, 0o755))
	src := filepath.Join(cfg.SourceDir, "p.rpt")

	eng := newFakeEngine()
	doc := eng.add(src, newDoc("Invoices", "T"))
	doc.params = []engine.ParameterField{
		{Name: "Customer", ReportName: ""},
		{Name: "Region", ReportName: "Invoices"},
		{Name: "From", ReportName: "", CurrentValues: []engine.ParameterValue{{Kind: engine.DiscreteValue, Value: "2020-01-01"}}},
		{Name: "LineFilter", ReportName: "Lines"},
	}

	res := New(eng, cfg, nil, nil).ProcessOne(context.Background(), src)
	require.True(t, res.Succeeded())

	byName := map[string]engine.ParameterField{}
	for _, p := range doc.params {
		byName[p.Name] = p
	}

	for _, name := range []string{"Customer", "Region"} {
		cv := byName[name].CurrentValues
		require.Len(t, cv, 1, "%s gets exactly one injected value", name)
		assert.Equal(t, engine.NullDiscrete(), cv[0])
	}
	assert.Equal(t, "2020-01-01", byName["From"].CurrentValues[0].Value, "bound parameters are untouched")
	assert.Empty(t, byName["LineFilter"].CurrentValues, "sub-document parameters are not defaulted")

	params := []string{}
	for _, c := range doc.calls {
		if strings.HasPrefix(c, "param:") {
			params = append(params, c)
		}
	}
	sort.Strings(params)
	assert.Equal(t, []string{"param:Customer", "param:Region"}, params)
}

func TestFindReports(t *testing.T) {
	cfg := setupSource(t, "a.rpt", "B.RPT", "sub/c.rpt", "sub/deeper/d.Rpt", "readme.txt", "e.rpt.bak", "sub/f.rptx")

	got, err := FindReports(cfg.SourceDir)
	require.NoError(t, err)

	rel := make([]string, len(got))
	for i, p := range got {
		r, err := filepath.Rel(cfg.SourceDir, p)
		require.NoError(t, err)
		rel[i] = filepath.ToSlash(r)
	}
	sort.Strings(rel)
	assert.Equal(t, []string{"B.RPT", "a.rpt", "sub/c.rpt", "sub/deeper/d.Rpt"}, rel)
}

func TestDestPath(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{src: "/in/a.rpt", want: "/out/a.rpt"},
		{src: "/in/x/y/Report.RPT", want: "/out/Report.rpt"},
		{src: "/in/v1.2.rpt", want: "/out/v1.2.rpt"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), DestPath(filepath.FromSlash("/out"), filepath.FromSlash(tt.src)))
		})
	}
}
