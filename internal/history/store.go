// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records resave runs and their per-file outcomes in a
// SQLite ledger kept next to the run logs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/report-resaver/pkg/types"
)

// DBFile is the ledger database name inside the destination directory.
const DBFile = "report_resaver.db"

const defaultListLimit = 20

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNoHistory is returned by OpenExisting when no ledger has been written.
var ErrNoHistory = errors.New("no run history")

// Store manages the ledger database.
type Store struct {
	db  *sql.DB
	dir string
}

// Open opens or creates the ledger at dir/report_resaver.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// OpenExisting opens the ledger at dir/report_resaver.db without creating
// the directory or the database. It returns ErrNoHistory when the database
// does not exist.
func OpenExisting(dir string) (*Store, error) {
	if _, err := os.Stat(filepath.Join(dir, DBFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNoHistory, dir)
		}
		return nil, fmt.Errorf("checking history in %s: %w", dir, err)
	}
	return Open(dir)
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			source_dir TEXT NOT NULL,
			dest_dir TEXT NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			source TEXT NOT NULL,
			dest TEXT NOT NULL,
			status TEXT NOT NULL,
			version TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_files_run_id ON files(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_files_source ON files(source)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores a finished run with its per-file results in one
// transaction.
func (s *Store) Record(ctx context.Context, run types.RunRecord, files []types.FileResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, source_dir, dest_dir, total, succeeded, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeFormat), run.FinishedAt.UTC().Format(timeFormat),
		run.SourceDir, run.DestDir, run.Total, run.Succeeded, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO files (run_id, seq, source, dest, status, version, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range files {
		if _, err := stmt.ExecContext(ctx,
			run.ID, i, f.Source, f.Dest, string(f.Status), f.Version, f.ErrorMessage(),
		); err != nil {
			return fmt.Errorf("inserting file %s: %w", f.Source, err)
		}
	}

	return tx.Commit()
}

// Runs returns the most recent runs, newest first. A limit of 0 uses the
// default of 20.
func (s *Store) Runs(ctx context.Context, limit int) ([]types.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, source_dir, dest_dir, total, succeeded, failed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []types.RunRecord
	for rows.Next() {
		var r types.RunRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.SourceDir, &r.DestDir,
			&r.Total, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeFormat, started)
		r.FinishedAt, _ = time.Parse(timeFormat, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FileEntry is a stored per-file outcome.
type FileEntry struct {
	RunID   string           `json:"run_id" yaml:"run_id"`
	Source  string           `json:"source" yaml:"source"`
	Dest    string           `json:"dest" yaml:"dest"`
	Status  types.FileStatus `json:"status" yaml:"status"`
	Version string           `json:"version,omitempty" yaml:"version,omitempty"`
	Error   string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Files returns the outcomes of one run in processing order.
func (s *Store) Files(ctx context.Context, runID string) ([]FileEntry, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("looking up run %s: %w", runID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, source, dest, status, COALESCE(version, ''), COALESCE(error, '')
		 FROM files WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var entries []FileEntry
	for rows.Next() {
		var e FileEntry
		var status string
		if err := rows.Scan(&e.RunID, &e.Source, &e.Dest, &status, &e.Version, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		e.Status = types.FileStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ExportRun is a run with its files, as written by Export.
type ExportRun struct {
	types.RunRecord `yaml:",inline"`
	Files           []FileEntry `json:"files" yaml:"files"`
}

// Export writes the most recent runs with their files to
// dir/report_history.yaml or .json and returns the path written.
func (s *Store) Export(ctx context.Context, format string, limit int) (string, error) {
	runs, err := s.Runs(ctx, limit)
	if err != nil {
		return "", err
	}

	out := make([]ExportRun, len(runs))
	for i, r := range runs {
		files, err := s.Files(ctx, r.ID)
		if err != nil {
			return "", err
		}
		out[i] = ExportRun{RunRecord: r, Files: files}
	}

	var (
		data []byte
		path string
	)
	switch format {
	case "yaml", "":
		path = filepath.Join(s.dir, "report_history.yaml")
		data, err = yaml.Marshal(out)
	case "json":
		path = filepath.Join(s.dir, "report_history.json")
		data, err = json.MarshalIndent(out, "", "  ")
	default:
		return "", fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return "", fmt.Errorf("marshaling %s: %w", format, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
