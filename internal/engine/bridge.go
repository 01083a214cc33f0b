// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdiddy/report-resaver/internal/container"
)

// Protocol operations understood by the engine host.
const (
	opLoad          = "load"
	opVersion       = "version"
	opTables        = "tables"
	opSubreports    = "subreports"
	opApplyLogOn    = "apply_logon"
	opVerify        = "verify_database"
	opRefresh       = "refresh"
	opSaveData      = "set_save_data_with_report"
	opParameters    = "parameter_fields"
	opApplyValues   = "apply_current_values"
	opSaveAs        = "save_as"
	opClose         = "close"
	serveSubcommand = "serve"
)

// Error is a failure reported by the engine host itself. Its message is the
// engine's own text so callers can log it unchanged.
type Error struct {
	Op      string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("engine %s failed", e.Op)
	}
	return e.Message
}

// LaunchFunc starts one engine host process.
type LaunchFunc func(ctx context.Context, args ...string) (container.Process, error)

// RunFunc runs one engine host to completion, feeding it stdin and
// collecting its answers on stdout.
type RunFunc func(ctx context.Context, stdin io.Reader, stdout io.Writer, args ...string) error

// Bridge implements Engine against an out-of-process engine host. Every
// opened document gets its own host process, released by Document.Close.
type Bridge struct {
	launch  LaunchFunc
	run     RunFunc
	logger  *slog.Logger
	version string
}

// NewBridge creates a Bridge that starts engine hosts with launch. When run
// is non-nil, one-shot queries such as Version use it instead of a session.
func NewBridge(launch LaunchFunc, run RunFunc, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{launch: launch, run: run, logger: logger}
}

// Open starts an engine host and loads the report at path into it.
func (b *Bridge) Open(ctx context.Context, path string) (Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	s, err := b.startSession(ctx)
	if err != nil {
		return nil, err
	}

	var loaded struct {
		Name string `json:"name"`
	}
	if err := s.call(ctx, opLoad, "", map[string]any{"path": abs}, &loaded); err != nil {
		s.close()
		return nil, err
	}
	b.logger.Debug("report loaded", "path", abs, "name", loaded.Name)
	return &document{s: s, name: loaded.Name}, nil
}

// Version asks a short-lived engine host for its version. The answer is
// cached for the lifetime of the Bridge.
func (b *Bridge) Version(ctx context.Context) (string, error) {
	if b.version != "" {
		return b.version, nil
	}

	var v struct {
		Version string `json:"version"`
	}
	if err := b.query(ctx, opVersion, &v); err != nil {
		return "", err
	}
	if v.Version == "" {
		return "", errors.New("engine reported an empty version")
	}
	b.version = v.Version
	return b.version, nil
}

// query sends a single request to a fresh engine host. With a RunFunc the
// request and a close are written up front and the host runs to completion;
// otherwise a session is opened and closed around the call.
func (b *Bridge) query(ctx context.Context, op string, out any) error {
	if b.run == nil {
		s, err := b.startSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()
		return s.call(ctx, op, "", nil, out)
	}

	var in, answers bytes.Buffer
	enc := json.NewEncoder(&in)
	if err := enc.Encode(request{Op: op}); err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}
	if err := enc.Encode(request{Op: opClose}); err != nil {
		return fmt.Errorf("encoding close request: %w", err)
	}

	b.logger.Debug("engine query", "op", op)
	runErr := b.run(ctx, &in, &answers, serveSubcommand)
	err := readResponse(json.NewDecoder(&answers), op, out)
	var engErr *Error
	if runErr != nil && !errors.As(err, &engErr) {
		return fmt.Errorf("running report engine: %w", runErr)
	}
	return err
}

func (b *Bridge) startSession(ctx context.Context) (*session, error) {
	p, err := b.launch(ctx, serveSubcommand)
	if err != nil {
		return nil, fmt.Errorf("launching report engine: %w", err)
	}
	return newSession(p, b.logger), nil
}

type request struct {
	Op        string `json:"op"`
	Subreport string `json:"subreport,omitempty"`
	Args      any    `json:"args,omitempty"`
}

type response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// session is one engine host process and its request/response stream.
type session struct {
	proc   container.Process
	enc    *json.Encoder
	dec    *json.Decoder
	logger *slog.Logger
	closed bool
}

func newSession(p container.Process, logger *slog.Logger) *session {
	return &session{
		proc:   p,
		enc:    json.NewEncoder(p.Stdin()),
		dec:    json.NewDecoder(bufio.NewReader(p.Stdout())),
		logger: logger,
	}
}

func (s *session) call(ctx context.Context, op, subreport string, args, out any) error {
	if s.closed {
		return fmt.Errorf("engine %s: document already closed", op)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Debug("engine call", "op", op, "subreport", subreport)
	if err := s.enc.Encode(request{Op: op, Subreport: subreport, Args: args}); err != nil {
		return fmt.Errorf("sending %s to engine: %w", op, err)
	}

	return readResponse(s.dec, op, out)
}

// readResponse decodes one response line into out, turning an engine
// failure into *Error.
func readResponse(dec *json.Decoder, op string, out any) error {
	var resp response
	if err := dec.Decode(&resp); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("engine exited during %s", op)
		}
		return fmt.Errorf("reading %s response: %w", op, err)
	}
	if !resp.OK {
		return &Error{Op: op, Message: resp.Error}
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", op, err)
		}
	}
	return nil
}

// close asks the host to release the document, then ends the process.
// It is safe to call more than once.
func (s *session) close() error {
	if s.closed {
		return nil
	}
	closeErr := s.call(context.Background(), opClose, "", nil, nil)
	s.closed = true

	if err := s.proc.Stdin().Close(); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("closing engine input: %w", err)
	}
	if err := s.proc.Wait(); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("waiting for engine: %w", err)
	}
	return closeErr
}

// document is a main report or one of its sub-documents. Sub-documents
// share the session and carry their name in every request.
type document struct {
	s         *session
	name      string
	subreport string
}

func (d *document) Name() string { return d.name }

func (d *document) Tables(ctx context.Context) ([]Table, error) {
	var tables []Table
	if err := d.s.call(ctx, opTables, d.subreport, nil, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}

func (d *document) Subreports(ctx context.Context) ([]Document, error) {
	if d.subreport != "" {
		return nil, nil
	}
	var names []string
	if err := d.s.call(ctx, opSubreports, "", nil, &names); err != nil {
		return nil, err
	}
	subs := make([]Document, len(names))
	for i, n := range names {
		subs[i] = &document{s: d.s, name: n, subreport: n}
	}
	return subs, nil
}

func (d *document) ApplyLogOn(ctx context.Context, table Table, info LogOnInfo) error {
	args := map[string]any{"table": table, "logon": info}
	return d.s.call(ctx, opApplyLogOn, d.subreport, args, nil)
}

func (d *document) VerifyDatabase(ctx context.Context) error {
	return d.s.call(ctx, opVerify, d.subreport, nil, nil)
}

func (d *document) Refresh(ctx context.Context) error {
	return d.s.call(ctx, opRefresh, d.subreport, nil, nil)
}

func (d *document) SetSaveDataWithReport(ctx context.Context, enabled bool) error {
	return d.s.call(ctx, opSaveData, d.subreport, map[string]any{"enabled": enabled}, nil)
}

func (d *document) ParameterFields(ctx context.Context) ([]ParameterField, error) {
	var fields []ParameterField
	if err := d.s.call(ctx, opParameters, d.subreport, nil, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (d *document) ApplyCurrentValues(ctx context.Context, field ParameterField, values []ParameterValue) error {
	args := map[string]any{
		"name":        field.Name,
		"report_name": field.ReportName,
		"values":      values,
	}
	return d.s.call(ctx, opApplyValues, d.subreport, args, nil)
}

func (d *document) SaveAs(ctx context.Context, path string, overwrite bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	return d.s.call(ctx, opSaveAs, d.subreport, map[string]any{"path": abs, "overwrite": overwrite}, nil)
}

// Close releases the host process. Closing a sub-document is a no-op.
func (d *document) Close() error {
	if d.subreport != "" {
		return nil
	}
	return d.s.close()
}

// stderrLog writes engine host stderr to a logger at debug level, one
// record per line.
type stderrLog struct {
	mu     sync.Mutex
	logger *slog.Logger
}

// StderrLogger returns a writer for engine host stderr.
func StderrLogger(logger *slog.Logger) io.Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &stderrLog{logger: logger}
}

func (w *stderrLog) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\r\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.logger.Debug("engine stderr", "line", line)
		}
	}
	return len(p), nil
}
