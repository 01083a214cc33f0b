// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt collects missing run inputs interactively.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/pdiddy/report-resaver/pkg/types"
)

// Prompt labels, in the order they are asked.
const (
	LabelSourceDir = "Enter the directory path for .rpt files: "
	LabelDestDir   = "Enter the directory path to save updated .rpt files: "
	LabelServer    = "Enter server name: "
	LabelDatabase  = "Enter database name: "
	LabelUserID    = "Enter user ID: "
	LabelPassword  = "Enter password: "
)

// Prompter reads answers line by line. On a terminal the password is read
// without echo.
type Prompter struct {
	in           *bufio.Reader
	out          io.Writer
	readPassword func() (string, error)
}

// New creates a Prompter reading from in and writing labels to out.
func New(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		p.readPassword = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			return string(b), err
		}
	}
	return p
}

// Line prints label and returns the next input line without its line ending.
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("no input for %q", strings.TrimSuffix(label, ": "))
		}
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// Password is Line without echo when reading from a terminal.
func (p *Prompter) Password(label string) (string, error) {
	if p.readPassword == nil {
		return p.Line(label)
	}
	fmt.Fprint(p.out, label)
	return p.readPassword()
}

// Complete asks for every empty field of cfg, in the fixed order source
// directory, destination directory, server, database, user ID, password.
// Fields already set are not asked for.
func Complete(p *Prompter, cfg *types.ResaveConfig) error {
	fields := []struct {
		label  string
		value  *string
		secret bool
	}{
		{LabelSourceDir, &cfg.SourceDir, false},
		{LabelDestDir, &cfg.DestDir, false},
		{LabelServer, &cfg.Connection.ServerName, false},
		{LabelDatabase, &cfg.Connection.DatabaseName, false},
		{LabelUserID, &cfg.Connection.UserID, false},
		{LabelPassword, &cfg.Connection.Password, true},
	}

	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		var (
			v   string
			err error
		)
		if f.secret {
			v, err = p.Password(f.label)
		} else {
			v, err = p.Line(f.label)
		}
		if err != nil {
			return err
		}
		*f.value = v
	}
	return nil
}
