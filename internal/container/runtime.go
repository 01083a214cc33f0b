// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container implements container runtime detection and execution
// for the report engine image.
package container

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

const (
	binDocker = "docker"
	binPodman = "podman"
)

// Mount is a bind mount passed to the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

func (m Mount) arg() string {
	s := m.Source + ":" + m.Target
	if m.ReadOnly {
		s += ":ro"
	}
	return s
}

// Stdio is the standard streams of a one-shot command. Nil fields are
// connected to the null device.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a running command with piped stdin and stdout.
type Process interface {
	// Stdin feeds the process. Closing it signals end of input.
	Stdin() io.WriteCloser

	// Stdout is the process output.
	Stdout() io.Reader

	// Wait blocks until the process exits.
	Wait() error
}

// Runtime provides container operations: checking availability, verifying
// images, and running containers.
type Runtime interface {
	// Name returns the runtime name ("docker" or "podman").
	Name() string

	// Available reports whether the runtime binary exists on PATH and
	// responds to an info command.
	Available() bool

	// ImageExists checks whether the named image exists locally.
	// Returns nil when the image is found, or an error describing the failure.
	ImageExists(image string) error

	// Run executes a container to completion with the given image and
	// mounts, wiring stdio to the container's streams.
	Run(ctx context.Context, image string, mounts []Mount, stdio Stdio, args ...string) error

	// Start launches a long-lived interactive container and returns it
	// without waiting for it to exit. The container's stderr goes to stderr.
	Start(ctx context.Context, image string, mounts []Mount, stderr io.Writer, args ...string) (Process, error)
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(name string, args ...string) error
	RunPiped(ctx context.Context, name string, args []string, stdio Stdio) error
	Start(ctx context.Context, name string, args []string, stderr io.Writer) (Process, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func (o *osExecutor) RunPiped(ctx context.Context, name string, args []string, stdio Stdio) error {
	return RunCommand(ctx, name, args, stdio)
}

func (o *osExecutor) Start(ctx context.Context, name string, args []string, stderr io.Writer) (Process, error) {
	return StartCommand(ctx, name, args, stderr)
}

// cmdProcess adapts exec.Cmd to Process.
type cmdProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *cmdProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *cmdProcess) Stdout() io.Reader     { return p.stdout }
func (p *cmdProcess) Wait() error           { return p.cmd.Wait() }

// RunCommand runs a host binary to completion.
func RunCommand(ctx context.Context, name string, args []string, stdio Stdio) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdio.Stdin
	cmd.Stdout = stdio.Stdout
	cmd.Stderr = stdio.Stderr
	return cmd.Run()
}

// StartCommand starts a host binary with piped stdin and stdout. Its stderr
// is copied to stderr, or dropped when stderr is nil.
func StartCommand(ctx context.Context, name string, args []string, stderr io.Writer) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdin of %s: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout of %s: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	return &cmdProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// runtime implements Runtime for a specific container binary. Both Docker
// and Podman share the same logic; they differ only in binary name and the
// subcommand used to check image existence.
type runtime struct {
	bin           string
	imageCheckCmd []string // e.g. ["image", "inspect"] for docker
	exec          executor
}

func (r *runtime) Name() string { return r.bin }

func (r *runtime) Available() bool {
	if _, err := r.exec.LookPath(r.bin); err != nil {
		return false
	}
	return r.exec.RunSilent(r.bin, "info") == nil
}

func (r *runtime) ImageExists(image string) error {
	args := make([]string, 0, len(r.imageCheckCmd)+1)
	args = append(args, r.imageCheckCmd...)
	args = append(args, image)

	if err := r.exec.RunSilent(r.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, r.bin, err)
	}
	return nil
}

func (r *runtime) Run(ctx context.Context, image string, mounts []Mount, stdio Stdio, args ...string) error {
	if err := r.exec.RunPiped(ctx, r.bin, runArgs(image, mounts, args), stdio); err != nil {
		return fmt.Errorf("running %s container %s: %w", r.bin, image, err)
	}
	return nil
}

func (r *runtime) Start(ctx context.Context, image string, mounts []Mount, stderr io.Writer, args ...string) (Process, error) {
	p, err := r.exec.Start(ctx, r.bin, runArgs(image, mounts, args), stderr)
	if err != nil {
		return nil, fmt.Errorf("starting %s container %s: %w", r.bin, image, err)
	}
	return p, nil
}

// runArgs builds `run --rm -i [-v mount]... image args...`.
func runArgs(image string, mounts []Mount, args []string) []string {
	full := []string{"run", "--rm", "-i"}
	for _, m := range mounts {
		full = append(full, "-v", m.arg())
	}
	full = append(full, image)
	return append(full, args...)
}

func newDockerRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binDocker,
		imageCheckCmd: []string{"image", "inspect"},
		exec:          exec,
	}
}

func newPodmanRuntime(exec executor) *runtime {
	return &runtime{
		bin:           binPodman,
		imageCheckCmd: []string{"image", "exists"},
		exec:          exec,
	}
}

var defaultExec = &osExecutor{}

// DetectRuntime tries docker first, falls back to podman. Returns an error
// if neither runtime is available.
func DetectRuntime() (Runtime, error) {
	return detectRuntime(defaultExec)
}

func detectRuntime(exec executor) (Runtime, error) {
	docker := newDockerRuntime(exec)
	if docker.Available() {
		return docker, nil
	}

	podman := newPodmanRuntime(exec)
	if podman.Available() {
		return podman, nil
	}

	return nil, fmt.Errorf(
		"no container runtime available: neither %s nor %s found or operational",
		binDocker, binPodman,
	)
}
