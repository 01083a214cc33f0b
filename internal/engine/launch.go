// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/pdiddy/report-resaver/internal/container"
	"github.com/pdiddy/report-resaver/pkg/types"
)

// DefaultImage is the engine host image used by the container backend.
const DefaultImage = "rpt-engine:latest"

// ContainerLauncher runs the engine host image in rt. Mounts make the
// given host directories visible at the same paths inside the container.
func ContainerLauncher(rt container.Runtime, image string, mounts []container.Mount, stderr io.Writer) LaunchFunc {
	return func(ctx context.Context, args ...string) (container.Process, error) {
		return rt.Start(ctx, image, mounts, stderr, args...)
	}
}

// ContainerRunner runs one-shot engine host queries in rt.
func ContainerRunner(rt container.Runtime, image string, mounts []container.Mount, stderr io.Writer) RunFunc {
	return func(ctx context.Context, stdin io.Reader, stdout io.Writer, args ...string) error {
		return rt.Run(ctx, image, mounts, container.Stdio{Stdin: stdin, Stdout: stdout, Stderr: stderr}, args...)
	}
}

// ExecLauncher runs the engine host as a local binary.
func ExecLauncher(command string, stderr io.Writer) LaunchFunc {
	return func(ctx context.Context, args ...string) (container.Process, error) {
		return container.StartCommand(ctx, command, args, stderr)
	}
}

// ExecRunner runs one-shot engine host queries as a local binary.
func ExecRunner(command string, stderr io.Writer) RunFunc {
	return func(ctx context.Context, stdin io.Reader, stdout io.Writer, args ...string) error {
		return container.RunCommand(ctx, command, args, container.Stdio{Stdin: stdin, Stdout: stdout, Stderr: stderr})
	}
}

// New builds a Bridge for the configured backend. For the container
// backend it detects docker or podman and checks that the image exists;
// the source directory is mounted read-only and the destination read-write.
// A destination equal to the source gets a single read-write mount.
func New(cfg types.EngineConfig, run types.ResaveConfig, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stderr := StderrLogger(logger)
	switch cfg.Backend {
	case types.BackendExec:
		if cfg.Command == "" {
			return nil, fmt.Errorf("exec engine backend requires engine.command")
		}
		return NewBridge(ExecLauncher(cfg.Command, stderr), ExecRunner(cfg.Command, stderr), logger), nil

	case types.BackendContainer, "":
		image := cfg.Image
		if image == "" {
			image = DefaultImage
		}
		rt, err := container.DetectRuntime()
		if err != nil {
			return nil, err
		}
		if err := rt.ImageExists(image); err != nil {
			return nil, fmt.Errorf("report engine image not available in %s: %w", rt.Name(), err)
		}
		mounts, err := runMounts(run)
		if err != nil {
			return nil, err
		}
		logger.Debug("using container engine", "runtime", rt.Name(), "image", image)
		return NewBridge(ContainerLauncher(rt, image, mounts, stderr), ContainerRunner(rt, image, mounts, stderr), logger), nil

	default:
		return nil, fmt.Errorf("unsupported engine backend %q: use container or exec", cfg.Backend)
	}
}

func runMounts(run types.ResaveConfig) ([]container.Mount, error) {
	src, err := filepath.Abs(run.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolving source directory: %w", err)
	}
	dst, err := filepath.Abs(run.DestDir)
	if err != nil {
		return nil, fmt.Errorf("resolving destination directory: %w", err)
	}
	if src == dst {
		return []container.Mount{{Source: dst, Target: dst}}, nil
	}
	return []container.Mount{
		{Source: src, Target: src, ReadOnly: true},
		{Source: dst, Target: dst},
	}, nil
}
