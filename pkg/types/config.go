// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ConnectionInfo is the database login applied to every table of every
// report in a run. It is built once and never modified afterwards.
type ConnectionInfo struct {
	ServerName   string `json:"server_name" yaml:"server_name"`
	DatabaseName string `json:"database_name" yaml:"database_name"`
	UserID       string `json:"user_id" yaml:"user_id"`
	Password     string `json:"password" yaml:"-"`
}

// ResaveConfig holds the six required inputs of a resave run, in the order
// they are prompted for.
type ResaveConfig struct {
	// SourceDir is scanned recursively for .rpt files.
	SourceDir string `json:"source_dir" yaml:"source_dir"`

	// DestDir receives the resaved reports and the three run logs.
	DestDir string `json:"dest_dir" yaml:"dest_dir"`

	Connection ConnectionInfo `json:"connection" yaml:"connection"`
}

// EngineBackend selects how the report engine process is launched.
type EngineBackend string

const (
	BackendContainer EngineBackend = "container"
	BackendExec      EngineBackend = "exec"
)

// EngineConfig holds settings for the out-of-process report engine.
type EngineConfig struct {
	// Backend is "container" (docker or podman) or "exec" (host binary).
	Backend EngineBackend `json:"backend" yaml:"backend"`

	// Image is the engine container image (container backend).
	Image string `json:"image" yaml:"image"`

	// Command is the engine host binary (exec backend).
	Command string `json:"command" yaml:"command"`
}

// LoggingConfig controls diagnostic logging. Progress output is separate
// and always goes to stdout.
type LoggingConfig struct {
	Level    string `json:"level" yaml:"level"`
	Format   string `json:"format" yaml:"format"`
	FilePath string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}
