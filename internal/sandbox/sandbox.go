// Package sandbox provides the workspace a run executes inside: a rooted
// file tree, command execution, and the shared task list document.
package sandbox

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

// TodoFile is the task list document maintained inside every workspace.
const TodoFile = "todo.md"

var (
	// ErrOutsideWorkspace is returned when a path escapes the workspace root.
	ErrOutsideWorkspace = errors.New("sandbox: path outside workspace")
	// ErrNotFound is returned when a requested file does not exist.
	ErrNotFound = errors.New("sandbox: file not found")
)

// FileInfo describes a workspace entry.
type FileInfo struct {
	Path  string
	IsDir bool
	Size  int64
	Mode  fs.FileMode
}

// ExecRequest describes a command to run inside the workspace.
type ExecRequest struct {
	Command string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// ExecResult captures the outcome of a workspace command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Workspace is the surface tools use to interact with a run's sandbox.
// Paths are always relative to the workspace root.
type Workspace interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	DeleteFile(ctx context.Context, path string) error
	ListFiles(ctx context.Context, dir string) ([]FileInfo, error)
	Exec(ctx context.Context, req ExecRequest) (*ExecResult, error)

	// TodoPath returns the absolute path of the task list document,
	// creating an empty one if it does not exist yet.
	TodoPath() (string, error)

	// Root returns the absolute workspace root directory.
	Root() string
}
