package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultExecTimeout bounds workspace commands that do not set their own.
const DefaultExecTimeout = 2 * time.Minute

// LocalOptions configures a LocalWorkspace.
type LocalOptions struct {
	// Root is the workspace directory. Created if missing.
	Root string
	// Shell runs Exec commands. Defaults to /bin/sh.
	Shell string
	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// LocalWorkspace implements Workspace on a local directory tree.
type LocalWorkspace struct {
	root   string
	shell  string
	logger *slog.Logger
}

// NewLocal creates a workspace rooted at opts.Root.
func NewLocal(opts LocalOptions) (*LocalWorkspace, error) {
	if opts.Root == "" {
		return nil, errors.New("sandbox: root is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}
	shell := opts.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalWorkspace{root: root, shell: shell, logger: logger}, nil
}

func (w *LocalWorkspace) Root() string {
	return w.root
}

// resolve maps a workspace-relative path to an absolute one, rejecting
// escapes via .. or absolute prefixes.
func (w *LocalWorkspace) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + path)
	abs := filepath.Join(w.root, cleaned)
	if abs != w.root && !strings.HasPrefix(abs, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, path)
	}
	return abs, nil
}

func (w *LocalWorkspace) ReadFile(ctx context.Context, path string) ([]byte, error) {
	abs, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (w *LocalWorkspace) WriteFile(ctx context.Context, path string, data []byte) error {
	abs, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent dirs: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (w *LocalWorkspace) DeleteFile(ctx context.Context, path string) error {
	abs, err := w.resolve(path)
	if err != nil {
		return err
	}
	if abs == w.root {
		return fmt.Errorf("%w: refusing to delete root", ErrOutsideWorkspace)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (w *LocalWorkspace) ListFiles(ctx context.Context, dir string) ([]FileInfo, error) {
	abs, err := w.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(w.root, filepath.Join(abs, entry.Name()))
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Path:  rel,
			IsDir: entry.IsDir(),
			Size:  info.Size(),
			Mode:  info.Mode(),
		})
	}
	return out, nil
}

func (w *LocalWorkspace) Exec(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, errors.New("sandbox: empty command")
	}
	dir := w.root
	if req.Dir != "" {
		abs, err := w.resolve(req.Dir)
		if err != nil {
			return nil, err
		}
		dir = abs
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, w.shell, "-c", req.Command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), req.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: errors.Is(execCtx.Err(), context.DeadlineExceeded),
	}
	switch {
	case err == nil:
		result.ExitCode = 0
	case cmd.ProcessState != nil:
		result.ExitCode = cmd.ProcessState.ExitCode()
	default:
		return nil, fmt.Errorf("run command: %w", err)
	}
	w.logger.Debug("workspace command finished",
		"dir", dir,
		"exit_code", result.ExitCode,
		"timed_out", result.TimedOut,
		"duration", time.Since(start))
	return result, nil
}

func (w *LocalWorkspace) TodoPath() (string, error) {
	abs := filepath.Join(w.root, TodoFile)
	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(abs, nil, 0o644); err != nil {
			return "", fmt.Errorf("create todo file: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("stat todo file: %w", err)
	}
	return abs, nil
}
