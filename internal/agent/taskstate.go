package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/sandbox"
)

// readTaskState returns the current todo document, or "" when the
// workspace has none yet.
func readTaskState(ctx context.Context, ws sandbox.Workspace) (string, error) {
	if ws == nil {
		return "", nil
	}
	data, err := ws.ReadFile(ctx, sandbox.TodoFile)
	if err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// writeTaskState replaces the todo document with the model's update.
func writeTaskState(ctx context.Context, ws sandbox.Workspace, content string) error {
	if ws == nil {
		return nil
	}
	return ws.WriteFile(ctx, sandbox.TodoFile, []byte(content))
}
