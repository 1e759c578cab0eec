package tasklist

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/sandbox"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
)

func newRegistry(t *testing.T) (*tools.Registry, sandbox.Workspace) {
	t.Helper()
	ws, err := sandbox.NewLocal(sandbox.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(New(ws))
	return registry, ws
}

func TestViewEmptyTaskList(t *testing.T) {
	registry, _ := newRegistry(t)

	result, err := registry.Invoke(context.Background(), "view_tasks", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if result.Content != "(no tasks yet)" {
		t.Errorf("content = %q", result.Content)
	}
}

func TestUpdateThenView(t *testing.T) {
	registry, ws := newRegistry(t)

	_, err := registry.Invoke(context.Background(), "update_tasks",
		json.RawMessage(`{"content":"- [ ] first\n- [x] second"}`))
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	result, err := registry.Invoke(context.Background(), "view_tasks", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if result.Content != "- [ ] first\n- [x] second" {
		t.Errorf("content = %q", result.Content)
	}

	// The same document is what the loop reads each iteration.
	data, err := ws.ReadFile(context.Background(), sandbox.TodoFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "- [ ] first\n- [x] second" {
		t.Errorf("todo.md = %q", data)
	}
}
