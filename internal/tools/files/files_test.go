package files

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/sandbox"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
)

func newCapability(t *testing.T) *Capability {
	t.Helper()
	ws, err := sandbox.NewLocal(sandbox.LocalOptions{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return New(ws)
}

func invoke(t *testing.T, registry *tools.Registry, name, payload string) *struct {
	Content string
	IsError bool
} {
	t.Helper()
	result, err := registry.Invoke(context.Background(), name, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("Invoke(%s): %v", name, err)
	}
	return &struct {
		Content string
		IsError bool
	}{result.Content, result.IsError}
}

func TestWriteReadDelete(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(newCapability(t))

	written := invoke(t, registry, "write_file",
		`{"path":"notes/hello.txt","content":"hello world"}`)
	if written.IsError {
		t.Fatalf("write failed: %s", written.Content)
	}

	read := invoke(t, registry, "read_file", `{"path":"notes/hello.txt"}`)
	if read.IsError || read.Content != "hello world" {
		t.Fatalf("read = %+v", read)
	}

	deleted := invoke(t, registry, "delete_file", `{"path":"notes/hello.txt"}`)
	if deleted.IsError {
		t.Fatalf("delete failed: %s", deleted.Content)
	}

	missing := invoke(t, registry, "read_file", `{"path":"notes/hello.txt"}`)
	if !missing.IsError {
		t.Fatal("expected error reading deleted file")
	}
}

func TestReadMissingFile(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(newCapability(t))

	result := invoke(t, registry, "read_file", `{"path":"nope.txt"}`)
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(result.Content, "not found") {
		t.Errorf("content = %q", result.Content)
	}
}

func TestListFiles(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(newCapability(t))

	invoke(t, registry, "write_file", `{"path":"a.txt","content":"x"}`)
	invoke(t, registry, "write_file", `{"path":"sub/b.txt","content":"yy"}`)

	result := invoke(t, registry, "list_files", `{}`)
	if result.IsError {
		t.Fatalf("list failed: %s", result.Content)
	}
	if !strings.Contains(result.Content, "a.txt") {
		t.Errorf("missing a.txt in %q", result.Content)
	}
	if !strings.Contains(result.Content, "sub/") {
		t.Errorf("missing sub/ in %q", result.Content)
	}
}

func TestWriteRequiresPath(t *testing.T) {
	registry := tools.NewRegistry("thread-1", nil)
	registry.Register(newCapability(t))

	result := invoke(t, registry, "write_file", `{"body":"orphan","mode":1}`)
	if !result.IsError {
		t.Fatal("expected error for missing path")
	}
}
