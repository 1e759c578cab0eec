// Package files exposes workspace file operations as a tool capability.
package files

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/sandbox"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// MaxReadSize bounds the file content returned to the model (256KB).
const MaxReadSize = 256 << 10

// Capability exposes read, write, delete and list operations over one
// run's workspace.
type Capability struct {
	ws sandbox.Workspace
}

// New creates a file capability bound to a workspace.
func New(ws sandbox.Workspace) *Capability {
	return &Capability{ws: ws}
}

type writeArgs struct {
	Path    string `json:"path" jsonschema:"description=Workspace-relative file path"`
	Content string `json:"content" jsonschema:"description=Full file content to write"`
}

type pathArgs struct {
	Path string `json:"path" jsonschema:"description=Workspace-relative file path"`
}

type listArgs struct {
	Dir string `json:"dir,omitempty" jsonschema:"description=Workspace-relative directory, defaults to the root"`
}

func (c *Capability) Operations() []tools.Operation {
	return []tools.Operation{
		{
			Name: "read_file",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("read_file",
					"Read a file from the workspace and return its content.",
					&pathArgs{}),
			},
			Params: []tools.Param{
				{Name: "path", Kind: tools.KindString, Required: true},
			},
			Handler: c.read,
		},
		{
			Name: "write_file",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("write_file",
					"Create or overwrite a file in the workspace.",
					&writeArgs{}),
			},
			Params: []tools.Param{
				{Name: "path", Kind: tools.KindString, Required: true},
				{Name: "content", Kind: tools.KindString, Required: true},
			},
			Handler: c.write,
		},
		{
			Name: "delete_file",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("delete_file",
					"Delete a file from the workspace.",
					&pathArgs{}),
			},
			Params: []tools.Param{
				{Name: "path", Kind: tools.KindString, Required: true},
			},
			Handler: c.delete,
		},
		{
			Name: "list_files",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("list_files",
					"List files and directories under a workspace directory.",
					&listArgs{}),
			},
			Params: []tools.Param{
				{Name: "dir", Kind: tools.KindString},
			},
			Handler: c.list,
		},
	}
}

func (c *Capability) read(ctx context.Context, args []any) (*models.ToolResult, error) {
	path, ok := args[0].(string)
	if !ok || path == "" {
		return tools.Fail("read_file: path is required")
	}
	data, err := c.ws.ReadFile(ctx, path)
	if err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return tools.Failf("file not found: %s", path)
		}
		return tools.Failf("read %s: %v", path, err)
	}
	if len(data) > MaxReadSize {
		return tools.Result(fmt.Sprintf("%s\n... (truncated at %d bytes, file is %d bytes)",
			data[:MaxReadSize], MaxReadSize, len(data)))
	}
	return tools.Result(string(data))
}

func (c *Capability) write(ctx context.Context, args []any) (*models.ToolResult, error) {
	path, _ := args[0].(string)
	content, contentOK := args[1].(string)
	if path == "" {
		return tools.Fail("write_file: path is required")
	}
	if !contentOK {
		return tools.Fail("write_file: content is required")
	}
	if err := c.ws.WriteFile(ctx, path, []byte(content)); err != nil {
		return tools.Failf("write %s: %v", path, err)
	}
	return tools.Result(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
}

func (c *Capability) delete(ctx context.Context, args []any) (*models.ToolResult, error) {
	path, ok := args[0].(string)
	if !ok || path == "" {
		return tools.Fail("delete_file: path is required")
	}
	if err := c.ws.DeleteFile(ctx, path); err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return tools.Failf("file not found: %s", path)
		}
		return tools.Failf("delete %s: %v", path, err)
	}
	return tools.Result("deleted " + path)
}

func (c *Capability) list(ctx context.Context, args []any) (*models.ToolResult, error) {
	dir, _ := args[0].(string)
	entries, err := c.ws.ListFiles(ctx, dir)
	if err != nil {
		return tools.Failf("list %s: %v", dir, err)
	}
	if len(entries) == 0 {
		return tools.Result("(empty)")
	}
	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir {
			fmt.Fprintf(&b, "%s/\n", entry.Path)
			continue
		}
		fmt.Fprintf(&b, "%s (%d bytes)\n", entry.Path, entry.Size)
	}
	return tools.Result(strings.TrimRight(b.String(), "\n"))
}
