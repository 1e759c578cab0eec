// Package tasklist exposes the run's shared task list document as a tool
// capability. The same todo.md is read at the top of every iteration and
// updated from the model's delimited update blocks; these operations give
// the model direct access to it as well.
package tasklist

import (
	"context"
	"errors"
	"strings"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/sandbox"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// Capability reads and rewrites the workspace task list.
type Capability struct {
	ws sandbox.Workspace
}

func New(ws sandbox.Workspace) *Capability {
	return &Capability{ws: ws}
}

type updateArgs struct {
	Content string `json:"content" jsonschema:"description=Full replacement content for the task list in markdown"`
}

func (c *Capability) Operations() []tools.Operation {
	return []tools.Operation{
		{
			Name: "view_tasks",
			Schemas: []*tools.Schema{
				tools.FunctionSchema("view_tasks",
					"View the current task list.", nil),
			},
			Params: []tools.Param{
				{Name: "args", Kind: tools.KindBag},
			},
			Handler: c.view,
		},
		{
			Name: "update_tasks",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("update_tasks",
					"Replace the task list with new markdown content.",
					&updateArgs{}),
			},
			Params: []tools.Param{
				{Name: "content", Kind: tools.KindString, Required: true},
			},
			Handler: c.update,
		},
	}
}

func (c *Capability) view(ctx context.Context, _ []any) (*models.ToolResult, error) {
	data, err := c.ws.ReadFile(ctx, sandbox.TodoFile)
	if err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return tools.Result("(no tasks yet)")
		}
		return tools.Failf("read task list: %v", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return tools.Result("(no tasks yet)")
	}
	return tools.Result(content)
}

func (c *Capability) update(ctx context.Context, args []any) (*models.ToolResult, error) {
	content, ok := args[0].(string)
	if !ok {
		return tools.Fail("update_tasks: content is required")
	}
	if err := c.ws.WriteFile(ctx, sandbox.TodoFile, []byte(content)); err != nil {
		return tools.Failf("write task list: %v", err)
	}
	return tools.Result("task list updated")
}
