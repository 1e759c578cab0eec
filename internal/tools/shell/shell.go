// Package shell exposes workspace command execution as a tool capability.
package shell

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/sandbox"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// MaxOutputSize bounds the combined output returned to the model (64KB).
const MaxOutputSize = 64 << 10

// Capability runs shell commands inside the workspace.
type Capability struct {
	ws sandbox.Workspace
}

func New(ws sandbox.Workspace) *Capability {
	return &Capability{ws: ws}
}

type execArgs struct {
	Command        string `json:"command" jsonschema:"description=Shell command to execute"`
	Dir            string `json:"dir,omitempty" jsonschema:"description=Workspace-relative working directory"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"description=Command timeout in seconds"`
}

func (c *Capability) Operations() []tools.Operation {
	return []tools.Operation{
		{
			Name: "execute_command",
			Schemas: []*tools.Schema{
				tools.FunctionSchemaFor("execute_command",
					"Execute a shell command in the workspace and return its output.",
					&execArgs{}),
			},
			Params: []tools.Param{
				{Name: "command", Kind: tools.KindString, Required: true},
				{Name: "dir", Kind: tools.KindString},
				{Name: "timeout_seconds", Kind: tools.KindInt},
			},
			Handler: c.exec,
		},
	}
}

func (c *Capability) exec(ctx context.Context, args []any) (*models.ToolResult, error) {
	command, ok := args[0].(string)
	if !ok || strings.TrimSpace(command) == "" {
		return tools.Fail("execute_command: command is required")
	}
	dir, _ := args[1].(string)

	req := sandbox.ExecRequest{Command: command, Dir: dir}
	if secs, ok := args[2].(int); ok && secs > 0 {
		req.Timeout = time.Duration(secs) * time.Second
	}

	result, err := c.ws.Exec(ctx, req)
	if err != nil {
		return tools.Failf("execute %q: %v", command, err)
	}
	return formatResult(command, result), nil
}

func formatResult(command string, result *sandbox.ExecResult) *models.ToolResult {
	var b strings.Builder
	fmt.Fprintf(&b, "exit code: %d\n", result.ExitCode)
	if result.TimedOut {
		b.WriteString("command timed out\n")
	}
	if result.Stdout != "" {
		b.WriteString("stdout:\n")
		b.WriteString(result.Stdout)
		if !strings.HasSuffix(result.Stdout, "\n") {
			b.WriteString("\n")
		}
	}
	if result.Stderr != "" {
		b.WriteString("stderr:\n")
		b.WriteString(result.Stderr)
	}

	content := b.String()
	if len(content) > MaxOutputSize {
		content = content[:MaxOutputSize] + "\n... (output truncated)"
	}
	return &models.ToolResult{
		Content: strings.TrimRight(content, "\n"),
		IsError: result.ExitCode != 0 || result.TimedOut,
	}
}
