// Package message lets the model surface progress to whoever is following
// the run stream, outside the normal assistant turn. The notify operation
// uses the tag calling convention, so it also exercises the XML table end
// to end.
package message

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/storage"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/stream"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// Options configures a message capability for one run.
type Options struct {
	RunID    string
	ThreadID string
	Threads  storage.ThreadStore
	Broker   *stream.Broker
	Logger   *slog.Logger
}

// Capability publishes status messages on the run stream.
type Capability struct {
	opts Options
}

func New(opts Options) *Capability {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Capability{opts: opts}
}

func (c *Capability) Operations() []tools.Operation {
	return []tools.Operation{
		{
			Name: "notify",
			Schemas: []*tools.Schema{
				tools.XMLSchema("notify",
					"Post a short progress update visible to anyone following the run.",
					`<notify>Cloning the repository now.</notify>`,
					tools.XMLNodeMapping{ParamName: "text", Node: "content"},
				),
			},
			Params: []tools.Param{
				{Name: "text", Kind: tools.KindString, Required: true},
			},
			Handler: c.notify,
		},
	}
}

func (c *Capability) notify(ctx context.Context, args []any) (*models.ToolResult, error) {
	text, ok := args[0].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return tools.Fail("notify: text is required")
	}
	text = strings.TrimSpace(text)

	msg := &models.Message{
		ID:       uuid.NewString(),
		ThreadID: c.opts.ThreadID,
		Type:     models.MessageTypeStatus,
		Content:  text,
		Metadata: map[string]any{"source": "notify"},
	}
	if c.opts.Threads != nil {
		if err := c.opts.Threads.InsertMessage(ctx, msg); err != nil {
			return tools.Failf("notify: %v", err)
		}
	}
	if c.opts.Broker != nil {
		if err := c.opts.Broker.Publish(ctx, c.opts.RunID, msg); err != nil {
			c.opts.Logger.Warn("notify publish failed",
				"run_id", c.opts.RunID,
				"error", err,
			)
		}
	}
	return tools.Result("update posted")
}
