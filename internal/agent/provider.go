package agent

import (
	"context"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

// CompletionRequest carries everything a model call needs: the system
// prompt, the (possibly compacted) thread history, an optional ephemeral
// context message that is never persisted, and the registry's current
// function-schema surface.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []*models.Message
	Ephemeral    *models.Message
	Tools        []*tools.Schema

	MaxTokens   int
	Temperature float32

	// OnDelta, when set, receives streamed text fragments as they arrive.
	// The full accumulated text is still returned in the Completion.
	OnDelta func(delta string)
}

// Completion is the provider-neutral result of one model call.
type Completion struct {
	Content      string
	ToolCalls    []models.ToolCall
	FinishReason string

	// Usage fields are best-effort; providers that do not report token
	// counts leave them zero.
	PromptTokens     int
	CompletionTokens int
}

// LLMProvider abstracts one upstream model API. Implementations own their
// wire format; the orchestrator only sees Messages in and a Completion out.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}
