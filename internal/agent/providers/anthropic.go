// Package providers implements the agent.LLMProvider interface for the
// upstream model APIs the worker can run against.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/agent"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicConfig configures an AnthropicProvider. Only APIKey is required.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (sk-ant-...).
	APIKey string

	// BaseURL overrides the API base URL.
	BaseURL string

	// MaxRetries bounds retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base delay between retries; actual delay uses
	// exponential backoff.
	// Default: 1s
	RetryDelay time.Duration

	// DefaultModel is used when the request does not name one.
	DefaultModel string
}

// AnthropicProvider calls the Anthropic Messages API with streaming and
// accumulates the stream into one Completion.
type AnthropicProvider struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaultAnthropicModel
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete streams one model turn and returns the accumulated completion.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := p.stream(ctx, params, req.OnDelta)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("anthropic: max retries exceeded: %w", lastErr)
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages := convertAnthropicMessages(req.Messages, req.Ephemeral)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	if len(req.Tools) > 0 {
		converted, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = converted
	}
	return params, nil
}

// stream consumes one SSE stream and folds it into a Completion.
func (p *AnthropicProvider) stream(ctx context.Context, params anthropic.MessageNewParams, onDelta func(string)) (*agent.Completion, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)

	var content strings.Builder
	var toolCalls []models.ToolCall
	var currentCall *models.ToolCall
	var currentInput strings.Builder
	completion := &agent.Completion{}

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			completion.PromptTokens = int(start.Message.Usage.InputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					content.WriteString(delta.Text)
					if onDelta != nil {
						onDelta(delta.Text)
					}
				}
			case "input_json_delta":
				currentInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if currentCall != nil {
				input := currentInput.String()
				if input == "" {
					input = "{}"
				}
				currentCall.Arguments = json.RawMessage(input)
				toolCalls = append(toolCalls, *currentCall)
				currentCall = nil
			}

		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Usage.OutputTokens > 0 {
				completion.CompletionTokens = int(delta.Usage.OutputTokens)
			}
			if delta.Delta.StopReason != "" {
				completion.FinishReason = string(delta.Delta.StopReason)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: stream: %w", err)
	}

	completion.Content = content.String()
	completion.ToolCalls = toolCalls
	return completion, nil
}

// convertAnthropicMessages maps thread history (plus the ephemeral context
// message) onto Anthropic's role/content-block format. Tool results become
// user-role text blocks; the orchestrator persists them content-only, so
// there is no tool_use id to pair with.
func convertAnthropicMessages(history []*models.Message, ephemeral *models.Message) []anthropic.MessageParam {
	all := history
	if ephemeral != nil {
		all = append(append([]*models.Message{}, history...), ephemeral)
	}

	var out []anthropic.MessageParam
	for _, msg := range all {
		blocks := anthropicBlocks(msg)
		if len(blocks) == 0 {
			continue
		}
		if msg.Type == models.MessageTypeAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func anthropicBlocks(msg *models.Message) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	if len(msg.Parts) > 0 {
		for _, part := range msg.Parts {
			switch {
			case part.Text != "":
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			case part.URL != "":
				// Binary payloads stay in storage; the model gets the
				// reference.
				blocks = append(blocks, anthropic.NewTextBlock("[image] "+part.URL))
			}
		}
		return blocks
	}
	text := msg.Text()
	if msg.Type == models.MessageTypeToolResult {
		text = "Tool result:\n" + text
	}
	if text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}
	return blocks
}

func convertAnthropicTools(schemas []*tools.Schema) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, schema := range schemas {
		var input anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(schema.Parameters, &input); err != nil {
			return nil, fmt.Errorf("anthropic: invalid parameter spec for %s: %w", schema.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(input, schema.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid tool definition for %s", schema.Name)
		}
		if schema.Description != "" {
			param.OfTool.Description = anthropic.String(schema.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

// isRetryable reports whether an API error is worth retrying: rate limits,
// server errors, and transport hiccups.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	msg := err.Error()
	for _, marker := range []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
		"EOF",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
