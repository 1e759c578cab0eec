package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/agent"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (sk-...).
	APIKey string

	// BaseURL overrides the API base URL, e.g. for compatible gateways.
	BaseURL string

	// MaxRetries bounds retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base delay between retries (linear backoff).
	// Default: 1s
	RetryDelay time.Duration

	// DefaultModel is used when the request does not name one.
	DefaultModel string
}

// OpenAIProvider calls the OpenAI chat completions API with streaming and
// accumulates the stream into one Completion.
type OpenAIProvider struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = defaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete streams one model turn and returns the accumulated completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertOpenAIMessages(req),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return nil, fmt.Errorf("openai: %w", lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", lastErr)
	}
	defer stream.Close()

	return accumulateOpenAIStream(stream, req.OnDelta)
}

// accumulateOpenAIStream folds the chunk stream into one Completion. Tool
// calls arrive fragmented across chunks, keyed by index.
func accumulateOpenAIStream(stream *openai.ChatCompletionStream, onDelta func(string)) (*agent.Completion, error) {
	var content strings.Builder
	pending := map[int]*models.ToolCall{}
	maxIndex := -1
	completion := &agent.Completion{}

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("openai: stream: %w", err)
		}

		if response.Usage != nil {
			completion.PromptTokens = response.Usage.PromptTokens
			completion.CompletionTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if pending[index] == nil {
				pending[index] = &models.ToolCall{}
			}
			if index > maxIndex {
				maxIndex = index
			}
			if tc.ID != "" {
				pending[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				pending[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pending[index].Arguments = append(pending[index].Arguments,
					tc.Function.Arguments...)
			}
		}

		if choice.FinishReason != "" {
			completion.FinishReason = string(choice.FinishReason)
		}
	}

	for index := 0; index <= maxIndex; index++ {
		call := pending[index]
		if call == nil || call.Name == "" {
			continue
		}
		if len(call.Arguments) == 0 {
			call.Arguments = json.RawMessage("{}")
		}
		completion.ToolCalls = append(completion.ToolCalls, *call)
	}

	completion.Content = content.String()
	return completion, nil
}

// convertOpenAIMessages maps thread history (plus the ephemeral context
// message) onto OpenAI chat messages. The system prompt leads the array.
func convertOpenAIMessages(req *agent.CompletionRequest) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+2)
	if req.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	all := req.Messages
	if req.Ephemeral != nil {
		all = append(append([]*models.Message{}, req.Messages...), req.Ephemeral)
	}
	for _, msg := range all {
		converted, ok := openAIMessage(msg)
		if ok {
			out = append(out, converted)
		}
	}
	return out
}

func openAIMessage(msg *models.Message) (openai.ChatCompletionMessage, bool) {
	role := openai.ChatMessageRoleUser
	switch msg.Type {
	case models.MessageTypeAssistant:
		role = openai.ChatMessageRoleAssistant
	case models.MessageTypeSummary:
		role = openai.ChatMessageRoleSystem
	case models.MessageTypeToolResult:
		// Tool results are persisted content-only, without the paired
		// assistant tool_calls entry OpenAI's tool role requires, so they
		// travel as user turns.
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: "Tool result:\n" + msg.Text(),
		}, true
	}

	if len(msg.Parts) > 0 {
		parts := make([]openai.ChatMessagePart, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch {
			case part.Text != "":
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			case part.URL != "":
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: part.URL,
					},
				})
			}
		}
		if len(parts) == 0 {
			return openai.ChatCompletionMessage{}, false
		}
		return openai.ChatCompletionMessage{Role: role, MultiContent: parts}, true
	}

	if msg.Content == "" {
		return openai.ChatCompletionMessage{}, false
	}
	return openai.ChatCompletionMessage{Role: role, Content: msg.Content}, true
}

func convertOpenAITools(schemas []*tools.Schema) []openai.Tool {
	out := make([]openai.Tool, 0, len(schemas))
	for _, schema := range schemas {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        schema.Name,
				Description: schema.Description,
				Parameters:  schema.Parameters,
			},
		})
	}
	return out
}
