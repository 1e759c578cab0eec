package providers

import (
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/agent"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/internal/tools"
	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

func TestNewOpenAIRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
	if _, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test"}); err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
}

func TestNewAnthropicRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropic(AnthropicConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
	if _, err := NewAnthropic(AnthropicConfig{APIKey: "sk-ant-test"}); err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
}

func TestConvertOpenAIMessages(t *testing.T) {
	req := &agent.CompletionRequest{
		SystemPrompt: "be terse",
		Messages: []*models.Message{
			{Type: models.MessageTypeUser, Content: "hello"},
			{Type: models.MessageTypeAssistant, Content: "hi"},
			{Type: models.MessageTypeToolResult, Content: "42"},
			{Type: models.MessageTypeSummary, Content: "earlier: greeting"},
		},
		Ephemeral: &models.Message{
			Type: models.MessageTypeUser,
			Parts: []models.ContentPart{
				{Type: "text", Text: "Current browser state:\n<html>"},
				{Type: "image", URL: "https://example.com/shot.png"},
			},
		},
	}

	converted := convertOpenAIMessages(req)
	if len(converted) != 6 {
		t.Fatalf("got %d messages, want 6", len(converted))
	}
	if converted[0].Role != openai.ChatMessageRoleSystem || converted[0].Content != "be terse" {
		t.Errorf("system message = %+v", converted[0])
	}
	if converted[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("user role = %q", converted[1].Role)
	}
	if converted[2].Role != openai.ChatMessageRoleAssistant {
		t.Errorf("assistant role = %q", converted[2].Role)
	}
	if converted[3].Role != openai.ChatMessageRoleUser {
		t.Errorf("tool result role = %q, want user", converted[3].Role)
	}
	if converted[3].Content != "Tool result:\n42" {
		t.Errorf("tool result content = %q", converted[3].Content)
	}
	if converted[4].Role != openai.ChatMessageRoleSystem {
		t.Errorf("summary role = %q, want system", converted[4].Role)
	}

	last := converted[5]
	if len(last.MultiContent) != 2 {
		t.Fatalf("ephemeral parts = %d, want 2", len(last.MultiContent))
	}
	if last.MultiContent[0].Type != openai.ChatMessagePartTypeText {
		t.Errorf("part 0 type = %q", last.MultiContent[0].Type)
	}
	if last.MultiContent[1].Type != openai.ChatMessagePartTypeImageURL {
		t.Errorf("part 1 type = %q", last.MultiContent[1].Type)
	}
	if last.MultiContent[1].ImageURL.URL != "https://example.com/shot.png" {
		t.Errorf("image URL = %q", last.MultiContent[1].ImageURL.URL)
	}
}

func TestConvertOpenAIMessagesSkipsEmpty(t *testing.T) {
	req := &agent.CompletionRequest{
		Messages: []*models.Message{
			{Type: models.MessageTypeUser, Content: ""},
			{Type: models.MessageTypeUser, Content: "real"},
		},
	}
	converted := convertOpenAIMessages(req)
	if len(converted) != 1 {
		t.Fatalf("got %d messages, want 1", len(converted))
	}
	if converted[0].Content != "real" {
		t.Errorf("content = %q", converted[0].Content)
	}
}

func TestConvertOpenAITools(t *testing.T) {
	params := json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`)
	schemas := []*tools.Schema{
		tools.FunctionSchema("read_file", "Read a file", params),
	}
	converted := convertOpenAITools(schemas)
	if len(converted) != 1 {
		t.Fatalf("got %d tools, want 1", len(converted))
	}
	fn := converted[0].Function
	if converted[0].Type != openai.ToolTypeFunction {
		t.Errorf("type = %q", converted[0].Type)
	}
	if fn.Name != "read_file" || fn.Description != "Read a file" {
		t.Errorf("function = %+v", fn)
	}
	raw, ok := fn.Parameters.(json.RawMessage)
	if !ok {
		t.Fatalf("parameters type = %T", fn.Parameters)
	}
	if string(raw) != string(params) {
		t.Errorf("parameters = %s", raw)
	}
}

func TestConvertAnthropicMessages(t *testing.T) {
	history := []*models.Message{
		{Type: models.MessageTypeUser, Content: "hello"},
		{Type: models.MessageTypeAssistant, Content: "hi"},
		{Type: models.MessageTypeToolResult, Content: "ok"},
	}
	ephemeral := &models.Message{
		Type:  models.MessageTypeUser,
		Parts: []models.ContentPart{{Type: "image", URL: "https://example.com/a.png"}},
	}

	converted := convertAnthropicMessages(history, ephemeral)
	if len(converted) != 4 {
		t.Fatalf("got %d messages, want 4", len(converted))
	}
	if converted[0].Role != "user" {
		t.Errorf("role 0 = %q", converted[0].Role)
	}
	if converted[1].Role != "assistant" {
		t.Errorf("role 1 = %q", converted[1].Role)
	}
	if converted[2].Role != "user" {
		t.Errorf("tool result role = %q, want user", converted[2].Role)
	}
}

func TestConvertAnthropicTools(t *testing.T) {
	schemas := []*tools.Schema{
		tools.FunctionSchema("run_command", "Execute a shell command",
			json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`)),
	}
	converted, err := convertAnthropicTools(schemas)
	if err != nil {
		t.Fatalf("convertAnthropicTools: %v", err)
	}
	if len(converted) != 1 {
		t.Fatalf("got %d tools, want 1", len(converted))
	}
	tool := converted[0].OfTool
	if tool == nil {
		t.Fatal("OfTool is nil")
	}
	if tool.Name != "run_command" {
		t.Errorf("name = %q", tool.Name)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit text", errors.New("rate_limit_error: slow down"), true},
		{"http 429", errors.New("unexpected status 429"), true},
		{"server error", errors.New("upstream returned 503"), true},
		{"timeout", errors.New("request timeout"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"bad request", errors.New("invalid_request_error: bad field"), false},
		{"auth", errors.New("authentication_error: bad key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
