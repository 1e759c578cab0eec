package models

import (
	"encoding/json"
	"time"
)

// MessageType classifies a message within a thread.
type MessageType string

const (
	MessageTypeUser         MessageType = "user"
	MessageTypeAssistant    MessageType = "assistant"
	MessageTypeToolResult   MessageType = "tool_result"
	MessageTypeSummary      MessageType = "summary"
	MessageTypeStatus       MessageType = "status"
	MessageTypeBrowserState MessageType = "browser_state"
	MessageTypeImageContext MessageType = "image_context"
)

// Message is one entry in a thread's append-only conversation log.
//
// Messages are immutable after creation except for metadata enrichment.
// Creation-time ordering is the authoritative sequence fed back to the model.
type Message struct {
	ID       string      `json:"id"`
	ThreadID string      `json:"thread_id"`
	Type     MessageType `json:"type"`

	// Content holds plain text. Multimodal messages use Parts instead.
	Content string `json:"content,omitempty"`

	// Parts is an ordered list of multimodal content parts. When non-empty
	// it takes precedence over Content.
	Parts []ContentPart `json:"parts,omitempty"`

	// IsLLMMessage marks messages that are part of the conversation fed to
	// the model, as opposed to bookkeeping entries like status updates.
	IsLLMMessage bool `json:"is_llm_message"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ContentPart is a single multimodal element of a message.
type ContentPart struct {
	// Type is "text" or "image".
	Type string `json:"type"`

	// Text carries the content for text parts.
	Text string `json:"text,omitempty"`

	// URL references image data instead of embedding it.
	URL string `json:"url,omitempty"`

	// MimeType describes image parts (e.g. "image/png").
	MimeType string `json:"mime_type,omitempty"`
}

// Text returns the textual content of the message: Content for plain
// messages, or the concatenated text parts for multimodal ones.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	if len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// ToolCall is a model-issued request to invoke a registered tool.
type ToolCall struct {
	ID string `json:"id"`

	// Name is the sanitized tool name as exposed to the model.
	Name string `json:"name"`

	// Arguments is the loosely-typed argument bag emitted by the model.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolSignal is a terminating signal a tool attaches to its result.
// The orchestrator maps it onto the run's final status.
type ToolSignal string

const (
	// ToolSignalComplete ends the run as COMPLETED.
	ToolSignalComplete ToolSignal = "complete"

	// ToolSignalStop ends the run as STOPPED, leaving the thread open
	// for a follow-up task.
	ToolSignalStop ToolSignal = "stop"
)

// ToolResult is the outcome of dispatching one tool call. Errors are
// also communicated as results with IsError set, so the model sees its
// own tool failures and may retry or change approach.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name,omitempty"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`

	// Signal, when set, terminates the run after this result is
	// persisted.
	Signal ToolSignal `json:"signal,omitempty"`
}
