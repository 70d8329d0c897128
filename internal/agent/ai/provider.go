// Package ai defines the completion-endpoint contract and its concrete
// providers. The orchestration core treats the endpoint as a black box that
// accepts a prompt plus tool schema and returns a stream of events.
package ai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/session"
)

// StreamEventType defines the type of streaming event
type StreamEventType string

const (
	EventTypeText     StreamEventType = "text"
	EventTypeToolCall StreamEventType = "tool_call"
	EventTypeError    StreamEventType = "error"
	EventTypeDone     StreamEventType = "done"
)

// StreamEvent represents a streaming response event
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ToolCall *ToolCall       `json:"tool_call,omitempty"`
	Error    error           `json:"-"`
}

// ToolCall represents a tool invocation from the model
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolDefinition describes a tool declared to the model
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ChatRequest represents a request to a completion provider
type ChatRequest struct {
	Turns     []session.Turn   `json:"turns"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	System    string           `json:"system,omitempty"`
	Model     string           `json:"model,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

// ErrNotConfigured is returned when no completion provider has credentials.
// This is fatal to the request and surfaced to the caller unchanged.
var ErrNotConfigured = errors.New("no completion provider configured - set ANTHROPIC_API_KEY or OPENAI_API_KEY")

// Provider is the interface to one completion endpoint
type Provider interface {
	// ID returns the provider identifier (e.g., "anthropic", "openai")
	ID() string

	// Stream sends a request and returns a channel of streaming events.
	// The channel terminates with a done or error event.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)
}

// resultText renders a tool result payload as the text block sent to the
// model. The payload is already-redacted JSON; errors fall back to empty.
func resultText(r session.ToolResult) string {
	if len(r.Payload) == 0 {
		return ""
	}
	return string(r.Payload)
}
