// Package llm talks to an OpenAI-compatible chat-completion API with
// streaming enabled, normalizing the provider's incremental-delta wire
// format into a stream of [Delta] values.
//
// Two implementations of [Streamer] exist: [Client] issues real HTTP
// requests; [Mock] synthesizes deterministic replies for use when no
// upstream credential is configured.
package llm

import (
	"context"
	"iter"

	"github.com/google/jsonschema-go/jsonschema"
)

// Message roles on the chat-completion wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in the conversation history sent upstream.
// Role "tool" messages carry ToolCallID referencing the invoking call.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a finalized tool invocation requested by the model.
// Arguments is only valid JSON once the call is complete.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names a function and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a callable function to the model.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes a function's name, purpose and parameter schema.
type FunctionDef struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// Request is one chat-completion call.
type Request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Tools     []Tool    `json:"tools,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Stream    bool      `json:"stream"`
}

// ToolCallDelta is an incremental tool-call fragment. The provider keys
// fragments by slot index, not id: the id may arrive late or only once,
// while name and argument text accrete across chunks.
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Function FunctionCall `json:"function"`
}

// Delta is one normalized increment of model output.
type Delta struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// FinishToolCalls is the completion reason signalling that the model
// wants its accumulated tool calls executed.
const FinishToolCalls = "tool_calls"

// Streamer issues one chat-completion request and yields deltas as they
// arrive. The sequence ends after a delta carrying a finish reason, or
// after yielding a non-nil error (terminal; no retry).
type Streamer interface {
	Stream(ctx context.Context, req Request) iter.Seq2[Delta, error]
}
