// Package llm provides the OpenRouter gateway used by the council engine.
// All deliberation traffic flows through a single Gateway interface so the
// engine can be exercised against fakes in tests.
package llm

import (
	"context"
	"io"
	"time"
)

// Security limits to prevent unbounded memory usage
const (
	// MaxErrorBodySize limits how much error response body we read (1MB)
	MaxErrorBodySize = 1 * 1024 * 1024

	// MaxStreamedResponseSize limits total streamed response size (50MB)
	MaxStreamedResponseSize = 50 * 1024 * 1024
)

// readLimitedBody reads up to maxBytes from r, returning the bytes read.
func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}

// Message is one turn of a model conversation in the OpenAI-compatible
// format OpenRouter speaks.
type Message struct {
	Role       string     `json:"role"` // "user", "assistant", "system", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// UserMessage builds a single-turn user conversation.
func UserMessage(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its raw JSON argument payload.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDef is a tool definition in OpenAI function-calling format.
type ToolDef struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes one callable function to the model.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolExecutor resolves a tool call into a result string. Implementations
// report tool failures as result text, not errors; a returned error means
// the executor itself broke.
type ToolExecutor func(ctx context.Context, name string, args map[string]any) (string, error)

// ToolCallRecord summarizes one executed tool call for inclusion in a
// model's final result.
type ToolCallRecord struct {
	Tool          string         `json:"tool"`
	Args          map[string]any `json:"args"`
	ResultPreview string         `json:"result_preview"`
}

// ChatResponse is the final product of a chat completion.
type ChatResponse struct {
	Content          string           `json:"content"`
	Model            string           `json:"model"`
	TokensUsed       int              `json:"tokens_used,omitempty"`
	PromptTokens     int              `json:"prompt_tokens,omitempty"`
	CompletionTokens int              `json:"completion_tokens,omitempty"`
	Duration         time.Duration    `json:"duration"`
	FinishReason     string           `json:"finish_reason,omitempty"`
	ToolCallsMade    []ToolCallRecord `json:"tool_calls_made,omitempty"`
}

// StreamEventType identifies a streaming gateway event.
type StreamEventType string

const (
	StreamToken      StreamEventType = "token"
	StreamToolCall   StreamEventType = "tool_call"
	StreamToolResult StreamEventType = "tool_result"
	StreamDone       StreamEventType = "done"
	StreamError      StreamEventType = "error"
)

// StreamEvent is one event from a streaming chat completion. A stream ends
// with exactly one done or error event.
type StreamEvent struct {
	Type    StreamEventType
	Content string

	Tool   string
	Args   map[string]any
	Result string

	// ToolCallsMade accompanies the done event when tools were used.
	ToolCallsMade []ToolCallRecord

	Err string
}

// Gateway is the engine's view of the model backend.
type Gateway interface {
	// Chat runs a plain completion.
	Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error)

	// ChatWithTools runs a completion with tool support, resolving tool
	// calls through exec until the model produces a final answer or the
	// tool round limit is hit.
	ChatWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, exec ToolExecutor) (*ChatResponse, error)

	// ChatStream runs a plain completion, emitting tokens as they arrive.
	ChatStream(ctx context.Context, model string, messages []Message) <-chan StreamEvent

	// ChatStreamWithTools is ChatStream with tool support.
	ChatStreamWithTools(ctx context.Context, model string, messages []Message, tools []ToolDef, exec ToolExecutor) <-chan StreamEvent
}
