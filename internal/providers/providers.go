// Package providers defines the inference client boundary: create a chat
// completion with a model, system prompt, and tool set; get back text and
// any tool calls.
package providers

import "context"

// ToolCallRequest is a tool call requested by the model.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the standardized response from any backend.
type ChatResponse struct {
	Content      *string           `json:"content"`
	ToolCalls    []ToolCallRequest `json:"tool_calls,omitempty"`
	FinishReason string            `json:"finish_reason"`
	Usage        map[string]int    `json:"usage,omitempty"`
}

// HasToolCalls reports whether the model asked for tool execution.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ChatRequest holds all parameters for one completion call. Messages are
// raw OpenAI-shaped maps so tool results and tool_calls round-trip as-is.
type ChatRequest struct {
	Messages    []map[string]any `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	Model       string           `json:"model,omitempty"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

// LLMProvider is the interface the runtime consumes.
type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	DefaultModel() string
}
