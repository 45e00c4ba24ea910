package llm

import "encoding/json"

// Tool describes a tool that can be offered to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents a tool invocation requested by the model.
// Arguments carries the raw encoded form; ParsedArgs is set instead when
// the provider already decoded them. At most one of the two is consulted.
type ToolCall struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	ParsedArgs map[string]any  `json:"parsed_args,omitempty"`
}

// ToolResult is the outcome of executing a requested tool call.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Response represents a complete response from an LLM provider.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Delta represents an incremental update during streaming. Err is set on
// a mid-stream failure; the channel is closed after such a delta.
type Delta struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Err       error      `json:"-"`
}

// TraceKind tags a TraceEvent variant.
type TraceKind string

const (
	TraceText       TraceKind = "text"
	TraceToolCall   TraceKind = "tool_call"
	TraceToolResult TraceKind = "tool_result"
)

// TraceEvent is one entry of the ordered trace an agent run leaves
// behind. Events are tagged variants decoded once at the provider
// boundary: exactly the field matching Kind is populated.
type TraceEvent struct {
	Kind   TraceKind   `json:"kind"`
	Text   string      `json:"text,omitempty"`
	Call   *ToolCall   `json:"call,omitempty"`
	Result *ToolResult `json:"result,omitempty"`
}
