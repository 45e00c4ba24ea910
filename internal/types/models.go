// internal/types/models.go
package types

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Session is a durable conversation identity spanning multiple turns.
type Session struct {
	ID           SessionID      `json:"session_id"`
	UserID       string         `json:"user_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActiveAt time.Time      `json:"last_active_at"`
}

// Message is one append-only conversation entry. Seq is strictly
// increasing and gap-free within a session, starting at 1.
type Message struct {
	ID        MessageID      `json:"id"`
	SessionID SessionID      `json:"session_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Seq       int64          `json:"seq"`
	CreatedAt time.Time      `json:"created_at"`
}

// Source identifies which retrieval backend produced a hit.
type Source string

const (
	SourceVector Source = "vector"
	SourceGraph  Source = "graph"
)

// RetrievalHit is a single result from one retrieval backend. Scores are
// on the producing source's own scale and are only comparable after
// normalization.
type RetrievalHit struct {
	Source     Source  `json:"source"`
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
	Provenance string  `json:"provenance,omitempty"`
}

// FusedHit is one entry of a fused result list: a deduplicated hit with a
// unified rank score. Sources records which backends contributed.
type FusedHit struct {
	ID         string   `json:"id"`
	Score      float64  `json:"score"`
	Snippet    string   `json:"snippet"`
	Provenance string   `json:"provenance,omitempty"`
	Sources    []Source `json:"sources"`
}

// DocumentInfo describes an indexed document for listing endpoints.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToolCall records one retrieval tool invocation made during an agent
// run. DecodeError is set when the arguments could not be decoded; the
// call is still recorded with an empty argument map. ResultSummary is
// a truncated copy of the tool's output, empty when the call produced
// no result.
type ToolCall struct {
	ToolName      string         `json:"tool_name"`
	Args          map[string]any `json:"args"`
	ToolCallID    string         `json:"tool_call_id,omitempty"`
	DecodeError   bool           `json:"decode_error,omitempty"`
	ResultSummary string         `json:"result_summary,omitempty"`
}

// StreamEventType enumerates the internal event kinds a run produces.
type StreamEventType string

const (
	StreamSession     StreamEventType = "session"
	StreamTextDelta   StreamEventType = "text_delta"
	StreamToolSummary StreamEventType = "tool_summary"
	StreamError       StreamEventType = "error"
	StreamEnd         StreamEventType = "end"
)

// StreamEvent is one unit of the ordered event sequence produced by a
// run, prior to wire-format translation. A run emits exactly one terminal
// event (end or error), always last.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	SessionID SessionID       `json:"session_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Tools     []ToolCall      `json:"tools,omitempty"`
}
