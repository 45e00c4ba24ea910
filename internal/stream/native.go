// Package stream translates a run's internal event sequence into the
// two wire formats the HTTP API speaks: the native SSE protocol and
// OpenAI-compatible chat completion chunks.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/user/graphrag/internal/types"
)

// nativeEvent is the JSON payload of one native SSE frame.
type nativeEvent struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Content   string           `json:"content,omitempty"`
	Tools     []types.ToolCall `json:"tools,omitempty"`
}

// NativeWriter renders run events as the native SSE protocol: one
// data frame per event, flushed immediately.
type NativeWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewNativeWriter prepares w for SSE and returns the writer. It fails
// when the underlying connection cannot be flushed incrementally.
func NewNativeWriter(w http.ResponseWriter) (*NativeWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &NativeWriter{w: w, flusher: flusher}, nil
}

// Write renders one run event as an SSE frame.
func (n *NativeWriter) Write(ev types.StreamEvent) error {
	frame := nativeEvent{SessionID: string(ev.SessionID)}
	switch ev.Type {
	case types.StreamSession:
		frame.Type = "session"
	case types.StreamTextDelta:
		frame.Type = "text"
		frame.Content = ev.Content
	case types.StreamToolSummary:
		frame.Type = "tools"
		frame.Tools = ev.Tools
	case types.StreamError:
		frame.Type = "error"
		frame.Content = ev.Content
	case types.StreamEnd:
		frame.Type = "end"
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return n.send(frame)
}

func (n *NativeWriter) send(frame nativeEvent) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(n.w, "data: %s\n\n", data); err != nil {
		return err
	}
	n.flusher.Flush()
	return nil
}
