package stream

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/graphrag/internal/types"
)

// promptTokenEstimate is the fixed prompt-side token estimate used when
// no tokenizer accounting is available for compat responses.
const promptTokenEstimate = 50

// Usage is the OpenAI-compatible token accounting block. Values are
// estimates, not tokenizer counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EstimateUsage derives a usage block from the completion text using a
// words-times-1.3 heuristic.
func EstimateUsage(content string) Usage {
	completion := int(float64(len(strings.Fields(content))) * 1.3)
	return Usage{
		PromptTokens:     promptTokenEstimate,
		CompletionTokens: completion,
		TotalTokens:      promptTokenEstimate + completion,
	}
}

// CompletionID returns a fresh chat completion identifier.
func CompletionID() string {
	u := uuid.New()
	return "chatcmpl-" + hex.EncodeToString(u[:])[:8]
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type completionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

// ChatMessage is one message of a compat completion response.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletion is the non-streaming compat response body.
type ChatCompletion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

// NewChatCompletion builds a non-streaming compat response for the
// given answer.
func NewChatCompletion(model, content string) ChatCompletion {
	return ChatCompletion{
		ID:      CompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []completionChoice{{
			Index:        0,
			Message:      ChatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: EstimateUsage(content),
	}
}

// CompatWriter renders run events as OpenAI-compatible streaming
// chunks. The completion id and created timestamp are fixed at stream
// start and repeated on every chunk. Session and tool_summary events
// have no compat representation and are skipped; the terminal event
// always produces a finish_reason "stop" chunk followed by the [DONE]
// sentinel.
type CompatWriter struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	id       string
	model    string
	created  int64
	started  bool
	finished bool
}

// NewCompatWriter prepares w for SSE and returns the writer.
func NewCompatWriter(w http.ResponseWriter, model string) (*CompatWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &CompatWriter{
		w:       w,
		flusher: flusher,
		id:      CompletionID(),
		model:   model,
		created: time.Now().Unix(),
	}, nil
}

// Write renders one run event. Callers must stop after the first
// terminal event; Write enforces this and ignores anything after it.
func (c *CompatWriter) Write(ev types.StreamEvent) error {
	if c.finished {
		return nil
	}
	switch ev.Type {
	case types.StreamSession, types.StreamToolSummary:
		return nil
	case types.StreamTextDelta:
		return c.sendContent(ev.Content)
	case types.StreamError:
		// Compat clients have no error frame; the apology is delivered
		// as regular content before the stream closes normally.
		if err := c.sendContent(ev.Content); err != nil {
			return err
		}
		return c.finish()
	case types.StreamEnd:
		return c.finish()
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (c *CompatWriter) sendContent(content string) error {
	delta := chunkDelta{Content: content}
	if !c.started {
		delta.Role = "assistant"
		c.started = true
	}
	return c.send(completionChunk{
		ID:      c.id,
		Object:  "chat.completion.chunk",
		Created: c.created,
		Model:   c.model,
		Choices: []chunkChoice{{Index: 0, Delta: delta}},
	})
}

func (c *CompatWriter) finish() error {
	c.finished = true
	stop := "stop"
	if err := c.send(completionChunk{
		ID:      c.id,
		Object:  "chat.completion.chunk",
		Created: c.created,
		Model:   c.model,
		Choices: []chunkChoice{{Index: 0, FinishReason: &stop}},
	}); err != nil {
		return err
	}
	if _, err := fmt.Fprint(c.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *CompatWriter) send(chunk completionChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", data); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}
