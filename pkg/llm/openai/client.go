package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/user/graphrag/pkg/llm"
)

// Client implements llm.Provider and llm.Embedder on top of the OpenAI
// chat-completions and embeddings APIs.
type Client struct {
	config *llm.Config
	client *openai.Client
}

// New creates a client for OpenAI-compatible APIs.
func New(config *llm.Config) *Client {
	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	return &Client{
		config: config,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (c *Client) request(prompt string, tools []llm.Tool, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: stream,
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		})
	}
	if c.config.MaxTokens > 0 {
		req.MaxTokens = c.config.MaxTokens
	}
	if c.config.Temperature != 0 {
		req.Temperature = c.config.Temperature
	}
	return req
}

// Complete sends a chat completion request and returns the full response.
func (c *Client) Complete(ctx context.Context, prompt string, tools []llm.Tool) (*llm.Response, error) {
	rsp, err := c.client.CreateChatCompletion(ctx, c.request(prompt, tools, false))
	if err != nil {
		return nil, classify(err)
	}

	if len(rsp.Choices) == 0 {
		return nil, llm.Upstream("no choices in response", nil)
	}

	choice := rsp.Choices[0]
	return &llm.Response{
		Content:   choice.Message.Content,
		ToolCalls: convertToolCalls(choice.Message.ToolCalls),
		Usage: llm.Usage{
			InputTokens:  rsp.Usage.PromptTokens,
			OutputTokens: rsp.Usage.CompletionTokens,
			TotalTokens:  rsp.Usage.TotalTokens,
		},
	}, nil
}

// Stream sends a chat completion request and returns a channel of
// incremental deltas. Tool-call fragments are accumulated across chunks
// and emitted as complete calls in the final delta.
func (c *Client) Stream(ctx context.Context, prompt string, tools []llm.Tool) (<-chan llm.Delta, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(prompt, tools, true))
	if err != nil {
		return nil, classify(err)
	}

	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		defer stream.Close()

		acc := newToolCallAccumulator()
		for {
			rsp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				if calls := acc.calls(); len(calls) > 0 {
					select {
					case ch <- llm.Delta{ToolCalls: calls}:
					case <-ctx.Done():
					}
				}
				return
			}
			if err != nil {
				select {
				case ch <- llm.Delta{Err: classify(err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(rsp.Choices) == 0 {
				continue
			}
			delta := rsp.Choices[0].Delta
			acc.add(delta.ToolCalls)
			if delta.Content != "" {
				select {
				case ch <- llm.Delta{Content: delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.config.EmbeddingModel
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	rsp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(rsp.Data) == 0 {
		return nil, llm.Upstream("no embedding in response", nil)
	}
	return rsp.Data[0].Embedding, nil
}

// toolCallAccumulator merges the per-chunk tool-call fragments the
// streaming API produces into complete calls, keyed by choice index.
type toolCallAccumulator struct {
	order []int
	byIdx map[int]*llm.ToolCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIdx: make(map[int]*llm.ToolCall)}
}

func (a *toolCallAccumulator) add(fragments []openai.ToolCall) {
	for _, f := range fragments {
		idx := 0
		if f.Index != nil {
			idx = *f.Index
		}
		tc, ok := a.byIdx[idx]
		if !ok {
			tc = &llm.ToolCall{}
			a.byIdx[idx] = tc
			a.order = append(a.order, idx)
		}
		if f.ID != "" {
			tc.ID = f.ID
		}
		if f.Function.Name != "" {
			tc.Name += f.Function.Name
		}
		if f.Function.Arguments != "" {
			tc.Arguments = append(tc.Arguments, f.Function.Arguments...)
		}
	}
}

func (a *toolCallAccumulator) calls() []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.byIdx[idx])
	}
	return out
}

func convertToolCalls(calls []openai.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(calls))
	for _, tc := range calls {
		out = append(out, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}

// classify maps API errors onto the failure taxonomy using structured
// status codes, not message text.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			return llm.Quota("rate limited", err)
		}
		if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
			return llm.Quota("quota exhausted", err)
		}
	}
	return llm.Upstream("chat completion", err)
}
