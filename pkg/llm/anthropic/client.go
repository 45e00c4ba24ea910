package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/user/graphrag/pkg/llm"
)

const defaultMaxTokens = 1024

// Client implements llm.Provider on top of the Anthropic Messages API.
type Client struct {
	config *llm.Config
	client *anthropic.Client
}

// New creates an Anthropic-backed provider.
func New(config *llm.Config) *Client {
	opts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(config.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		config: config,
		client: &client,
	}
}

func (c *Client) params(prompt string, tools []llm.Tool) anthropic.MessageNewParams {
	maxTokens := int64(c.config.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for _, t := range tools {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		_ = json.Unmarshal(t.Parameters, &schema)

		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.Properties,
					ExtraFields: map[string]any{
						"required": schema.Required,
					},
				},
			},
		})
	}

	return params
}

// Complete sends the prompt and returns the full response.
func (c *Client) Complete(ctx context.Context, prompt string, tools []llm.Tool) (*llm.Response, error) {
	rsp, err := c.client.Messages.New(ctx, c.params(prompt, tools))
	if err != nil {
		return nil, classify(err)
	}

	var b strings.Builder
	var calls []llm.ToolCall
	for _, content := range rsp.Content {
		switch block := content.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(block.Text)
		case anthropic.ToolUseBlock:
			calls = append(calls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}

	if b.Len() == 0 && len(calls) == 0 {
		return nil, llm.Upstream("empty response", nil)
	}

	return &llm.Response{
		Content:   b.String(),
		ToolCalls: calls,
		Usage: llm.Usage{
			InputTokens:  int(rsp.Usage.InputTokens),
			OutputTokens: int(rsp.Usage.OutputTokens),
			TotalTokens:  int(rsp.Usage.InputTokens + rsp.Usage.OutputTokens),
		},
	}, nil
}

// Stream sends the prompt and returns a channel of incremental deltas.
func (c *Client) Stream(ctx context.Context, prompt string, tools []llm.Tool) (<-chan llm.Delta, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(prompt, tools))

	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		defer stream.Close()

		var msg anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				select {
				case ch <- llm.Delta{Err: llm.Upstream("accumulate stream event", err)}:
				case <-ctx.Done():
				}
				return
			}

			if deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text, ok := deltaEvent.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
					select {
					case ch <- llm.Delta{Content: text.Text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case ch <- llm.Delta{Err: classify(err)}:
			case <-ctx.Done():
			}
			return
		}

		var calls []llm.ToolCall
		for _, content := range msg.Content {
			if block, ok := content.AsAny().(anthropic.ToolUseBlock); ok {
				calls = append(calls, llm.ToolCall{
					ID:        block.ID,
					Name:      block.Name,
					Arguments: json.RawMessage(block.Input),
				})
			}
		}
		if len(calls) > 0 {
			select {
			case ch <- llm.Delta{ToolCalls: calls}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return llm.Quota("rate limited", err)
	}
	return llm.Upstream("message request", err)
}
