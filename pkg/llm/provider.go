package llm

import "context"

// Provider defines the interface for interacting with LLM backends.
// Implementations handle protocol-specific details such as request
// formatting, authentication, and response parsing, and classify their
// failures into the Failure taxonomy before returning them.
type Provider interface {
	// Complete sends the prompt and returns the full response.
	Complete(ctx context.Context, prompt string, tools []Tool) (*Response, error)

	// Stream sends the prompt and returns a channel of incremental
	// deltas. The channel is always closed; a delta with Err set is the
	// last element when the stream fails midway.
	Stream(ctx context.Context, prompt string, tools []Tool) (<-chan Delta, error)
}

// Embedder produces embedding vectors for retrieval queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds common configuration for LLM providers.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float32
}
