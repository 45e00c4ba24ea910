// Package tools implements the retrieval tools the agent can invoke
// during a run.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/graphrag/internal/types"
)

const defaultSearchLimit = 10

// VectorSearch retrieves semantically similar chunks from the vector
// store.
type VectorSearch struct {
	searcher types.VectorSearcher
	limit    int
}

// NewVectorSearch creates a new vector search tool.
func NewVectorSearch(searcher types.VectorSearcher, limit int) *VectorSearch {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &VectorSearch{searcher: searcher, limit: limit}
}

func (v *VectorSearch) Name() string { return "vector_search" }
func (v *VectorSearch) Description() string {
	return "Search the knowledge base for passages semantically similar to a query"
}
func (v *VectorSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"},
			"limit": {"type": "integer", "description": "Maximum number of results (default: 10)"}
		},
		"required": ["query"]
	}`)
}

func (v *VectorSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = v.limit
	}

	hits, err := v.searcher.Search(ctx, params.Query, limit)
	if err != nil {
		return "", fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		return "No matching passages found.", nil
	}
	return formatHits(hits), nil
}

func formatHits(hits []types.RetrievalHit) string {
	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. [%.3f] %s\n", i+1, h.Score, h.Snippet)
		if h.Provenance != "" {
			fmt.Fprintf(&sb, "   source: %s\n", h.Provenance)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
