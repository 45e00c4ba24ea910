package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/graphrag/internal/types"
)

// GraphSearch retrieves facts and relationships from the knowledge
// graph.
type GraphSearch struct {
	searcher types.GraphSearcher
}

// NewGraphSearch creates a new graph search tool.
func NewGraphSearch(searcher types.GraphSearcher) *GraphSearch {
	return &GraphSearch{searcher: searcher}
}

func (g *GraphSearch) Name() string { return "graph_search" }
func (g *GraphSearch) Description() string {
	return "Search the knowledge graph for facts and relationships about entities"
}
func (g *GraphSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"}
		},
		"required": ["query"]
	}`)
}

func (g *GraphSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	hits, err := g.searcher.Search(ctx, params.Query)
	if err != nil {
		return "", fmt.Errorf("graph search: %w", err)
	}
	if len(hits) == 0 {
		return "No matching facts found.", nil
	}

	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, h.Snippet)
		if h.Provenance != "" {
			fmt.Fprintf(&sb, "   entity: %s\n", h.Provenance)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
