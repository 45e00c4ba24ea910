package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/user/graphrag/internal/retrieval"
	"github.com/user/graphrag/internal/types"
)

// HybridSearch queries the vector store and the knowledge graph
// concurrently and fuses the two result sets into a single ranking.
type HybridSearch struct {
	vector types.VectorSearcher
	graph  types.GraphSearcher
	fuser  *retrieval.Fuser
	limit  int
}

// NewHybridSearch creates a new hybrid search tool.
func NewHybridSearch(vector types.VectorSearcher, graph types.GraphSearcher, fuser *retrieval.Fuser, limit int) *HybridSearch {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &HybridSearch{vector: vector, graph: graph, fuser: fuser, limit: limit}
}

func (h *HybridSearch) Name() string { return "hybrid_search" }
func (h *HybridSearch) Description() string {
	return "Search both the knowledge base and the knowledge graph, combining results into one ranking"
}
func (h *HybridSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"},
			"limit": {"type": "integer", "description": "Maximum number of results (default: 10)"}
		},
		"required": ["query"]
	}`)
}

func (h *HybridSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
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
		limit = h.limit
	}

	fused, err := h.Query(ctx, params.Query, limit)
	if err != nil {
		return "", err
	}
	if len(fused) == 0 {
		return "No matching results found.", nil
	}

	var sb strings.Builder
	for i, f := range fused {
		fmt.Fprintf(&sb, "%d. [%.3f] %s\n", i+1, f.Score, f.Snippet)
		if f.Provenance != "" {
			fmt.Fprintf(&sb, "   source: %s\n", f.Provenance)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Query runs both searches concurrently and fuses the results. It is
// exported so the search API can share the exact same ranking as the
// agent's tool.
func (h *HybridSearch) Query(ctx context.Context, query string, limit int) ([]types.FusedHit, error) {
	var (
		vectorHits []types.RetrievalHit
		graphHits  []types.RetrievalHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := h.vector.Search(gctx, query, limit)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := h.graph.Search(gctx, query)
		if err != nil {
			return fmt.Errorf("graph search: %w", err)
		}
		graphHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return h.fuser.Fuse(vectorHits, graphHits, limit), nil
}
