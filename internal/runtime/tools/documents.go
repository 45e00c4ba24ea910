package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/graphrag/internal/types"
)

// ListDocuments enumerates the documents currently in the knowledge
// base.
type ListDocuments struct {
	lister types.DocumentLister
	limit  int
}

// NewListDocuments creates a new document listing tool.
func NewListDocuments(lister types.DocumentLister, limit int) *ListDocuments {
	if limit <= 0 {
		limit = 20
	}
	return &ListDocuments{lister: lister, limit: limit}
}

func (l *ListDocuments) Name() string { return "list_documents" }
func (l *ListDocuments) Description() string {
	return "List the documents available in the knowledge base"
}
func (l *ListDocuments) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"limit": {"type": "integer", "description": "Maximum number of documents (default: 20)"},
			"offset": {"type": "integer", "description": "Number of documents to skip"}
		}
	}`)
}

func (l *ListDocuments) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return "", fmt.Errorf("parse args: %w", err)
		}
	}
	limit := params.Limit
	if limit <= 0 {
		limit = l.limit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	docs, err := l.lister.ListDocuments(ctx, limit, params.Offset)
	if err != nil {
		return "", fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return "The knowledge base is empty.", nil
	}

	var sb strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&sb, "%d. %s (%d chunks)\n", i+1, d.Title, d.ChunkCount)
	}
	return sb.String(), nil
}
