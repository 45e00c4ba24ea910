package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/user/graphrag/internal/types"
)

type fakeGraphSearcher struct {
	hits     []types.RetrievalHit
	err      error
	gotQuery string
}

func (f *fakeGraphSearcher) Search(_ context.Context, query string) ([]types.RetrievalHit, error) {
	f.gotQuery = query
	return f.hits, f.err
}

func TestGraphSearchName(t *testing.T) {
	g := NewGraphSearch(&fakeGraphSearcher{})
	if g.Name() != "graph_search" {
		t.Errorf("expected 'graph_search', got %q", g.Name())
	}
}

func TestGraphSearchExecute(t *testing.T) {
	searcher := &fakeGraphSearcher{hits: []types.RetrievalHit{
		{Source: types.SourceGraph, ID: "f1", Score: 2.1, Snippet: "Ada Lovelace wrote the first program", Provenance: "Ada Lovelace"},
		{Source: types.SourceGraph, ID: "f2", Score: 1.3, Snippet: "Babbage designed the analytical engine"},
	}}
	g := NewGraphSearch(searcher)

	args, _ := json.Marshal(map[string]string{"query": "Lovelace"})
	result, err := g.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if searcher.gotQuery != "Lovelace" {
		t.Errorf("unexpected query %q", searcher.gotQuery)
	}
	if !strings.Contains(result, "1. Ada Lovelace wrote the first program") {
		t.Errorf("expected fact snippet, got %q", result)
	}
	if !strings.Contains(result, "entity: Ada Lovelace") {
		t.Errorf("expected entity line, got %q", result)
	}
}

func TestGraphSearchNoResults(t *testing.T) {
	g := NewGraphSearch(&fakeGraphSearcher{})

	args, _ := json.Marshal(map[string]string{"query": "xyznonexistent"})
	result, err := g.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if result != "No matching facts found." {
		t.Errorf("expected empty-result message, got %q", result)
	}
}

func TestGraphSearchMissingQuery(t *testing.T) {
	g := NewGraphSearch(&fakeGraphSearcher{})

	if _, err := g.Execute(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for missing query")
	}
}

func TestGraphSearchBackendError(t *testing.T) {
	g := NewGraphSearch(&fakeGraphSearcher{err: errors.New("bolt unreachable")})

	args, _ := json.Marshal(map[string]string{"query": "q"})
	if _, err := g.Execute(context.Background(), args); err == nil {
		t.Error("expected backend error to propagate")
	}
}
