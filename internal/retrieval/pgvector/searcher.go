// Package pgvector implements vector similarity search over a Postgres
// index using the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/user/graphrag/internal/types"
	"github.com/user/graphrag/pkg/llm"
)

// Searcher embeds queries and runs similarity search over a chunks
// table, joined against documents for provenance.
//
// Expected schema:
//
//	CREATE TABLE documents (
//	    id         UUID PRIMARY KEY,
//	    title      TEXT NOT NULL,
//	    source     TEXT,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE chunks (
//	    id          UUID PRIMARY KEY,
//	    document_id UUID NOT NULL REFERENCES documents(id),
//	    content     TEXT NOT NULL,
//	    embedding   vector(1536) NOT NULL
//	);
type Searcher struct {
	db       *sql.DB
	embedder llm.Embedder
}

// New opens a connection pool for the given DSN and verifies
// connectivity.
func New(dsn string, embedder llm.Embedder) (*Searcher, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Searcher{db: db, embedder: embedder}, nil
}

// Close releases the connection pool.
func (s *Searcher) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *Searcher) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Search embeds the query and returns the limit nearest chunks by
// cosine distance, scored as cosine similarity.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]types.RetrievalHit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.content, d.title, 1 - (c.embedding <=> $1) AS score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY c.embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var hits []types.RetrievalHit
	for rows.Next() {
		hit := types.RetrievalHit{Source: types.SourceVector}
		if err := rows.Scan(&hit.ID, &hit.Snippet, &hit.Provenance, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ListDocuments returns document metadata, newest first.
func (s *Searcher) ListDocuments(ctx context.Context, limit, offset int) ([]types.DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, COALESCE(d.source, ''), d.created_at,
		       (SELECT count(*) FROM chunks c WHERE c.document_id = d.id)
		FROM documents d
		ORDER BY d.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []types.DocumentInfo
	for rows.Next() {
		var doc types.DocumentInfo
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Source, &doc.CreatedAt, &doc.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
