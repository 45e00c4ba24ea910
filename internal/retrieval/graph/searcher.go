// Package graph implements knowledge-graph search over Neo4j.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/user/graphrag/internal/types"
)

const defaultLimit = 10

// Searcher runs full-text queries against a Neo4j fact index. Each hit
// is a graph fact with its entity name as provenance.
type Searcher struct {
	driver   neo4j.DriverWithContext
	database string
	index    string
	limit    int
}

// New connects to Neo4j and verifies connectivity. index names the
// full-text index queried by Search.
func New(ctx context.Context, uri, username, password, database, index string) (*Searcher, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Searcher{
		driver:   driver,
		database: database,
		index:    index,
		limit:    defaultLimit,
	}, nil
}

// Close releases the driver.
func (s *Searcher) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies graph connectivity.
func (s *Searcher) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Search runs a full-text query over the fact index and returns scored
// graph hits.
func (s *Searcher) Search(ctx context.Context, query string) ([]types.RetrievalHit, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	cypher := `
		CALL db.index.fulltext.queryNodes($index, $query)
		YIELD node, score
		RETURN node.id AS id, node.fact AS fact, node.entity AS entity, score
		LIMIT $limit
	`
	params := map[string]any{
		"index": s.index,
		"query": query,
		"limit": s.limit,
	}

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("run graph query: %w", err)
	}

	var hits []types.RetrievalHit
	for result.Next(ctx) {
		if result.Err() != nil {
			return nil, result.Err()
		}
		record := result.Record()
		hit := types.RetrievalHit{Source: types.SourceGraph}
		if v, ok := record.Get("id"); ok {
			hit.ID, _ = v.(string)
		}
		if v, ok := record.Get("fact"); ok {
			hit.Snippet, _ = v.(string)
		}
		if v, ok := record.Get("entity"); ok {
			hit.Provenance, _ = v.(string)
		}
		if v, ok := record.Get("score"); ok {
			hit.Score, _ = v.(float64)
		}
		hits = append(hits, hit)
	}

	return hits, nil
}
