// Package retrieval merges ranked results from multiple retrieval
// sources into one ordered evidence list.
package retrieval

import (
	"sort"

	"github.com/user/graphrag/internal/types"
)

// Fuser combines vector-similarity hits and graph hits into a single
// ranked, deduplicated list. Weights apply only to identifiers present
// in both sources.
type Fuser struct {
	VectorWeight float64
	GraphWeight  float64
}

// NewFuser creates a Fuser with the given source weights. Non-positive
// weights fall back to the 0.5/0.5 default.
func NewFuser(vectorWeight, graphWeight float64) *Fuser {
	if vectorWeight <= 0 || graphWeight <= 0 {
		vectorWeight, graphWeight = 0.5, 0.5
	}
	return &Fuser{VectorWeight: vectorWeight, GraphWeight: graphWeight}
}

// fused is the working record for one dedup key during fusion.
type fused struct {
	hit       types.FusedHit
	hasVector bool
	hasGraph  bool
}

// collapsed is one source's best occurrence of an identifier.
type collapsed struct {
	id         string
	score      float64
	snippet    string
	provenance string
}

// collapse dedupes one source list, keeping the highest normalized
// score per identifier and the first occurrence's text fields. This
// runs per source before merging, so the cross-source combination only
// ever sees identifiers that are genuinely present in both lists.
func collapse(hits []types.RetrievalHit, norm []float64) []collapsed {
	out := make([]collapsed, 0, len(hits))
	idx := make(map[string]int, len(hits))
	for i, h := range hits {
		if j, ok := idx[h.ID]; ok {
			if norm[i] > out[j].score {
				out[j].score = norm[i]
			}
			continue
		}
		idx[h.ID] = len(out)
		out = append(out, collapsed{id: h.ID, score: norm[i], snippet: h.Snippet, provenance: h.Provenance})
	}
	return out
}

// Fuse merges the two hit lists, deduplicating by identifier, and
// returns at most limit entries ranked by combined score. Empty inputs
// produce an empty result, not an error: "no evidence" is a valid
// outcome.
func (f *Fuser) Fuse(vector, graph []types.RetrievalHit, limit int) []types.FusedHit {
	vectorBest := collapse(vector, normalize(vector))
	graphBest := collapse(graph, normalize(graph))

	merged := make(map[string]*fused)
	order := make([]string, 0, len(vectorBest)+len(graphBest))

	for _, c := range vectorBest {
		entry := &fused{hasVector: true, hit: types.FusedHit{
			ID:         c.id,
			Score:      c.score,
			Snippet:    c.snippet,
			Provenance: c.provenance,
			Sources:    []types.Source{types.SourceVector},
		}}
		merged[c.id] = entry
		order = append(order, c.id)
	}

	for _, c := range graphBest {
		entry, ok := merged[c.id]
		if !ok {
			merged[c.id] = &fused{hasGraph: true, hit: types.FusedHit{
				ID:         c.id,
				Score:      c.score,
				Snippet:    c.snippet,
				Provenance: c.provenance,
				Sources:    []types.Source{types.SourceGraph},
			}}
			order = append(order, c.id)
			continue
		}

		// Present in both sources: combine confidence with the
		// configured weights, keep the vector snippet (passage text)
		// and the graph provenance (entity naming).
		entry.hasGraph = true
		entry.hit.Score = f.VectorWeight*entry.hit.Score + f.GraphWeight*c.score
		entry.hit.Sources = append(entry.hit.Sources, types.SourceGraph)
		if entry.hit.Snippet == "" {
			entry.hit.Snippet = c.snippet
		}
		if c.provenance != "" {
			entry.hit.Provenance = c.provenance
		}
	}

	results := make([]types.FusedHit, 0, len(order))
	byID := make(map[string]*fused, len(merged))
	for _, id := range order {
		results = append(results, merged[id].hit)
		byID[id] = merged[id]
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Deterministic tie-break: graph outranks vector, then
		// identifier lexical order.
		gi, gj := byID[results[i].ID].hasGraph, byID[results[j].ID].hasGraph
		if gi != gj {
			return gi
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// normalize rescales one source's scores to [0,1] with min-max. A single
// hit, or a list with no spread, is fixed at 1.0.
func normalize(hits []types.RetrievalHit) []float64 {
	norm := make([]float64, len(hits))
	if len(hits) == 0 {
		return norm
	}
	if len(hits) == 1 {
		norm[0] = 1.0
		return norm
	}

	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}

	if max == min {
		for i := range norm {
			norm[i] = 1.0
		}
		return norm
	}

	for i, h := range hits {
		norm[i] = (h.Score - min) / (max - min)
	}
	return norm
}
