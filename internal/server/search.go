package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/user/graphrag/internal/types"
)

// searchRequest is the JSON body for the POST /search/* endpoints.
type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchResponse struct {
	Results     any   `json:"results"`
	Total       int   `json:"total"`
	QueryTimeMs int64 `json:"query_time_ms"`
}

func (s *Server) decodeSearch(w http.ResponseWriter, r *http.Request) (*searchRequest, bool) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "validation")
		return nil, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required", "validation")
		return nil, false
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	return &req, true
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}
	start := time.Now()
	hits, err := s.deps.Vector.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeFault(w, err)
		return
	}
	if hits == nil {
		hits = []types.RetrievalHit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results:     hits,
		Total:       len(hits),
		QueryTimeMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleGraphSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}
	start := time.Now()
	hits, err := s.deps.Graph.Search(r.Context(), req.Query)
	if err != nil {
		writeFault(w, err)
		return
	}
	if hits == nil {
		hits = []types.RetrievalHit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results:     hits,
		Total:       len(hits),
		QueryTimeMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}
	start := time.Now()
	fused, err := s.deps.Hybrid.Query(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeFault(w, err)
		return
	}
	if fused == nil {
		fused = []types.FusedHit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results:     fused,
		Total:       len(fused),
		QueryTimeMs: time.Since(start).Milliseconds(),
	})
}

type documentsResponse struct {
	Documents []types.DocumentInfo `json:"documents"`
	Total     int                  `json:"total"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	if q := r.URL.Query().Get("offset"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n >= 0 {
			offset = n
		}
	}

	docs, err := s.deps.Docs.ListDocuments(r.Context(), limit, offset)
	if err != nil {
		writeFault(w, err)
		return
	}
	if docs == nil {
		docs = []types.DocumentInfo{}
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: docs, Total: len(docs)})
}
