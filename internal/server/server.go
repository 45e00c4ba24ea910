// Package server exposes the HTTP API: native chat and streaming
// endpoints, an OpenAI-compatible surface, direct search endpoints, and
// session/document/health introspection.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/user/graphrag/internal/gateway"
	"github.com/user/graphrag/internal/recovery"
	"github.com/user/graphrag/internal/runtime"
	"github.com/user/graphrag/internal/runtime/tools"
	"github.com/user/graphrag/internal/types"
)

// Pinger reports whether a backing component is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles everything the HTTP surface needs. Nothing is global;
// each request reaches its dependencies through the Server value.
type Deps struct {
	Gateway *gateway.Gateway
	Runner  *runtime.Runner
	Store   types.ConversationStore
	Vector  types.VectorSearcher
	Graph   types.GraphSearcher
	Docs    types.DocumentLister
	Hybrid  *tools.HybridSearch
	Model   string
	Pingers map[string]Pinger
}

// Server is the HTTP handler for the agent API.
type Server struct {
	deps   Deps
	router *mux.Router
}

// New creates a Server and registers all routes.
func New(deps Deps) *Server {
	s := &Server{deps: deps, router: mux.NewRouter()}

	s.router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	s.router.HandleFunc("/chat/stream", s.handleChatStream).Methods(http.MethodPost)

	s.router.HandleFunc("/v1/chat/completions", s.handleCompletions).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/models", s.handleModels).Methods(http.MethodGet)

	s.router.HandleFunc("/search/vector", s.handleVectorSearch).Methods(http.MethodPost)
	s.router.HandleFunc("/search/graph", s.handleGraphSearch).Methods(http.MethodPost)
	s.router.HandleFunc("/search/hybrid", s.handleHybridSearch).Methods(http.MethodPost)

	s.router.HandleFunc("/documents", s.handleDocuments).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{id}", s.handleSession).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	return s
}

// ServeHTTP delegates to the internal router, implementing
// http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, errType string) {
	writeJSON(w, status, errorResponse{Error: msg, ErrorType: errType})
}

// writeFault maps a classified error to an HTTP response. Unclassified
// faults get a 500 carrying a request id for correlation with logs.
func writeFault(w http.ResponseWriter, err error) {
	kind := recovery.Classify(err)
	switch kind {
	case recovery.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error(), "validation")
	case recovery.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error(), "not_found")
	default:
		reqID := types.NewRequestID()
		slog.Error("request failed", "request_id", reqID, "kind", kind.String(), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     "internal server error",
			ErrorType: "internal",
			RequestID: reqID,
		})
	}
}
