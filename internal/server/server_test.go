package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ctxengine "github.com/user/graphrag/internal/context"
	"github.com/user/graphrag/internal/gateway"
	"github.com/user/graphrag/internal/retrieval"
	"github.com/user/graphrag/internal/runtime"
	"github.com/user/graphrag/internal/runtime/tools"
	"github.com/user/graphrag/internal/state"
	"github.com/user/graphrag/internal/types"
	"github.com/user/graphrag/pkg/llm"
)

// fakeProvider answers every completion with a fixed string and streams
// it as a pair of deltas.
type fakeProvider struct {
	answer string
}

func (f *fakeProvider) Complete(_ context.Context, _ string, _ []llm.Tool) (*llm.Response, error) {
	return &llm.Response{Content: f.answer}, nil
}

func (f *fakeProvider) Stream(_ context.Context, _ string, _ []llm.Tool) (<-chan llm.Delta, error) {
	ch := make(chan llm.Delta, 2)
	half := len(f.answer) / 2
	ch <- llm.Delta{Content: f.answer[:half]}
	ch <- llm.Delta{Content: f.answer[half:]}
	close(ch)
	return ch, nil
}

type stubVector struct {
	hits []types.RetrievalHit
	err  error
}

func (s *stubVector) Search(_ context.Context, _ string, _ int) ([]types.RetrievalHit, error) {
	return s.hits, s.err
}

type stubGraph struct {
	hits []types.RetrievalHit
	err  error
}

func (s *stubGraph) Search(_ context.Context, _ string) ([]types.RetrievalHit, error) {
	return s.hits, s.err
}

type stubDocs struct {
	docs []types.DocumentInfo
}

func (s *stubDocs) ListDocuments(_ context.Context, limit, offset int) ([]types.DocumentInfo, error) {
	if offset >= len(s.docs) {
		return nil, nil
	}
	docs := s.docs[offset:]
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(_ context.Context) error { return s.err }

func setupServer(t *testing.T, deps Deps) (*Server, *state.FileStore) {
	t.Helper()
	store := state.NewFileStore(t.TempDir())
	assembler, err := ctxengine.New(store, "gpt-4", 10, 128000, 4096)
	if err != nil {
		t.Fatal(err)
	}
	provider := &fakeProvider{answer: "The answer is 42."}
	runner := runtime.New(provider, assembler, store, runtime.NewRegistry(), 5)

	deps.Gateway = gateway.New(runner, 2, false)
	deps.Runner = runner
	deps.Store = store
	if deps.Vector == nil {
		deps.Vector = &stubVector{}
	}
	if deps.Graph == nil {
		deps.Graph = &stubGraph{}
	}
	if deps.Docs == nil {
		deps.Docs = &stubDocs{}
	}
	if deps.Hybrid == nil {
		vec, _ := deps.Vector.(*stubVector)
		gr, _ := deps.Graph.(*stubGraph)
		deps.Hybrid = tools.NewHybridSearch(vec, gr, retrieval.NewFuser(0.5, 0.5), 10)
	}
	if deps.Model == "" {
		deps.Model = "gpt-4o-mini"
	}
	return New(deps), store
}

func postJSON(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestChatMissingMessage(t *testing.T) {
	srv, _ := setupServer(t, Deps{})

	w := postJSON(t, srv, "/chat", `{"message":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "message is required" {
		t.Errorf("expected 'message is required', got %q", resp.Error)
	}
	if resp.ErrorType != "validation" {
		t.Errorf("expected error_type validation, got %q", resp.ErrorType)
	}
}

func TestChatInvalidJSON(t *testing.T) {
	srv, _ := setupServer(t, Deps{})

	w := postJSON(t, srv, "/chat", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChatThenSessionLookup(t *testing.T) {
	srv, _ := setupServer(t, Deps{})

	w := postJSON(t, srv, "/chat", `{"message":"what is the meaning of life?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message != "The answer is 42." {
		t.Errorf("unexpected answer %q", resp.Message)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if resp.ToolsUsed == nil {
		t.Error("tools_used must be present even when empty")
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+resp.SessionID, nil)
	lookup := httptest.NewRecorder()
	srv.ServeHTTP(lookup, req)
	if lookup.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", lookup.Code)
	}

	var sess sessionResponse
	if err := json.NewDecoder(lookup.Body).Decode(&sess); err != nil {
		t.Fatal(err)
	}
	if sess.Session == nil || string(sess.Session.ID) != resp.SessionID {
		t.Error("session lookup did not return the chat session")
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Role != types.RoleUser || sess.Messages[1].Role != types.RoleAssistant {
		t.Error("expected user then assistant message")
	}
}

func TestSessionNotFound(t *testing.T) {
	srv, _ := setupServer(t, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/sessions/no-such-session", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestChatStreamEvents(t *testing.T) {
	srv, _ := setupServer(t, Deps{})

	w := postJSON(t, srv, "/chat/stream", `{"message":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	frames := parseSSE(t, w.Body.String())
	if len(frames) < 3 {
		t.Fatalf("expected at least 3 frames, got %d", len(frames))
	}
	if frames[0]["type"] != "session" {
		t.Errorf("first frame must be session, got %v", frames[0]["type"])
	}
	if frames[len(frames)-1]["type"] != "end" {
		t.Errorf("last frame must be end, got %v", frames[len(frames)-1]["type"])
	}

	var text strings.Builder
	for _, f := range frames {
		if f["type"] == "text" {
			text.WriteString(f["content"].(string))
		}
	}
	if text.String() != "The answer is 42." {
		t.Errorf("concatenated deltas = %q", text.String())
	}
}

// parseSSE decodes the JSON payload of each data frame. The compat
// sentinel "[DONE]" is returned as {"done": true}.
func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		payload := strings.TrimPrefix(block, "data: ")
		if payload == "[DONE]" {
			frames = append(frames, map[string]any{"done": true})
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			t.Fatalf("bad frame %q: %v", payload, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestCompletionsNoUserMessage(t *testing.T) {
	srv, store := setupServer(t, Deps{})

	w := postJSON(t, srv, "/v1/chat/completions", `{"messages":[{"role":"system","content":"be brief"}]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	// A rejected request must not create a session.
	sessions, err := store.ListSessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no sessions, got %d", len(sessions))
	}
}

func TestCompletionsNonStreaming(t *testing.T) {
	srv, _ := setupServer(t, Deps{})

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`
	w := postJSON(t, srv, "/v1/chat/completions", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["object"] != "chat.completion" {
		t.Errorf("expected chat.completion, got %v", resp["object"])
	}
	choices := resp["choices"].([]any)
	msg := choices[0].(map[string]any)["message"].(map[string]any)
	if msg["content"] != "The answer is 42." {
		t.Errorf("unexpected content %v", msg["content"])
	}
}

func TestCompletionsStreaming(t *testing.T) {
	srv, _ := setupServer(t, Deps{})

	body := `{"model":"gpt-4o-mini","stream":true,"messages":[{"role":"user","content":"hi"}]}`
	w := postJSON(t, srv, "/v1/chat/completions", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	frames := parseSSE(t, w.Body.String())
	if len(frames) < 3 {
		t.Fatalf("expected at least 3 frames, got %d", len(frames))
	}
	last := frames[len(frames)-1]
	if last["done"] != true {
		t.Errorf("last frame must be [DONE], got %v", last)
	}
	stop := frames[len(frames)-2]
	choices := stop["choices"].([]any)
	if choices[0].(map[string]any)["finish_reason"] != "stop" {
		t.Error("expected finish_reason stop before [DONE]")
	}
	for _, f := range frames[:len(frames)-1] {
		if f["object"] != "chat.completion.chunk" {
			t.Errorf("expected chunk object, got %v", f["object"])
		}
	}
}

func TestModels(t *testing.T) {
	srv, _ := setupServer(t, Deps{Model: "gpt-4o-mini"})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp modelsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Object != "list" || len(resp.Data) != 1 {
		t.Fatalf("unexpected models response %+v", resp)
	}
	if resp.Data[0].ID != "gpt-4o-mini" || resp.Data[0].OwnedBy != "graphrag" {
		t.Errorf("unexpected model entry %+v", resp.Data[0])
	}
}

func TestVectorSearch(t *testing.T) {
	vector := &stubVector{hits: []types.RetrievalHit{
		{Source: types.SourceVector, ID: "c1", Score: 0.9, Snippet: "alpha"},
		{Source: types.SourceVector, ID: "c2", Score: 0.4, Snippet: "beta"},
	}}
	srv, _ := setupServer(t, Deps{Vector: vector})

	w := postJSON(t, srv, "/search/vector", `{"query":"alpha"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Results     []types.RetrievalHit `json:"results"`
		Total       int                  `json:"total"`
		QueryTimeMs int64                `json:"query_time_ms"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", resp.Total)
	}
	if resp.Results[0].ID != "c1" {
		t.Errorf("expected c1 first, got %s", resp.Results[0].ID)
	}
	if resp.QueryTimeMs < 0 {
		t.Error("query_time_ms must be non-negative")
	}
}

func TestSearchMissingQuery(t *testing.T) {
	srv, _ := setupServer(t, Deps{})

	for _, path := range []string{"/search/vector", "/search/graph", "/search/hybrid"} {
		w := postJSON(t, srv, path, `{"query":""}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestSearchBackendFailure(t *testing.T) {
	srv, _ := setupServer(t, Deps{Vector: &stubVector{err: errors.New("connection refused")}})

	w := postJSON(t, srv, "/search/vector", `{"query":"alpha"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "internal server error" {
		t.Errorf("internal detail must not leak, got %q", resp.Error)
	}
	if resp.RequestID == "" {
		t.Error("expected a request id for correlation")
	}
}

func TestHybridSearchFusesRanks(t *testing.T) {
	vector := &stubVector{hits: []types.RetrievalHit{
		{Source: types.SourceVector, ID: "shared", Score: 0.9, Snippet: "from vector"},
		{Source: types.SourceVector, ID: "v-only", Score: 0.2, Snippet: "vector only"},
	}}
	graph := &stubGraph{hits: []types.RetrievalHit{
		{Source: types.SourceGraph, ID: "shared", Score: 3.0, Snippet: "from graph", Provenance: "Entity"},
	}}
	srv, _ := setupServer(t, Deps{Vector: vector, Graph: graph})

	w := postJSON(t, srv, "/search/hybrid", `{"query":"shared"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Results []types.FusedHit `json:"results"`
		Total   int              `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected 2 fused results, got %d", resp.Total)
	}
	if resp.Results[0].ID != "shared" {
		t.Errorf("dual-source hit must rank first, got %s", resp.Results[0].ID)
	}
	if len(resp.Results[0].Sources) != 2 {
		t.Errorf("expected both sources recorded, got %v", resp.Results[0].Sources)
	}
}

func TestDocumentsPagination(t *testing.T) {
	docs := &stubDocs{docs: []types.DocumentInfo{
		{ID: "d1", Title: "First", ChunkCount: 3},
		{ID: "d2", Title: "Second", ChunkCount: 1},
		{ID: "d3", Title: "Third", ChunkCount: 7},
	}}
	srv, _ := setupServer(t, Deps{Docs: docs})

	req := httptest.NewRequest(http.MethodGet, "/documents?limit=1&offset=1", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp documentsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Documents) != 1 {
		t.Fatalf("expected 1 document, got %d", resp.Total)
	}
	if resp.Documents[0].ID != "d2" {
		t.Errorf("expected d2, got %s", resp.Documents[0].ID)
	}
}

func TestHealthStates(t *testing.T) {
	tests := []struct {
		name       string
		pingers    map[string]Pinger
		wantStatus string
		wantCode   int
	}{
		{
			name: "all up",
			pingers: map[string]Pinger{
				"postgres": &stubPinger{},
				"neo4j":    &stubPinger{},
			},
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
		{
			name: "some down",
			pingers: map[string]Pinger{
				"postgres": &stubPinger{},
				"neo4j":    &stubPinger{err: errors.New("unreachable")},
			},
			wantStatus: "degraded",
			wantCode:   http.StatusOK,
		},
		{
			name: "all down",
			pingers: map[string]Pinger{
				"postgres": &stubPinger{err: errors.New("unreachable")},
				"neo4j":    &stubPinger{err: errors.New("unreachable")},
			},
			wantStatus: "unhealthy",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name:       "nothing registered",
			pingers:    nil,
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := setupServer(t, Deps{Pingers: tt.pingers})

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			srv.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}

			var resp healthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, resp.Status)
			}
			if len(resp.Components) != len(tt.pingers) {
				t.Errorf("expected %d components, got %d", len(tt.pingers), len(resp.Components))
			}
		})
	}
}
