package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/user/graphrag/internal/runtime"
	"github.com/user/graphrag/internal/stream"
	"github.com/user/graphrag/internal/types"
)

// completionsRequest is the OpenAI-compatible request body. Only the
// fields the translation layer needs are decoded; everything else is
// accepted and ignored.
type completionsRequest struct {
	Model    string               `json:"model"`
	Messages []stream.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
	User     string               `json:"user,omitempty"`
}

// lastUserMessage returns the content of the most recent user-role
// message, or "" when there is none.
func lastUserMessage(messages []stream.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var req completionsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "validation")
		return
	}

	// Reject before any session is created so a bad request leaves no
	// trace in the store.
	message := lastUserMessage(req.Messages)
	if strings.TrimSpace(message) == "" {
		writeError(w, http.StatusBadRequest, "no user message found", "validation")
		return
	}

	model := req.Model
	if model == "" {
		model = s.deps.Model
	}
	ctx := r.Context()

	// Compat clients carry the conversation themselves, so each request
	// gets a fresh session unless one is pinned via header.
	sessionID := types.SessionID(r.Header.Get("X-Session-ID"))
	session, err := s.deps.Store.ResolveOrCreate(ctx, sessionID, req.User, nil)
	if err != nil {
		writeFault(w, err)
		return
	}

	runReq := &runtime.Request{
		RunID:     types.NewRunID(),
		SessionID: session.ID,
		UserID:    req.User,
		Message:   message,
		Persist:   true,
	}

	if req.Stream {
		writer, err := stream.NewCompatWriter(w, model)
		if err != nil {
			writeFault(w, err)
			return
		}
		for ev := range s.deps.Runner.StreamRun(ctx, runReq) {
			if err := writer.Write(ev); err != nil {
				slog.Debug("compat stream write failed", "session_id", string(session.ID), "error", err)
				return
			}
		}
		return
	}

	result, err := s.deps.Gateway.Execute(ctx, runReq)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stream.NewChatCompletion(model, result.Answer))
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelsResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{
		Object: "list",
		Data: []modelEntry{{
			ID:      s.deps.Model,
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "graphrag",
		}},
	})
}
