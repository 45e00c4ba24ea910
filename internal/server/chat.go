package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/user/graphrag/internal/runtime"
	"github.com/user/graphrag/internal/stream"
	"github.com/user/graphrag/internal/types"
)

// chatRequest is the JSON body for POST /chat and POST /chat/stream.
type chatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// chatResponse is the JSON body returned by POST /chat.
type chatResponse struct {
	Message   string           `json:"message"`
	SessionID string           `json:"session_id"`
	ToolsUsed []types.ToolCall `json:"tools_used"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (*chatRequest, bool) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "validation")
		return nil, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required", "validation")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	session, err := s.deps.Store.ResolveOrCreate(ctx, types.SessionID(req.SessionID), req.UserID, req.Metadata)
	if err != nil {
		writeFault(w, err)
		return
	}

	result, err := s.deps.Gateway.Execute(ctx, &runtime.Request{
		RunID:     types.NewRunID(),
		SessionID: session.ID,
		UserID:    req.UserID,
		Message:   req.Message,
		Metadata:  req.Metadata,
		Persist:   true,
	})
	if err != nil {
		writeFault(w, err)
		return
	}

	tools := result.Tools
	if tools == nil {
		tools = []types.ToolCall{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Message:   result.Answer,
		SessionID: string(session.ID),
		ToolsUsed: tools,
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	session, err := s.deps.Store.ResolveOrCreate(ctx, types.SessionID(req.SessionID), req.UserID, req.Metadata)
	if err != nil {
		writeFault(w, err)
		return
	}

	writer, err := stream.NewNativeWriter(w)
	if err != nil {
		writeFault(w, err)
		return
	}

	events := s.deps.Runner.StreamRun(ctx, &runtime.Request{
		RunID:     types.NewRunID(),
		SessionID: session.ID,
		UserID:    req.UserID,
		Message:   req.Message,
		Metadata:  req.Metadata,
		Persist:   true,
	})
	for ev := range events {
		if err := writer.Write(ev); err != nil {
			// Client is gone; cancellation propagates via r.Context.
			slog.Debug("stream write failed", "session_id", string(session.ID), "error", err)
			return
		}
	}
}
