package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/user/graphrag/internal/types"
)

type sessionResponse struct {
	Session  *types.Session   `json:"session"`
	Messages []*types.Message `json:"messages"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := types.SessionID(mux.Vars(r)["id"])
	ctx := r.Context()

	session, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found", "not_found")
			return
		}
		writeFault(w, err)
		return
	}

	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	messages, err := s.deps.Store.RecentMessages(ctx, id, limit)
	if err != nil {
		writeFault(w, err)
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}

	writeJSON(w, http.StatusOK, sessionResponse{Session: session, Messages: messages})
}
