// internal/types/interfaces.go
package types

import (
	"context"
	"errors"
)

// ErrNotFound is returned by read-only lookups when a session does not
// resolve. It is never returned by ResolveOrCreate.
var ErrNotFound = errors.New("not found")

// ConversationStore persists sessions and their messages.
type ConversationStore interface {
	// ResolveOrCreate returns the session with the given id, creating a
	// fresh one (ignoring the supplied id) when it does not resolve. An
	// empty id always creates a new session.
	ResolveOrCreate(ctx context.Context, id SessionID, userID string, metadata map[string]any) (*Session, error)

	// Get returns the session with the given id, or ErrNotFound.
	Get(ctx context.Context, id SessionID) (*Session, error)

	// AppendMessage appends a message to the session, assigning the next
	// sequence number.
	AppendMessage(ctx context.Context, sessionID SessionID, role Role, content string, metadata map[string]any) (*Message, error)

	// RecentMessages returns up to limit most recent messages, oldest
	// first. Returns ErrNotFound when the session does not resolve.
	RecentMessages(ctx context.Context, sessionID SessionID, limit int) ([]*Message, error)

	// ListSessions returns all known sessions.
	ListSessions(ctx context.Context) ([]*Session, error)
}

// VectorSearcher performs similarity search over indexed chunks.
type VectorSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]RetrievalHit, error)
}

// GraphSearcher performs knowledge-graph search.
type GraphSearcher interface {
	Search(ctx context.Context, query string) ([]RetrievalHit, error)
}

// DocumentLister lists indexed documents.
type DocumentLister interface {
	ListDocuments(ctx context.Context, limit, offset int) ([]DocumentInfo, error)
}
