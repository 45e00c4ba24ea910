// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type SessionID string
type MessageID string
type RunID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// NewRequestID returns a correlation id attached to unclassified server
// errors so callers can reference them when reporting problems.
func NewRequestID() string {
	return uuid.New().String()
}
