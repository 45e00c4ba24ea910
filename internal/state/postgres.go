// internal/state/postgres.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/user/graphrag/internal/types"
)

// PostgresStore is a Postgres-backed ConversationStore.
//
// Expected schema:
//
//	CREATE TABLE sessions (
//	    id          UUID PRIMARY KEY,
//	    user_id     TEXT,
//	    metadata    JSONB NOT NULL DEFAULT '{}',
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    last_active TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE messages (
//	    id          UUID PRIMARY KEY,
//	    session_id  UUID NOT NULL REFERENCES sessions(id),
//	    role        TEXT NOT NULL,
//	    content     TEXT NOT NULL,
//	    metadata    JSONB NOT NULL DEFAULT '{}',
//	    seq         BIGINT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (session_id, seq)
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool for the given DSN and
// verifies connectivity.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ResolveOrCreate returns the session with the given id, creating a new
// one when the id is empty or does not resolve.
func (s *PostgresStore) ResolveOrCreate(ctx context.Context, id types.SessionID, userID string, metadata map[string]any) (*types.Session, error) {
	if id != "" {
		sess, err := s.Get(ctx, id)
		if err == nil {
			_, err = s.db.ExecContext(ctx, `UPDATE sessions SET last_active = now() WHERE id = $1`, string(id))
			if err != nil {
				return nil, fmt.Errorf("touch session: %w", err)
			}
			return sess, nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now()
	session := &types.Session{
		ID:           types.NewSessionID(),
		UserID:       userID,
		Metadata:     metadata,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	meta, err := json.Marshal(metadataOrEmpty(metadata))
	if err != nil {
		return nil, fmt.Errorf("marshal session metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, metadata, created_at, last_active)
		VALUES ($1, $2, $3, $4, $4)
	`, string(session.ID), session.UserID, meta, now)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return session, nil
}

// Get returns the session with the given id, or types.ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id types.SessionID) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(user_id, ''), metadata, created_at, last_active
		FROM sessions WHERE id = $1
	`, string(id))

	var sess types.Session
	var meta []byte
	if err := row.Scan(&sess.ID, &sess.UserID, &meta, &sess.CreatedAt, &sess.LastActiveAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	if err := json.Unmarshal(meta, &sess.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal session metadata: %w", err)
	}
	return &sess, nil
}

// ListSessions returns all known sessions, most recently active first.
func (s *PostgresStore) ListSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(user_id, ''), metadata, created_at, last_active
		FROM sessions ORDER BY last_active DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		var sess types.Session
		var meta []byte
		if err := rows.Scan(&sess.ID, &sess.UserID, &meta, &sess.CreatedAt, &sess.LastActiveAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal(meta, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// AppendMessage appends a message inside a transaction so the sequence
// number stays gap-free under the session's unique constraint.
func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID types.SessionID, role types.Role, content string, metadata map[string]any) (*types.Message, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	meta, err := json.Marshal(metadataOrEmpty(metadata))
	if err != nil {
		return nil, fmt.Errorf("marshal message metadata: %w", err)
	}

	msg := &types.Message{
		ID:        types.NewMessageID(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, metadata, seq, created_at)
		VALUES ($1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = $2),
			$6)
		RETURNING seq
	`, string(msg.ID), string(sessionID), string(role), content, meta, msg.CreatedAt)
	if err := row.Scan(&msg.Seq); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET last_active = now() WHERE id = $1`, string(sessionID)); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}

	return msg, nil
}

// RecentMessages returns up to limit most recent messages, oldest first.
func (s *PostgresStore) RecentMessages(ctx context.Context, sessionID types.SessionID, limit int) ([]*types.Message, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, metadata, seq, created_at
		FROM messages WHERE session_id = $1
		ORDER BY seq DESC LIMIT $2
	`, string(sessionID), limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*types.Message
	for rows.Next() {
		msg := &types.Message{SessionID: sessionID}
		var meta []byte
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &meta, &msg.Seq, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(meta, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal message metadata: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows arrive newest first; flip to oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
