// internal/state/file.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/graphrag/internal/types"
)

// FileStore is a JSON-file-backed ConversationStore. The session index
// lives in sessions/sessions.json and each session's messages in an
// append-only sessions/<sessionID>/messages.jsonl log.
type FileStore struct {
	root  string
	mu    sync.RWMutex
	locks map[types.SessionID]*sync.Mutex
}

// NewFileStore creates a file-backed store rooted at the given directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.root, "sessions", "sessions.json")
}

func (s *FileStore) messagesPath(id types.SessionID) string {
	return filepath.Join(s.root, "sessions", string(id), "messages.jsonl")
}

// sessionLock returns the per-session mutex, creating one on first use.
func (s *FileStore) sessionLock(id types.SessionID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.locks[id] = lock
	return lock
}

// loadIndex reads sessions.json into a map keyed by session id.
func (s *FileStore) loadIndex() (map[types.SessionID]*types.Session, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.SessionID]*types.Session), nil
		}
		return nil, fmt.Errorf("read session index: %w", err)
	}

	var sessions []*types.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("unmarshal session index: %w", err)
	}

	index := make(map[types.SessionID]*types.Session, len(sessions))
	for _, sess := range sessions {
		index[sess.ID] = sess
	}
	return index, nil
}

// saveIndex marshals the index and writes it atomically.
func (s *FileStore) saveIndex(index map[types.SessionID]*types.Session) error {
	sessions := make([]*types.Session, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.indexPath()), 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

// ResolveOrCreate returns the session with the given id, creating a new
// one when the id is empty or does not resolve. An unresolvable id is
// never an error.
func (s *FileStore) ResolveOrCreate(_ context.Context, id types.SessionID, userID string, metadata map[string]any) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	if id != "" {
		if existing, ok := index[id]; ok {
			existing.LastActiveAt = time.Now()
			if err := s.saveIndex(index); err != nil {
				return nil, err
			}
			return existing, nil
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
	index[session.ID] = session

	if err := s.saveIndex(index); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(s.root, "sessions", string(session.ID)), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	return session, nil
}

// Get returns the session with the given id, or types.ErrNotFound.
func (s *FileStore) Get(_ context.Context, id types.SessionID) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	if sess, ok := index[id]; ok {
		return sess, nil
	}
	return nil, fmt.Errorf("session %s: %w", id, types.ErrNotFound)
}

// ListSessions returns all known sessions.
func (s *FileStore) ListSessions(_ context.Context) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	sessions := make([]*types.Session, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// countMessages counts lines in the message log. Caller must hold the
// session lock.
func (s *FileStore) countMessages(id types.SessionID) (int64, error) {
	f, err := os.Open(s.messagesPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan messages file: %w", err)
	}
	return count, nil
}

// AppendMessage appends a message to the session log with the next
// gap-free sequence number.
func (s *FileStore) AppendMessage(ctx context.Context, sessionID types.SessionID, role types.Role, content string, metadata map[string]any) (*types.Message, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.messagesPath(sessionID)), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	existing, err := s.countMessages(sessionID)
	if err != nil {
		return nil, err
	}

	msg := &types.Message{
		ID:        types.NewMessageID(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		Seq:       existing + 1,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	f, err := os.OpenFile(s.messagesPath(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return nil, fmt.Errorf("write message: %w", err)
	}

	s.touch(sessionID)

	return msg, nil
}

// touch updates the session's last-active timestamp, best effort.
func (s *FileStore) touch(id types.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return
	}
	if sess, ok := index[id]; ok {
		sess.LastActiveAt = time.Now()
		s.saveIndex(index)
	}
}

// RecentMessages returns up to limit most recent messages, oldest first.
func (s *FileStore) RecentMessages(ctx context.Context, sessionID types.SessionID, limit int) ([]*types.Message, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(s.messagesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open messages file: %w", err)
	}
	defer f.Close()

	var messages []*types.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var msg types.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan messages file: %w", err)
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	return messages, nil
}

// Ping reports whether the store's root directory is accessible.
func (s *FileStore) Ping(_ context.Context) error {
	_, err := os.Stat(s.root)
	return err
}
