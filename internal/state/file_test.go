package state

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/user/graphrag/internal/types"
)

func TestResolveOrCreateNewSession(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	session, err := store.ResolveOrCreate(ctx, "", "user1", map[string]any{"channel": "api"})
	if err != nil {
		t.Fatal(err)
	}
	if session.ID == "" {
		t.Fatal("expected a generated session id")
	}
	if session.UserID != "user1" {
		t.Errorf("expected user id carried, got %q", session.UserID)
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != session.ID {
		t.Errorf("expected lookup to return the created session")
	}
}

func TestResolveOrCreateUnknownIDCreatesFresh(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	session, err := store.ResolveOrCreate(ctx, "does-not-exist", "user1", nil)
	if err != nil {
		t.Fatalf("unknown id must never be an error, got %v", err)
	}
	if session.ID == "does-not-exist" {
		t.Error("unresolvable id must be replaced, not adopted")
	}
}

func TestResolveOrCreateExistingSession(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	created, err := store.ResolveOrCreate(ctx, "", "user1", nil)
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := store.ResolveOrCreate(ctx, created.ID, "user1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.ID != created.ID {
		t.Errorf("expected same session back, got %s and %s", created.ID, resolved.ID)
	}
}

func TestGetNotFound(t *testing.T) {
	store := NewFileStore(t.TempDir())

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendMessageGapFreeSeq(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	session, err := store.ResolveOrCreate(ctx, "", "user1", nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		msg, err := store.AppendMessage(ctx, session.ID, role, fmt.Sprintf("m%d", i), nil)
		if err != nil {
			t.Fatal(err)
		}
		if msg.Seq != int64(i+1) {
			t.Errorf("expected seq %d, got %d", i+1, msg.Seq)
		}
	}

	messages, err := store.RecentMessages(ctx, session.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	for i, m := range messages {
		if m.Seq != int64(i+1) {
			t.Errorf("expected oldest-first gap-free order, got seq %d at index %d", m.Seq, i)
		}
	}
}

func TestAppendMessageUnknownSession(t *testing.T) {
	store := NewFileStore(t.TempDir())

	_, err := store.AppendMessage(context.Background(), "missing", types.RoleUser, "hi", nil)
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentMessagesLimit(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	session, _ := store.ResolveOrCreate(ctx, "", "user1", nil)
	for i := 0; i < 10; i++ {
		if _, err := store.AppendMessage(ctx, session.ID, types.RoleUser, fmt.Sprintf("m%d", i), nil); err != nil {
			t.Fatal(err)
		}
	}

	messages, err := store.RecentMessages(ctx, session.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Content != "m7" || messages[2].Content != "m9" {
		t.Errorf("expected most recent window oldest-first, got %q..%q", messages[0].Content, messages[2].Content)
	}
}

func TestRecentMessagesNotFound(t *testing.T) {
	store := NewFileStore(t.TempDir())

	_, err := store.RecentMessages(context.Background(), "missing", 10)
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	session, _ := store.ResolveOrCreate(ctx, "", "user1", nil)
	if _, err := store.AppendMessage(ctx, session.ID, types.RoleAssistant, "done", map[string]any{
		"streamed":   true,
		"tool_calls": 2,
	}); err != nil {
		t.Fatal(err)
	}

	messages, err := store.RecentMessages(ctx, session.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	meta := messages[0].Metadata
	if meta["streamed"] != true {
		t.Errorf("expected streamed flag preserved, got %v", meta["streamed"])
	}
	if meta["tool_calls"] != float64(2) {
		t.Errorf("expected tool_calls preserved, got %v", meta["tool_calls"])
	}
}

func TestListSessions(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.ResolveOrCreate(ctx, "", fmt.Sprintf("user%d", i), nil); err != nil {
			t.Fatal(err)
		}
	}
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(sessions))
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewFileStore(dir)
	session, _ := first.ResolveOrCreate(ctx, "", "user1", nil)
	if _, err := first.AppendMessage(ctx, session.ID, types.RoleUser, "hello", nil); err != nil {
		t.Fatal(err)
	}

	second := NewFileStore(dir)
	messages, err := second.RecentMessages(ctx, session.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 1 || messages[0].Content != "hello" {
		t.Errorf("expected messages to survive reopen, got %v", messages)
	}
}
