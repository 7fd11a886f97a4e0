package session

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateSession(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.GetOrCreateSession("abc", true)
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	if sess.ID != "abc" || !sess.Generated {
		t.Errorf("unexpected session: %+v", sess)
	}

	again, err := s.GetOrCreateSession("abc", false)
	if err != nil {
		t.Fatalf("GetOrCreateSession (2nd): %v", err)
	}
	if !again.Generated {
		t.Error("expected the original generated flag to be preserved on re-fetch")
	}
}

func TestAppendTurnThenGet(t *testing.T) {
	s := openTestStore(t)

	turn := Turn{
		Role:     "user",
		Type:     "message",
		Content:  json.RawMessage(`{"text":"hello"}`),
		Metadata: map[string]any{"k": "v"},
	}
	before := time.Now()
	appended, err := s.AppendTurn("sess1", turn)
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if appended.Timestamp.Before(before) {
		t.Error("appended timestamp should be >= call-site clock reading")
	}

	sess, err := s.Get("sess1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.History) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(sess.History))
	}
	got := sess.History[0]
	if got.Role != "user" || got.Type != "message" {
		t.Errorf("unexpected turn: %+v", got)
	}
	if string(got.Content) != `{"text":"hello"}` {
		t.Errorf("content = %s", got.Content)
	}
	if got.Metadata["k"] != "v" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestHistoryTotality(t *testing.T) {
	s := openTestStore(t)

	roles := []string{"user", "assistant", "tool", "assistant"}
	for _, r := range roles {
		if _, err := s.AppendTurn("sess2", Turn{Role: r, Content: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("AppendTurn(%s): %v", r, err)
		}
	}

	sess, err := s.Get("sess2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.History) != len(roles) {
		t.Fatalf("expected %d turns, got %d", len(roles), len(sess.History))
	}
	for i, r := range roles {
		if sess.History[i].Role != r {
			t.Errorf("turn %d role = %q, want %q", i, sess.History[i].Role, r)
		}
	}
}

func TestDeleteCascades(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.AppendTurn("sess3", Turn{Role: "user", Content: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := s.Delete("sess3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("sess3"); err == nil {
		t.Error("expected session to be gone after delete")
	}
}
