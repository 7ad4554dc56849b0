package archive

import (
	"context"
	"path/filepath"
	"testing"
)

func TestStore_RecordExchange(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "transcripts.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	if err := s.RecordExchange(ctx, "u1", "Hello", "Hi there"); err != nil {
		t.Fatalf("RecordExchange: %v", err)
	}
	if err := s.RecordExchange(ctx, "u1", "What did I just say?", "You said hello"); err != nil {
		t.Fatalf("RecordExchange second: %v", err)
	}

	msgs, err := s.Messages(ctx, "u1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("len(msgs) = %d, want 4", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "Hello" {
		t.Fatalf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Hi there" {
		t.Fatalf("msgs[1] = %+v", msgs[1])
	}
	if msgs[3].Content != "You said hello" {
		t.Fatalf("msgs[3] = %+v", msgs[3])
	}

	sessions, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	if sessions[0].SessionID != "u1" || sessions[0].MessageCount != 4 {
		t.Fatalf("summary = %+v", sessions[0])
	}
}

func TestStore_SessionIsolation(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "transcripts.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	if err := s.RecordExchange(ctx, "a", "ping", "pong"); err != nil {
		t.Fatalf("RecordExchange a: %v", err)
	}
	if err := s.RecordExchange(ctx, "b", "marco", "polo"); err != nil {
		t.Fatalf("RecordExchange b: %v", err)
	}

	msgsA, err := s.Messages(ctx, "a")
	if err != nil {
		t.Fatalf("Messages a: %v", err)
	}
	for _, m := range msgsA {
		if m.SessionID != "a" {
			t.Fatalf("session a transcript contains %+v", m)
		}
		if m.Content == "marco" || m.Content == "polo" {
			t.Fatalf("session b content leaked into a: %+v", m)
		}
	}
}

func TestStore_RejectsBlankSessionID(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "transcripts.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.RecordExchange(context.Background(), "  ", "x", "y"); err == nil {
		t.Fatalf("RecordExchange: want error for blank session id")
	}
}
