package store_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Hikyaku/internal/hikyaku/store"
)

func logTestMessage(t *testing.T, s *store.Store, sessionKey, direction, content string) *store.Message {
	t.Helper()
	msg := &store.Message{
		SessionKey: sessionKey,
		UserID:     123456789,
		Username:   sql.NullString{String: "alice", Valid: true},
		Direction:  direction,
		Content:    content,
	}
	if err := s.LogMessage(context.Background(), msg); err != nil {
		t.Fatalf("LogMessage: %v", err)
	}
	return msg
}

func TestLogMessage_CreatesSession(t *testing.T) {
	s := newTestStore(t)

	msg := logTestMessage(t, s, "telegram-bot", store.DirectionUser, "hello there")

	if msg.ID == 0 {
		t.Error("ID should be set after logging")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set after logging")
	}
	if msg.CharCount != 11 {
		t.Errorf("CharCount: got %d, want 11", msg.CharCount)
	}
	if msg.TokenEstimate != 2 {
		t.Errorf("TokenEstimate: got %d, want 2", msg.TokenEstimate)
	}

	sess, err := s.GetSession(context.Background(), "telegram-bot")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess == nil {
		t.Fatal("session should exist after first message")
	}
	if sess.MessageCount != 1 {
		t.Errorf("MessageCount: got %d, want 1", sess.MessageCount)
	}
	if !sess.IsActive {
		t.Error("session should be active")
	}
	if sess.UserID != 123456789 {
		t.Errorf("UserID: got %d, want 123456789", sess.UserID)
	}
}

func TestLogMessage_ReusesSession(t *testing.T) {
	s := newTestStore(t)

	logTestMessage(t, s, "telegram-bot", store.DirectionUser, "first")
	logTestMessage(t, s, "telegram-bot", store.DirectionAssistant, "second")
	logTestMessage(t, s, "telegram-bot", store.DirectionUser, "third")

	sess, err := s.GetSession(context.Background(), "telegram-bot")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess == nil {
		t.Fatal("session should exist")
	}
	if sess.MessageCount != 3 {
		t.Errorf("MessageCount: got %d, want 3", sess.MessageCount)
	}

	stats, err := s.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalSessions != 1 {
		t.Errorf("TotalSessions: got %d, want 1", stats.TotalSessions)
	}
}

func TestLogMessage_RejectsBadDirection(t *testing.T) {
	s := newTestStore(t)

	msg := &store.Message{
		SessionKey: "telegram-bot",
		UserID:     1,
		Direction:  "sideways",
		Content:    "nope",
	}
	if err := s.LogMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error for invalid direction, got nil")
	}
}

func TestGetSession_Missing(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.GetSession(context.Background(), "never-used")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil session, got %+v", sess)
	}
}

func TestRecentMessages(t *testing.T) {
	s := newTestStore(t)

	logTestMessage(t, s, "telegram-bot", store.DirectionUser, "question one")
	logTestMessage(t, s, "telegram-bot", store.DirectionAssistant, "answer one")
	logTestMessage(t, s, "receipt_alice", store.DirectionUser, "receipt photo")

	messages, err := s.RecentMessages(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	// Newest first, across sessions
	if messages[0].Content != "receipt photo" {
		t.Errorf("messages[0].Content: got %q, want %q", messages[0].Content, "receipt photo")
	}
	if messages[1].Content != "answer one" {
		t.Errorf("messages[1].Content: got %q, want %q", messages[1].Content, "answer one")
	}
}

func TestRecentMessages_TruncatesPreview(t *testing.T) {
	s := newTestStore(t)

	long := strings.Repeat("x", 300)
	logTestMessage(t, s, "telegram-bot", store.DirectionAssistant, long)

	messages, err := s.RecentMessages(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if len(messages[0].Content) != 100 {
		t.Errorf("preview length: got %d, want 100", len(messages[0].Content))
	}
	if messages[0].CharCount != 300 {
		t.Errorf("CharCount: got %d, want 300 (full length, not preview)", messages[0].CharCount)
	}
}

func TestSessionMessages(t *testing.T) {
	s := newTestStore(t)

	logTestMessage(t, s, "telegram-bot", store.DirectionUser, "one")
	logTestMessage(t, s, "telegram-bot", store.DirectionAssistant, "two")
	logTestMessage(t, s, "receipt_alice", store.DirectionUser, "other session")

	messages, err := s.SessionMessages(context.Background(), "telegram-bot", 0)
	if err != nil {
		t.Fatalf("SessionMessages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	// Chronological order
	if messages[0].Content != "one" || messages[1].Content != "two" {
		t.Errorf("unexpected order: %q, %q", messages[0].Content, messages[1].Content)
	}

	limited, err := s.SessionMessages(context.Background(), "telegram-bot", 1)
	if err != nil {
		t.Fatalf("SessionMessages with limit: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 message with limit=1, got %d", len(limited))
	}
}

func TestSessionMessages_CarriesModelAndError(t *testing.T) {
	s := newTestStore(t)

	msg := &store.Message{
		SessionKey:    "telegram-bot",
		UserID:        1,
		Direction:     store.DirectionAssistant,
		Content:       "reply",
		Model:         sql.NullString{String: "claude-sonnet-4", Valid: true},
		ErrorOccurred: false,
		TraceID:       sql.NullString{String: "t_abc123", Valid: true},
	}
	if err := s.LogMessage(context.Background(), msg); err != nil {
		t.Fatalf("LogMessage: %v", err)
	}

	messages, err := s.SessionMessages(context.Background(), "telegram-bot", 0)
	if err != nil {
		t.Fatalf("SessionMessages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	got := messages[0]
	if !got.Model.Valid || got.Model.String != "claude-sonnet-4" {
		t.Errorf("Model: got %+v, want claude-sonnet-4", got.Model)
	}
	if !got.TraceID.Valid || got.TraceID.String != "t_abc123" {
		t.Errorf("TraceID: got %+v, want t_abc123", got.TraceID)
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats on empty store: %v", err)
	}
	if stats.TotalMessages != 0 || stats.TotalSessions != 0 {
		t.Errorf("empty store stats: %+v", stats)
	}
	if stats.LatestActivity.Valid {
		t.Error("LatestActivity should be null on empty store")
	}

	logTestMessage(t, s, "telegram-bot", store.DirectionUser, "12345678")
	logTestMessage(t, s, "receipt_alice", store.DirectionUser, "receipt")

	stats, err = s.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalMessages != 2 {
		t.Errorf("TotalMessages: got %d, want 2", stats.TotalMessages)
	}
	if stats.TotalSessions != 2 {
		t.Errorf("TotalSessions: got %d, want 2", stats.TotalSessions)
	}
	if stats.ActiveSessions != 2 {
		t.Errorf("ActiveSessions: got %d, want 2", stats.ActiveSessions)
	}
	// "12345678" is 8 chars = 2 tokens, "receipt" is 7 chars = 1 token
	if stats.TokenEstimate != 3 {
		t.Errorf("TokenEstimate: got %d, want 3", stats.TokenEstimate)
	}
	if !stats.LatestActivity.Valid {
		t.Error("LatestActivity should be set")
	}
}

func TestDeactivateStaleSessions(t *testing.T) {
	s := newTestStore(t)

	logTestMessage(t, s, "telegram-bot", store.DirectionUser, "hello")

	// Nothing is stale yet
	count, err := s.DeactivateStaleSessions(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("DeactivateStaleSessions: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 stale sessions, got %d", count)
	}

	// With a zero threshold every session is stale
	count, err = s.DeactivateStaleSessions(context.Background(), 0)
	if err != nil {
		t.Fatalf("DeactivateStaleSessions: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 stale session, got %d", count)
	}

	sess, err := s.GetSession(context.Background(), "telegram-bot")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.IsActive {
		t.Error("session should be inactive after deactivation")
	}

	// New activity reactivates the session
	logTestMessage(t, s, "telegram-bot", store.DirectionUser, "back again")
	sess, err = s.GetSession(context.Background(), "telegram-bot")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !sess.IsActive {
		t.Error("session should be active again after new message")
	}
}

func TestMessageCount(t *testing.T) {
	s := newTestStore(t)

	count, err := s.MessageCount(context.Background())
	if err != nil {
		t.Fatalf("MessageCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 messages, got %d", count)
	}

	logTestMessage(t, s, "telegram-bot", store.DirectionUser, "one")
	logTestMessage(t, s, "telegram-bot", store.DirectionAssistant, "two")

	count, err = s.MessageCount(context.Background())
	if err != nil {
		t.Fatalf("MessageCount: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 messages, got %d", count)
	}
}
