package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"
)

// Message directions.
const (
	DirectionUser      = "user"
	DirectionAssistant = "assistant"
)

// Session tracks one continuity window of the assistant, keyed by the relay's
// session key.
type Session struct {
	SessionKey   string
	UserID       int64
	StartedAt    time.Time
	LastActivity time.Time
	MessageCount int
	IsActive     bool
}

// Message is one relayed message, in either direction.
type Message struct {
	ID            int64
	SessionKey    string
	CreatedAt     time.Time
	UserID        int64
	Username      sql.NullString
	Direction     string
	Content       string
	CharCount     int
	TokenEstimate int
	Model         sql.NullString
	ErrorOccurred bool
	TraceID       sql.NullString
}

// estimateTokens is a rough heuristic: four characters per token. Good enough
// for the /stats display; nothing downstream depends on accuracy.
func estimateTokens(charCount int) int {
	return charCount / 4
}

// LogMessage records one message, creating the session row on first use and
// bumping its activity. CharCount, TokenEstimate, CreatedAt and ID are filled
// in on msg.
func (s *Store) LogMessage(ctx context.Context, msg *Message) error {
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE session_key = ?", msg.SessionKey,
	).Scan(&exists)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to check session: %w", err)
	}

	if exists == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (session_key, user_id, started_at, last_activity)
			VALUES (?, ?, ?, ?)
		`, msg.SessionKey, msg.UserID, now, now)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create session: %w", err)
		}
	}

	// A message on a deactivated session reactivates it.
	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET last_activity = ?, message_count = message_count + 1, is_active = 1
		WHERE session_key = ?
	`, now, msg.SessionKey)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update session activity: %w", err)
	}

	msg.CreatedAt = now
	msg.CharCount = utf8.RuneCountInString(msg.Content)
	msg.TokenEstimate = estimateTokens(msg.CharCount)

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_key, created_at, user_id, username, direction,
		                      content, char_count, token_estimate, model, error_occurred, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.SessionKey, msg.CreatedAt, msg.UserID, msg.Username, msg.Direction,
		msg.Content, msg.CharCount, msg.TokenEstimate, msg.Model, msg.ErrorOccurred, msg.TraceID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to get message id: %w", err)
	}
	msg.ID = id

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest messages across all sessions, newest
// first. Content is truncated to a 100-character preview; Model, ErrorOccurred
// and TraceID are not populated.
func (s *Store) RecentMessages(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_key, created_at, user_id, username, direction,
		       substr(content, 1, 100), char_count, token_estimate
		FROM messages
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		err := rows.Scan(
			&msg.ID, &msg.SessionKey, &msg.CreatedAt, &msg.UserID, &msg.Username,
			&msg.Direction, &msg.Content, &msg.CharCount, &msg.TokenEstimate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// SessionMessages returns a session's messages in chronological order.
// limit <= 0 returns all of them.
func (s *Store) SessionMessages(ctx context.Context, sessionKey string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_key, created_at, user_id, username, direction,
		       content, char_count, token_estimate, model, error_occurred, trace_id
		FROM messages
		WHERE session_key = ?
		ORDER BY id ASC
		LIMIT ?
	`, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		err := rows.Scan(
			&msg.ID, &msg.SessionKey, &msg.CreatedAt, &msg.UserID, &msg.Username,
			&msg.Direction, &msg.Content, &msg.CharCount, &msg.TokenEstimate,
			&msg.Model, &msg.ErrorOccurred, &msg.TraceID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// GetSession retrieves a session by key. Returns (nil, nil) when the key has
// never been used; that is the normal state before the first message.
func (s *Store) GetSession(ctx context.Context, sessionKey string) (*Session, error) {
	sess := &Session{}
	err := s.db.QueryRowContext(ctx, `
		SELECT session_key, user_id, started_at, last_activity, message_count, is_active
		FROM sessions
		WHERE session_key = ?
	`, sessionKey).Scan(
		&sess.SessionKey, &sess.UserID, &sess.StartedAt, &sess.LastActivity,
		&sess.MessageCount, &sess.IsActive,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// Stats summarizes history usage for the /stats command.
type Stats struct {
	TotalMessages  int
	TotalSessions  int
	ActiveSessions int
	TokenEstimate  int64
	LatestActivity sql.NullTime
}

// GetStats aggregates usage statistics across all sessions.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages",
	).Scan(&stats.TotalMessages); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions",
	).Scan(&stats.TotalSessions); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE is_active = 1",
	).Scan(&stats.ActiveSessions); err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(token_estimate), 0) FROM messages",
	).Scan(&stats.TokenEstimate); err != nil {
		return nil, fmt.Errorf("failed to sum token estimates: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT MAX(created_at) FROM messages",
	).Scan(&stats.LatestActivity); err != nil {
		return nil, fmt.Errorf("failed to get latest activity: %w", err)
	}

	return stats, nil
}

// DeactivateStaleSessions marks sessions idle for longer than olderThan as
// inactive and returns how many were flipped.
func (s *Store) DeactivateStaleSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET is_active = 0
		WHERE is_active = 1 AND last_activity < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate stale sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return count, nil
}

// MessageCount returns the total number of stored messages.
func (s *Store) MessageCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
