package claude

import (
	"strconv"
	"sync"
)

// KeyForChat returns the session key for a Telegram chat. Every caller that
// touches continuity state for a chat must derive the key here so /clear and
// the relay path always land on the same session.
func KeyForChat(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}

// Session holds the continuity state for one conversation. Reset marks the
// session so that the next Send starts a fresh assistant context instead of
// resuming; the mark is consumed by exactly one Send. Resetting twice before
// a Send is the same as resetting once.
type Session struct {
	key string

	mu           sync.Mutex
	pendingReset bool
	active       bool
}

// Key returns the conversation key this session was created for.
func (s *Session) Key() string {
	return s.key
}

// Active reports whether the session has relayed anything since the last
// reset.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Reset marks the session so the next Send skips the continue directive. The
// report says whether there was live continuity to drop; a second Reset
// before any Send returns false but is otherwise harmless.
func (s *Session) Reset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.active
	s.active = false
	s.pendingReset = true
	return had
}

// consumeReset reads and clears the pending-reset mark in one step, keeping
// the one-shot guarantee even when Sends race on the same session. Every
// consume counts as activity.
func (s *Session) consumeReset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pendingReset
	s.pendingReset = false
	s.active = true
	return pending
}

// Sessions hands out continuity state per conversation key. Keeping the
// state keyed means one conversation's /clear can never eat another
// conversation's continue.
type Sessions struct {
	mu    sync.Mutex
	byKey map[string]*Session
}

// NewSessions returns an empty session registry.
func NewSessions() *Sessions {
	return &Sessions{byKey: make(map[string]*Session)}
}

// Get returns the session for key, creating it on first use.
func (s *Sessions) Get(key string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byKey[key]
	if !ok {
		sess = &Session{key: key}
		s.byKey[key] = sess
	}
	return sess
}

// Len returns how many conversations have been seen.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}
