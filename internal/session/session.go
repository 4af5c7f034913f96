// Package session implements the Session Store: server-side conversation
// history keyed by session ID, so agents can send only a new user message
// and rely on the gateway to inject prior context. Grounded on
// original_source/agent/sessions.py's SessionManager.
package session

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/gonka-ai/inference-gateway/internal/cache"
	"github.com/gonka-ai/inference-gateway/internal/wire"
)

// Session is one conversation's server-side state.
type Session struct {
	ID           string
	PrincipalKey string
	Messages     []wire.Message
	CreatedAt    time.Time
	LastAccessed time.Time
}

func (s *Session) touch() { s.LastAccessed = time.Now() }

func (s *Session) idle() time.Duration { return time.Since(s.LastAccessed) }

// Store is a mutex-guarded map of sessions with TTL eviction on read and
// bounded, system-message-preserving history truncation on write. An
// optional cache.Cache backing (Redis, when GONKA_REDIS_ADDR is set)
// mirrors each session so it survives a gateway restart or can be read by
// another instance; the map remains authoritative for single-instance
// correctness.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	ttl         time.Duration
	maxHistory  int
	backing     cache.Cache // nil unless a distributed backing was configured
}

// New creates a Session Store with the given TTL and max-history bound.
// backing may be nil.
func New(ttl time.Duration, maxHistory int, backing cache.Cache) *Store {
	return &Store{
		sessions:   make(map[string]*Session),
		ttl:        ttl,
		maxHistory: maxHistory,
		backing:    backing,
	}
}

// GetOrCreate returns the existing session for id, or creates one owned by
// principalKey.
func (s *Store) GetOrCreate(id, principalKey string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = s.loadFromBacking(id, principalKey)
	}
	if sess == nil {
		now := time.Now()
		sess = &Session{ID: id, PrincipalKey: principalKey, CreatedAt: now, LastAccessed: now}
		s.sessions[id] = sess
	}
	sess.touch()
	return sess
}

// Get returns the session for id if it exists and has not expired.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if sess.idle() >= s.ttl {
		delete(s.sessions, id)
		return nil, false
	}
	sess.touch()
	return sess, true
}

// History returns a copy of id's message history, or nil if the session
// doesn't exist or has expired.
func (s *Store) History(id string) []wire.Message {
	sess, ok := s.Get(id)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Message, len(sess.Messages))
	copy(out, sess.Messages)
	return out
}

// Append adds messages to id's history, truncating to maxHistory while
// preserving every system message, matching sessions.py's append_messages.
func (s *Store) Append(id string, messages []wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}

	sess.Messages = append(sess.Messages, messages...)
	sess.touch()
	sess.Messages = truncate(sess.Messages, s.maxHistory)
	s.saveToBacking(sess)
}

func truncate(messages []wire.Message, maxHistory int) []wire.Message {
	if len(messages) <= maxHistory {
		return messages
	}

	var system, rest []wire.Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	keep := maxHistory - len(system)
	if keep < 0 {
		keep = 0
	}
	if keep > len(rest) {
		keep = len(rest)
	}
	return append(system, rest[len(rest)-keep:]...)
}

// InjectHistory merges a session's stored history with the incoming
// request's messages: the request's own system message (if any) wins, the
// session's non-system history is prepended, and the request's new
// (non-system) messages follow. Matches sessions.py's inject_history.
func (s *Store) InjectHistory(id string, requestMessages []wire.Message) []wire.Message {
	history := s.History(id)
	if len(history) == 0 {
		return requestMessages
	}

	var systemMsgs, newMsgs []wire.Message
	for _, m := range requestMessages {
		if m.Role == "system" {
			systemMsgs = append(systemMsgs, m)
		} else {
			newMsgs = append(newMsgs, m)
		}
	}

	var historyMsgs []wire.Message
	for _, m := range history {
		if m.Role != "system" {
			historyMsgs = append(historyMsgs, m)
		}
	}

	merged := make([]wire.Message, 0, len(systemMsgs)+len(historyMsgs)+len(newMsgs))
	merged = append(merged, systemMsgs...)
	merged = append(merged, historyMsgs...)
	merged = append(merged, newMsgs...)
	return merged
}

// Delete removes a session, reporting whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	if s.backing != nil {
		s.backing.Delete(backingKey(id))
	}
	return true
}

// CleanupExpired removes every session whose idle time meets or exceeds
// the TTL. Returns the number removed. Intended to be called periodically
// by a janitor goroutine (see janitor.go).
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.idle() >= s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// ActiveCount reports the number of non-expired sessions.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.idle() < s.ttl {
			n++
		}
	}
	return n
}

type backingRecord struct {
	PrincipalKey string         `json:"principal_key"`
	Messages     []wire.Message `json:"messages"`
	CreatedAt    time.Time      `json:"created_at"`
}

func backingKey(id string) string { return "session:" + id }

func (s *Store) saveToBacking(sess *Session) {
	if s.backing == nil {
		return
	}
	rec := backingRecord{PrincipalKey: sess.PrincipalKey, Messages: sess.Messages, CreatedAt: sess.CreatedAt}
	buf, err := json.Marshal(rec)
	if err != nil {
		return
	}
	s.backing.Set(backingKey(sess.ID), buf, s.ttl)
}

// loadFromBacking attempts to recover a session the in-memory map has
// forgotten (after a restart) from the distributed backing. Caller holds
// s.mu.
func (s *Store) loadFromBacking(id, principalKey string) *Session {
	if s.backing == nil {
		return nil
	}
	raw, ok := s.backing.Get(backingKey(id))
	if !ok {
		return nil
	}
	// RedisCache stores values as JSON, so the []byte written by
	// saveToBacking comes back as a base64-encoded string.
	var buf []byte
	switch v := raw.(type) {
	case []byte:
		buf = v
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil
		}
		buf = decoded
	default:
		return nil
	}
	var rec backingRecord
	if err := json.Unmarshal(buf, &rec); err != nil {
		return nil
	}
	now := time.Now()
	sess := &Session{
		ID:           id,
		PrincipalKey: principalKey,
		Messages:     rec.Messages,
		CreatedAt:    rec.CreatedAt,
		LastAccessed: now,
	}
	s.sessions[id] = sess
	return sess
}
