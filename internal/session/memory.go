package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore is a thread-safe in-memory session store. A zero TTL disables
// expiry, matching the behavior of a bot that simply leaves abandoned
// dialogues idle until the next matching event.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a store with the given TTL (0 = never expire).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the session for the user, if present and not expired.
func (s *MemoryStore) Get(_ context.Context, userID int64) (Session, bool, error) {
	s.mu.RLock()
	entry, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok {
		return Session{}, false, nil
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, userID)
		s.mu.Unlock()
		return Session{}, false, nil
	}
	return entry.session, true, nil
}

// Put stores the session for the user, replacing any previous one.
func (s *MemoryStore) Put(_ context.Context, userID int64, sess Session) error {
	entry := memoryEntry{session: sess}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.sessions[userID] = entry
	s.mu.Unlock()
	return nil
}

// Clear removes the session for the user.
func (s *MemoryStore) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
	return nil
}
