package session

import (
	"context"
	"errors"
	"sync"

	"tg_payment_link_bot/internal/domain"
)

// MemoryStore keeps sessions in process memory. This is the default backing;
// state does not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionKey]domain.Session
}

// NewMemoryStore constructs an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[domain.SessionKey]domain.Session),
	}
}

// Get returns the session for the key and whether one exists.
func (s *MemoryStore) Get(_ context.Context, key domain.SessionKey) (domain.Session, bool, error) {
	if s == nil {
		return domain.Session{}, false, errors.New("memory store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[key]
	return session, ok, nil
}

// Put stores the session, replacing any previous state for its key.
func (s *MemoryStore) Put(_ context.Context, session domain.Session) error {
	if s == nil {
		return errors.New("memory store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.Key()] = session
	return nil
}

// Clear removes the session for the key.
func (s *MemoryStore) Clear(_ context.Context, key domain.SessionKey) error {
	if s == nil {
		return errors.New("memory store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	return nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
