package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"painchain/internal/identity/models"
	"painchain/internal/sentinel"
	id "painchain/pkg/domain"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the requested entity does not exist
// - Revoke operations are no-ops when nothing matches; they never error on
//   already-revoked rows, which are valid terminal states
// - Return nil for successful operations

// InMemoryStore stores sessions in memory for tests and development.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]*models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		// Session IDs are generated fresh per login; a collision means a
		// broken generator, not a retryable condition.
		return fmt.Errorf("session id collision: %w", sentinel.ErrAlreadyUsed)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[sessionID]; ok {
		cp := *session
		return &cp, nil
	}
	return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*models.Session, 0)
	for _, session := range s.sessions {
		if session.UserID == userID {
			cp := *session
			sessions = append(sessions, &cp)
		}
	}
	return sessions, nil
}

// TouchActivity advances the last-seen timestamp of a live session.
func (s *InMemoryStore) TouchActivity(_ context.Context, sessionID id.SessionID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	session.RecordActivity(now)
	return nil
}

// Revoke sets RevokedAt on a non-revoked session. No-op when the session is
// absent or already revoked, so repeated logout calls are safe.
func (s *InMemoryStore) Revoke(_ context.Context, sessionID id.SessionID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		session.Revoke(now)
	}
	return nil
}

// RevokeAllByUser revokes every non-revoked session of the user and returns
// how many it touched.
func (s *InMemoryStore) RevokeAllByUser(_ context.Context, userID id.UserID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for _, session := range s.sessions {
		if session.UserID == userID && session.Revoke(now) {
			revoked++
		}
	}
	return revoked, nil
}

// DeleteExpired removes sessions whose expiry has passed as of now. The time
// is injected for testability; a validator running concurrently treats the
// vanished row the same as an invalid session.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for sessionID, session := range s.sessions {
		if session.ExpiresAt.Before(now) {
			delete(s.sessions, sessionID)
			deleted++
		}
	}
	return deleted, nil
}
