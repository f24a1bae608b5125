package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"painchain/internal/invitation/models"
	"painchain/internal/sentinel"
	id "painchain/pkg/domain"
)

// InMemoryStore stores invitations in memory for tests and development.
type InMemoryStore struct {
	mu          sync.Mutex
	invitations map[string]*models.Invitation
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{invitations: make(map[string]*models.Invitation)}
}

func (s *InMemoryStore) Create(_ context.Context, inv *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[inv.Token]; ok {
		return fmt.Errorf("invitation token collision: %w", sentinel.ErrAlreadyUsed)
	}
	cp := *inv
	s.invitations[inv.Token] = &cp
	return nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.invitations[token]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, fmt.Errorf("invitation not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Invitation, 0)
	for _, inv := range s.invitations {
		if inv.TenantID == tenantID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Consume atomically increments the use count and records the consuming user,
// but only while the invitation is live and below its use limit. The check
// and the increment happen under one lock so two simultaneous redemptions of
// a maxUses=1 invite cannot both succeed.
func (s *InMemoryStore) Consume(_ context.Context, token string, userID id.UserID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[token]
	if !ok {
		return fmt.Errorf("invitation not found: %w", sentinel.ErrNotFound)
	}
	if inv.IsRevoked() {
		return fmt.Errorf("invitation revoked: %w", sentinel.ErrRevoked)
	}
	if inv.IsExpired(now) {
		return fmt.Errorf("invitation expired: %w", sentinel.ErrExpired)
	}
	if inv.IsExhausted() {
		return fmt.Errorf("invitation exhausted: %w", sentinel.ErrExhausted)
	}
	inv.UseCount++
	inv.UsedBy = &userID
	return nil
}

// Release returns one consumed use. Compensates a redemption whose account
// creation failed afterwards; releasing an unconsumed invitation is a no-op.
func (s *InMemoryStore) Release(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[token]
	if !ok {
		return fmt.Errorf("invitation not found: %w", sentinel.ErrNotFound)
	}
	if inv.UseCount > 0 {
		inv.UseCount--
	}
	return nil
}

// Revoke marks the invitation revoked. Idempotent: already-revoked and absent
// invitations are not errors.
func (s *InMemoryStore) Revoke(_ context.Context, token string, revokedBy id.UserID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[token]
	if !ok || inv.IsRevoked() {
		return nil
	}
	inv.RevokedAt = &now
	inv.RevokedBy = &revokedBy
	return nil
}
