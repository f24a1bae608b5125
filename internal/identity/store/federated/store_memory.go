package federated

import (
	"context"
	"fmt"
	"sync"

	"painchain/internal/identity/models"
	"painchain/internal/sentinel"
	id "painchain/pkg/domain"
)

type linkKey struct {
	provider id.ProviderID
	subject  string
}

// InMemoryStore keeps federated account links in memory for tests and dev.
type InMemoryStore struct {
	mu    sync.RWMutex
	links map[linkKey]*models.FederatedAccount
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{links: make(map[linkKey]*models.FederatedAccount)}
}

func (s *InMemoryStore) FindBySubject(_ context.Context, providerID id.ProviderID, subject string) (*models.FederatedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if link, ok := s.links[linkKey{providerID, subject}]; ok {
		cp := *link
		return &cp, nil
	}
	return nil, fmt.Errorf("federated account not found: %w", sentinel.ErrNotFound)
}

// Upsert creates the link on first login and refreshes claims and the
// last-used timestamp on every subsequent one.
func (s *InMemoryStore) Upsert(_ context.Context, link *models.FederatedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := linkKey{link.ProviderID, link.Subject}
	if existing, ok := s.links[key]; ok && existing.UserID != link.UserID {
		// One provider subject maps to exactly one user.
		return fmt.Errorf("federated subject already linked: %w", sentinel.ErrAlreadyUsed)
	}
	cp := *link
	s.links[key] = &cp
	return nil
}
