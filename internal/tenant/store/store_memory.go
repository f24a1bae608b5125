package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"painchain/internal/sentinel"
	"painchain/internal/tenant/models"
	id "painchain/pkg/domain"
)

// InMemoryStore stores tenants in memory for tests and development.
type InMemoryStore struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*models.Tenant
	bySlug  map[string]id.TenantID
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		tenants: make(map[id.TenantID]*models.Tenant),
		bySlug:  make(map[string]id.TenantID),
	}
}

// CreateIfSlugAvailable inserts the tenant unless its slug is taken.
// Slug uniqueness is the store's invariant; callers retry with a fresh
// uniqueness token before giving up with a conflict.
func (s *InMemoryStore) CreateIfSlugAvailable(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bySlug[tenant.Slug]; ok {
		return fmt.Errorf("slug taken: %w", sentinel.ErrAlreadyUsed)
	}
	cp := *tenant
	cp.Domains = append([]string(nil), tenant.Domains...)
	s.tenants[tenant.ID] = &cp
	s.bySlug[tenant.Slug] = tenant.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tenant, ok := s.tenants[tenantID]; ok {
		return copyTenant(tenant), nil
	}
	return nil, fmt.Errorf("tenant not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tenantID, ok := s.bySlug[slug]; ok {
		return copyTenant(s.tenants[tenantID]), nil
	}
	return nil, fmt.Errorf("tenant not found: %w", sentinel.ErrNotFound)
}

// FindByDomain returns the tenant owning the given email domain.
func (s *InMemoryStore) FindByDomain(_ context.Context, domain string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domain = strings.ToLower(domain)
	for _, tenant := range s.tenants {
		if tenant.OwnsDomain(domain) {
			return copyTenant(tenant), nil
		}
	}
	return nil, fmt.Errorf("tenant not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) Update(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tenants[tenant.ID]
	if !ok {
		return fmt.Errorf("tenant not found: %w", sentinel.ErrNotFound)
	}
	delete(s.bySlug, existing.Slug)
	cp := *tenant
	cp.Domains = append([]string(nil), tenant.Domains...)
	s.tenants[tenant.ID] = &cp
	s.bySlug[tenant.Slug] = tenant.ID
	return nil
}

func copyTenant(t *models.Tenant) *models.Tenant {
	cp := *t
	cp.Domains = append([]string(nil), t.Domains...)
	return &cp
}
