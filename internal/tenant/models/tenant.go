package models

import (
	"slices"
	"strings"
	"time"

	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// Tenant is an isolated organization. Every user, session, and invitation is
// scoped to exactly one tenant.
type Tenant struct {
	ID   id.TenantID
	Slug string
	Name string

	// Domains drives federated auto-join only; basic-auth registration
	// never consults it.
	Domains []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewTenant(tenantID id.TenantID, slug, name string, domains []string, now time.Time) (*Tenant, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant name must be 128 characters or less")
	}
	if slug == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant slug cannot be empty")
	}
	return &Tenant{
		ID:        tenantID,
		Slug:      slug,
		Name:      name,
		Domains:   normalizeDomains(domains),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// OwnsDomain reports whether the tenant claims the given email domain.
func (t *Tenant) OwnsDomain(domain string) bool {
	return slices.Contains(t.Domains, strings.ToLower(domain))
}

// AddDomain appends a domain to the tenant's set if not already present.
func (t *Tenant) AddDomain(domain string, now time.Time) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || t.OwnsDomain(domain) {
		return
	}
	t.Domains = append(t.Domains, domain)
	t.UpdatedAt = now
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}
