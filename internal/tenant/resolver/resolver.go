// Package resolver decides which tenant a first-time identity joins or
// creates. It owns the three mutually exclusive resolution modes: invitation
// join, organization creation, and federated domain auto-join.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	invmodels "painchain/internal/invitation/models"
	"painchain/internal/platform/metrics"
	"painchain/internal/sentinel"
	"painchain/internal/tenant/models"
	"painchain/pkg/clock"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// TenantStore is the persistence surface the resolver needs.
// Error Contract: Find methods return sentinel.ErrNotFound when no tenant
// matches; CreateIfSlugAvailable returns sentinel.ErrAlreadyUsed on a taken slug.
type TenantStore interface {
	CreateIfSlugAvailable(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindByDomain(ctx context.Context, domain string) (*models.Tenant, error)
}

// InvitationValidator checks that a join token is still redeemable.
// Consumption happens later, atomically with user creation, in the identity
// service.
type InvitationValidator interface {
	Validate(ctx context.Context, token string) (*invmodels.Invitation, error)
}

// Input selects the resolution mode by what the caller supplies.
type Input struct {
	InvitationToken  string
	OrganizationName string

	// Federated marks identities arriving through a provider; only those may
	// auto-join by domain. Domain, when set, overrides the email's domain
	// (providers may assert a tenant claim that differs from the address).
	Federated bool
	Email     string
	Domain    string
}

// Resolution is the decided tenant membership for a new identity.
type Resolution struct {
	Tenant *models.Tenant
	Role   id.Role

	// InvitationToken is set when the caller must consume this invitation
	// together with user creation.
	InvitationToken string

	// CreatedTenant reports whether resolution created a brand-new tenant.
	CreatedTenant bool
}

// slugAttempts bounds retries when the random uniqueness suffix collides.
const slugAttempts = 3

type Resolver struct {
	tenants     TenantStore
	invitations InvitationValidator
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func WithClock(clk clock.Clock) Option {
	return func(r *Resolver) { r.clock = clk }
}

func New(tenants TenantStore, invitations InvitationValidator, opts ...Option) *Resolver {
	r := &Resolver{
		tenants:     tenants,
		invitations: invitations,
		clock:       clock.System{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve picks exactly one mode. Supplying none of invitation, organization
// name, or a federated identity is a caller error, not a fallback.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Resolution, error) {
	switch {
	case in.InvitationToken != "":
		return r.resolveInvitation(ctx, in.InvitationToken)
	case in.OrganizationName != "":
		return r.resolveOrganization(ctx, in.OrganizationName)
	case in.Federated:
		domain := in.Domain
		if domain == "" {
			domain = emailDomain(in.Email)
		}
		return r.resolveDomain(ctx, domain)
	}
	return nil, dErrors.New(dErrors.CodeInsufficientRegistrationInput,
		"registration requires an invitation token, an organization name, or a federated identity")
}

func (r *Resolver) resolveInvitation(ctx context.Context, token string) (*Resolution, error) {
	inv, err := r.invitations.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	tenant, err := r.tenants.FindByID(ctx, inv.TenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not resolve invitation tenant")
	}
	return &Resolution{
		Tenant:          tenant,
		Role:            inv.Role,
		InvitationToken: token,
	}, nil
}

func (r *Resolver) resolveOrganization(ctx context.Context, name string) (*Resolution, error) {
	tenant, err := r.createTenant(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	// The creating user owns the new organization.
	return &Resolution{Tenant: tenant, Role: id.RoleOwner, CreatedTenant: true}, nil
}

func (r *Resolver) resolveDomain(ctx context.Context, domain string) (*Resolution, error) {
	if domain == "" {
		return nil, dErrors.New(dErrors.CodeInsufficientRegistrationInput, "federated identity has no usable email domain")
	}
	domain = strings.ToLower(domain)

	tenant, err := r.tenants.FindByDomain(ctx, domain)
	if err == nil {
		return &Resolution{Tenant: tenant, Role: id.RoleMember}, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up tenant by domain")
	}

	tenant, err = r.createTenant(ctx, domain, []string{domain})
	if err != nil {
		return nil, err
	}
	// The first federated user of a fresh domain joins as member, not owner.
	// This asymmetry with basic-auth organization creation is intentional.
	return &Resolution{Tenant: tenant, Role: id.RoleMember, CreatedTenant: true}, nil
}

func (r *Resolver) createTenant(ctx context.Context, name string, domains []string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	for attempt := 0; attempt < slugAttempts; attempt++ {
		tenant, err := models.NewTenant(id.NewTenantID(), models.UniqueSlug(name), name, domains, r.clock.Now())
		if err != nil {
			return nil, err
		}
		err = r.tenants.CreateIfSlugAvailable(ctx, tenant)
		if err == nil {
			r.logger.InfoContext(ctx, "tenant created",
				"tenant_id", tenant.ID.String(),
				"slug", tenant.Slug,
			)
			if r.metrics != nil {
				r.metrics.TenantsCreated.Inc()
			}
			return tenant, nil
		}
		if !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not create tenant")
		}
	}
	return nil, dErrors.New(dErrors.CodeSlugConflict, "could not derive a unique tenant slug")
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
