package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	invmodels "painchain/internal/invitation/models"
	"painchain/internal/platform/metrics"
	"painchain/internal/sentinel"
	tenantmodels "painchain/internal/tenant/models"
	"painchain/pkg/clock"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// Store defines the persistence interface for invitations.
// Error Contract: Find methods return sentinel.ErrNotFound when the entity
// doesn't exist; Consume returns sentinel.ErrRevoked/ErrExpired/ErrExhausted.
type Store interface {
	Create(ctx context.Context, inv *invmodels.Invitation) error
	FindByToken(ctx context.Context, token string) (*invmodels.Invitation, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*invmodels.Invitation, error)
	Consume(ctx context.Context, token string, userID id.UserID, now time.Time) error
	Release(ctx context.Context, token string) error
	Revoke(ctx context.Context, token string, revokedBy id.UserID, now time.Time) error
}

// TenantReader resolves tenant display data for the public lookup endpoint.
type TenantReader interface {
	FindByID(ctx context.Context, tenantID id.TenantID) (*tenantmodels.Tenant, error)
}

const (
	defaultMaxUses = 1
	defaultRole    = id.RoleMember
)

// Service manages the invitation lifecycle: create, validate, consume, revoke.
type Service struct {
	store   Store
	tenants TenantReader
	ttl     time.Duration
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(clk clock.Clock) Option {
	return func(s *Service) { s.clock = clk }
}

// WithTTL overrides the default invitation lifetime of 7 days.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func New(store Store, tenants TenantReader, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		tenants: tenants,
		ttl:     7 * 24 * time.Hour,
		clock:   clock.System{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// CreateParams carries the caller's identity alongside the invitation shape.
// Defaults: role=member, expiry=now+7d, maxUses=1.
type CreateParams struct {
	CreatorID   id.UserID
	CreatorRole id.Role
	TenantID    id.TenantID
	Role        id.Role
	MaxUses     int
	ExpiresIn   time.Duration
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*invmodels.Invitation, error) {
	if !p.CreatorRole.CanManageInvitations() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only owners and admins can create invitations")
	}

	role := p.Role
	if role == "" {
		role = defaultRole
	}
	maxUses := p.MaxUses
	if maxUses <= 0 {
		maxUses = defaultMaxUses
	}
	expiresIn := p.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = s.ttl
	}

	token, err := invmodels.NewToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate invitation token")
	}

	now := s.clock.Now()
	inv := &invmodels.Invitation{
		Token:     token,
		TenantID:  p.TenantID,
		CreatorID: p.CreatorID,
		Role:      role,
		ExpiresAt: now.Add(expiresIn),
		MaxUses:   maxUses,
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, inv); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not create invitation")
	}

	s.logger.InfoContext(ctx, "invitation created",
		"tenant_id", p.TenantID.String(),
		"creator_id", p.CreatorID.String(),
		"role", role.String(),
		"max_uses", maxUses,
	)
	if s.metrics != nil {
		s.metrics.InvitationsCreated.Inc()
	}
	return inv, nil
}

// Validate checks that the invitation can still be redeemed. Each failure is
// a distinct kind because the client shows a different message per kind.
func (s *Service) Validate(ctx context.Context, token string) (*invmodels.Invitation, error) {
	inv, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invitation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up invitation")
	}

	now := s.clock.Now()
	switch {
	case inv.IsRevoked():
		return nil, dErrors.New(dErrors.CodeInvitationRevoked, "invitation has been revoked")
	case inv.IsExpired(now):
		return nil, dErrors.New(dErrors.CodeInvitationExpired, "invitation has expired")
	case inv.IsExhausted():
		return nil, dErrors.New(dErrors.CodeInvitationExhausted, "invitation has no uses remaining")
	}
	return inv, nil
}

// Consume redeems the invitation for the given user. The store performs a
// conditional update, so concurrent redemptions of a maxUses=1 invite cannot
// both succeed.
func (s *Service) Consume(ctx context.Context, token string, userID id.UserID) error {
	err := s.store.Consume(ctx, token, userID, s.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "invitation not found")
		case errors.Is(err, sentinel.ErrRevoked):
			return dErrors.New(dErrors.CodeInvitationRevoked, "invitation has been revoked")
		case errors.Is(err, sentinel.ErrExpired):
			return dErrors.New(dErrors.CodeInvitationExpired, "invitation has expired")
		case errors.Is(err, sentinel.ErrExhausted):
			return dErrors.New(dErrors.CodeInvitationExhausted, "invitation has no uses remaining")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not consume invitation")
	}

	s.logger.InfoContext(ctx, "invitation consumed",
		"user_id", userID.String(),
	)
	if s.metrics != nil {
		s.metrics.InvitationsConsumed.Inc()
	}
	return nil
}

// Release returns a consumed use after the surrounding registration failed,
// so a seat is never burned without an account behind it.
func (s *Service) Release(ctx context.Context, token string) error {
	if err := s.store.Release(ctx, token); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not release invitation")
	}
	s.logger.InfoContext(ctx, "invitation use released")
	return nil
}

// Caller identifies who is acting on an invitation route.
type Caller struct {
	UserID   id.UserID
	TenantID id.TenantID
	Role     id.Role
}

// Revoke disables the invitation. Idempotent; revoking an already-revoked or
// unknown token is not an error.
func (s *Service) Revoke(ctx context.Context, token string, caller Caller) error {
	if !caller.Role.CanManageInvitations() {
		return dErrors.New(dErrors.CodeForbidden, "only owners and admins can revoke invitations")
	}

	inv, err := s.store.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not look up invitation")
	}
	if inv.TenantID != caller.TenantID {
		return dErrors.New(dErrors.CodeForbidden, "invitation belongs to another tenant")
	}

	if err := s.store.Revoke(ctx, token, caller.UserID, s.clock.Now()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not revoke invitation")
	}
	s.logger.InfoContext(ctx, "invitation revoked",
		"tenant_id", caller.TenantID.String(),
		"revoked_by", caller.UserID.String(),
	)
	return nil
}

// ListByTenant returns every invitation of the tenant, live or terminal.
func (s *Service) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*invmodels.Invitation, error) {
	invs, err := s.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list invitations")
	}
	return invs, nil
}

// PublicLookup exposes the safe subset of a still-valid invitation for the
// unauthenticated join page.
func (s *Service) PublicLookup(ctx context.Context, token string) (*invmodels.PublicView, error) {
	inv, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	tenant, err := s.tenants.FindByID(ctx, inv.TenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not resolve invitation tenant")
	}
	return &invmodels.PublicView{
		Token:      inv.Token,
		TenantName: tenant.Name,
		Role:       inv.Role.String(),
		ExpiresAt:  inv.ExpiresAt,
	}, nil
}
