// Package seeder provisions the first tenant and owner account so a fresh
// deployment has a login before any invitation exists.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"painchain/internal/identity/models"
	"painchain/internal/identity/password"
	"painchain/internal/sentinel"
	tenantmodels "painchain/internal/tenant/models"
	"painchain/pkg/clock"
	id "painchain/pkg/domain"
)

// UserStore is the account persistence the seeder needs.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// TenantStore is the tenant persistence the seeder needs.
type TenantStore interface {
	CreateIfSlugAvailable(ctx context.Context, tenant *tenantmodels.Tenant) error
}

// Params describes the owner account to provision.
type Params struct {
	Email        string
	Password     string
	Organization string
}

type Seeder struct {
	users   UserStore
	tenants TenantStore
	clock   clock.Clock
	logger  *slog.Logger
}

func New(users UserStore, tenants TenantStore, clk clock.Clock, logger *slog.Logger) *Seeder {
	if clk == nil {
		clk = clock.System{}
	}
	return &Seeder{users: users, tenants: tenants, clock: clk, logger: logger}
}

// Seed creates the owner tenant and account unless the email already exists.
// Idempotent across restarts.
func (s *Seeder) Seed(ctx context.Context, p Params) error {
	if p.Email == "" || p.Password == "" || p.Organization == "" {
		return nil
	}

	_, err := s.users.FindByEmail(ctx, p.Email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("seed lookup: %w", err)
	}

	now := s.clock.Now()
	tenant, err := tenantmodels.NewTenant(
		id.NewTenantID(), tenantmodels.UniqueSlug(p.Organization), p.Organization, nil, now)
	if err != nil {
		return fmt.Errorf("seed tenant: %w", err)
	}
	if err := s.tenants.CreateIfSlugAvailable(ctx, tenant); err != nil {
		return fmt.Errorf("seed tenant: %w", err)
	}

	hash, err := password.Hash(p.Password)
	if err != nil {
		return fmt.Errorf("seed password: %w", err)
	}
	owner := &models.User{
		ID:           id.NewUserID(),
		Email:        p.Email,
		PasswordHash: hash,
		TenantID:     tenant.ID,
		Role:         id.RoleOwner,
		DisplayName:  p.Organization + " Owner",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, owner); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil
		}
		return fmt.Errorf("seed owner: %w", err)
	}

	s.logger.Info("seeded owner account",
		"email", p.Email,
		"tenant_id", tenant.ID.String(),
		"slug", tenant.Slug,
	)
	return nil
}
