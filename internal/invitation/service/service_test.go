package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	invstore "painchain/internal/invitation/store"
	tenantmodels "painchain/internal/tenant/models"
	tenantstore "painchain/internal/tenant/store"
	"painchain/pkg/clock"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
	"painchain/pkg/testutil"
)

type InvitationSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *clock.Fixed
	store   *invstore.InMemoryStore
	tenants *tenantstore.InMemoryStore
	service *Service

	tenant  *tenantmodels.Tenant
	ownerID id.UserID
}

func (s *InvitationSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s.store = invstore.NewMemory()
	s.tenants = tenantstore.NewMemory()
	s.service = New(s.store, s.tenants,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(s.clock),
	)

	tenant, err := tenantmodels.NewTenant(
		id.NewTenantID(), "acme-abc123", "Acme", nil, s.clock.Now())
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.tenants.CreateIfSlugAvailable(s.ctx, tenant))
	s.tenant = tenant
	s.ownerID = id.NewUserID()
}

func (s *InvitationSuite) create(p CreateParams) string {
	if p.CreatorID.IsNil() {
		p.CreatorID = s.ownerID
	}
	if p.CreatorRole == "" {
		p.CreatorRole = id.RoleOwner
	}
	if p.TenantID.IsNil() {
		p.TenantID = s.tenant.ID
	}
	inv, err := s.service.Create(s.ctx, p)
	require.NoError(s.T(), err)
	return inv.Token
}

func (s *InvitationSuite) TestCreateDefaults() {
	inv, err := s.service.Create(s.ctx, CreateParams{
		CreatorID:   s.ownerID,
		CreatorRole: id.RoleAdmin,
		TenantID:    s.tenant.ID,
	})
	require.NoError(s.T(), err)

	assert.Equal(s.T(), id.RoleMember, inv.Role)
	assert.Equal(s.T(), 1, inv.MaxUses)
	assert.Equal(s.T(), s.clock.Now().Add(7*24*time.Hour), inv.ExpiresAt)
	assert.NotEmpty(s.T(), inv.Token)
}

func (s *InvitationSuite) TestCreateRequiresManagingRole() {
	for _, role := range []id.Role{id.RoleMember, id.RoleViewer} {
		_, err := s.service.Create(s.ctx, CreateParams{
			CreatorID:   s.ownerID,
			CreatorRole: role,
			TenantID:    s.tenant.ID,
		})
		assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeForbidden), "role %s", role)
	}
}

func (s *InvitationSuite) TestValidateDistinguishesFailureKinds() {
	revoked := s.create(CreateParams{})
	require.NoError(s.T(), s.service.Revoke(s.ctx, revoked, s.caller()))

	exhausted := s.create(CreateParams{MaxUses: 1})
	require.NoError(s.T(), s.service.Consume(s.ctx, exhausted, id.NewUserID()))

	expired := s.create(CreateParams{ExpiresIn: time.Hour})
	s.clock.Advance(2 * time.Hour)

	_, err := s.service.Validate(s.ctx, revoked)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvitationRevoked))

	_, err = s.service.Validate(s.ctx, exhausted)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvitationExhausted))

	_, err = s.service.Validate(s.ctx, expired)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvitationExpired))

	_, err = s.service.Validate(s.ctx, "no-such-token")
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *InvitationSuite) TestConsumeSecondUseExhausted() {
	token := s.create(CreateParams{MaxUses: 1})

	require.NoError(s.T(), s.service.Consume(s.ctx, token, id.NewUserID()))

	err := s.service.Consume(s.ctx, token, id.NewUserID())
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvitationExhausted))
}

func (s *InvitationSuite) TestConcurrentConsumeSingleWinner() {
	token := s.create(CreateParams{MaxUses: 1})

	successes, errs := testutil.RunConcurrent(25, func(int) error {
		return s.service.Consume(s.ctx, token, id.NewUserID())
	})

	assert.Equal(s.T(), 1, successes)
	require.Len(s.T(), errs, 24)
	for _, err := range errs {
		assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvitationExhausted))
	}
}

func (s *InvitationSuite) TestConsumeRespectsMaxUses() {
	token := s.create(CreateParams{MaxUses: 3})

	successes, _ := testutil.RunConcurrent(10, func(int) error {
		return s.service.Consume(s.ctx, token, id.NewUserID())
	})
	assert.Equal(s.T(), 3, successes)
}

func (s *InvitationSuite) TestRevokeIdempotent() {
	token := s.create(CreateParams{})

	require.NoError(s.T(), s.service.Revoke(s.ctx, token, s.caller()))
	require.NoError(s.T(), s.service.Revoke(s.ctx, token, s.caller()))
	require.NoError(s.T(), s.service.Revoke(s.ctx, "unknown-token", s.caller()))
}

func (s *InvitationSuite) TestRevokeCrossTenantForbidden() {
	token := s.create(CreateParams{})

	err := s.service.Revoke(s.ctx, token, Caller{
		UserID:   id.NewUserID(),
		TenantID: id.NewTenantID(),
		Role:     id.RoleOwner,
	})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *InvitationSuite) TestPublicLookupSafeFields() {
	token := s.create(CreateParams{Role: id.RoleAdmin})

	view, err := s.service.PublicLookup(s.ctx, token)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), token, view.Token)
	assert.Equal(s.T(), "Acme", view.TenantName)
	assert.Equal(s.T(), "admin", view.Role)
}

func (s *InvitationSuite) TestListByTenant() {
	s.create(CreateParams{})
	s.create(CreateParams{})

	invs, err := s.service.ListByTenant(s.ctx, s.tenant.ID)
	require.NoError(s.T(), err)
	assert.Len(s.T(), invs, 2)
}

func (s *InvitationSuite) caller() Caller {
	return Caller{UserID: s.ownerID, TenantID: s.tenant.ID, Role: id.RoleOwner}
}

func TestInvitationSuite(t *testing.T) {
	suite.Run(t, new(InvitationSuite))
}
