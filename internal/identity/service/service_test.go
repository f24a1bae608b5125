package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"painchain/internal/identity/models"
	"painchain/internal/identity/password"
	"painchain/internal/identity/session"
	federatedstore "painchain/internal/identity/store/federated"
	sessionstore "painchain/internal/identity/store/session"
	userstore "painchain/internal/identity/store/user"
	"painchain/internal/identity/token"
	invservice "painchain/internal/invitation/service"
	invstore "painchain/internal/invitation/store"
	tenantresolver "painchain/internal/tenant/resolver"
	tenantstore "painchain/internal/tenant/store"
	"painchain/pkg/clock"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
	"painchain/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *clock.Fixed
	users   *userstore.InMemoryStore
	tenants *tenantstore.InMemoryStore
	invSvc  *invservice.Service
	tokens  *token.Service
	ledger  *session.Ledger
	service *Service
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.users = userstore.NewMemory()
	s.tenants = tenantstore.NewMemory()
	invitations := invstore.NewMemory()

	s.invSvc = invservice.New(invitations, s.tenants,
		invservice.WithLogger(logger),
		invservice.WithClock(s.clock),
	)
	resolver := tenantresolver.New(s.tenants, s.invSvc,
		tenantresolver.WithLogger(logger),
		tenantresolver.WithClock(s.clock),
	)
	s.tokens = token.New("test-secret", 7*24*time.Hour, s.clock)
	s.ledger = session.NewLedger(sessionstore.NewMemory(), 7*24*time.Hour,
		session.WithLogger(logger),
		session.WithClock(s.clock),
	)

	s.service = New(s.users, federatedstore.NewMemory(), s.tenants, resolver, s.invSvc, s.tokens, s.ledger,
		WithLogger(logger),
		WithClock(s.clock),
	)
}

func (s *ServiceSuite) register(email, org string) *AuthResult {
	result, err := s.service.Register(s.ctx, RegisterParams{
		Email:            email,
		Password:         "correct horse battery",
		OrganizationName: org,
	})
	require.NoError(s.T(), err)
	return result
}

// identityOf parses the token the way the middleware does.
func (s *ServiceSuite) identityOf(signed string) (id.UserID, id.SessionID) {
	claims, err := s.tokens.Parse(signed)
	require.NoError(s.T(), err)
	userID, _, sessionID, _, err := claims.Identity()
	require.NoError(s.T(), err)
	return userID, sessionID
}

func (s *ServiceSuite) TestRegisterThenLoginThenMe() {
	reg := s.register("alice@example.com", "Acme Corp")
	assert.Equal(s.T(), id.RoleOwner, reg.User.Role)

	login, err := s.service.Login(s.ctx, "alice@example.com", "correct horse battery", models.SessionMetadata{})
	require.NoError(s.T(), err)

	userID, sessionID := s.identityOf(login.Token)
	assert.Equal(s.T(), reg.User.ID, userID)
	require.NoError(s.T(), s.ledger.Validate(s.ctx, sessionID))

	profile, err := s.service.Me(s.ctx, userID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "alice@example.com", profile.User.Email)
	assert.Equal(s.T(), "Acme Corp", profile.Tenant.Name)
}

func (s *ServiceSuite) TestLoginWrongPassword() {
	s.register("alice@example.com", "Acme Corp")

	_, err := s.service.Login(s.ctx, "alice@example.com", "wrong", models.SessionMetadata{})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
}

func (s *ServiceSuite) TestLoginUnknownEmail() {
	_, err := s.service.Login(s.ctx, "nobody@example.com", "whatever", models.SessionMetadata{})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
}

func (s *ServiceSuite) TestInactiveOnlyAfterPasswordMatch() {
	reg := s.register("alice@example.com", "Acme Corp")

	user, err := s.users.FindByID(s.ctx, reg.User.ID)
	require.NoError(s.T(), err)
	user.Active = false
	require.NoError(s.T(), s.users.Update(s.ctx, user))

	// Wrong password on a deactivated account must not reveal the account state.
	_, err = s.service.Login(s.ctx, "alice@example.com", "wrong", models.SessionMetadata{})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidCredentials))

	_, err = s.service.Login(s.ctx, "alice@example.com", "correct horse battery", models.SessionMetadata{})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeAccountInactive))
}

func (s *ServiceSuite) TestLoginRecordsLastLogin() {
	reg := s.register("alice@example.com", "Acme Corp")

	s.clock.Advance(time.Hour)
	_, err := s.service.Login(s.ctx, "alice@example.com", "correct horse battery", models.SessionMetadata{})
	require.NoError(s.T(), err)

	user, err := s.users.FindByID(s.ctx, reg.User.ID)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), user.LastLoginAt)
	assert.Equal(s.T(), s.clock.Now(), *user.LastLoginAt)
}

func (s *ServiceSuite) TestRegisterDuplicateEmail() {
	s.register("alice@example.com", "Acme Corp")

	_, err := s.service.Register(s.ctx, RegisterParams{
		Email:            "alice@example.com",
		Password:         "another password",
		OrganizationName: "Other Org",
	})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestRegisterWithoutTenantSelector() {
	_, err := s.service.Register(s.ctx, RegisterParams{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInsufficientRegistrationInput))
}

func (s *ServiceSuite) TestRegisterShortPassword() {
	_, err := s.service.Register(s.ctx, RegisterParams{
		Email:            "alice@example.com",
		Password:         "short",
		OrganizationName: "Acme Corp",
	})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestRegisterViaInvitationConsumesIt() {
	owner := s.register("owner@example.com", "Acme Corp")

	inv, err := s.invSvc.Create(s.ctx, invservice.CreateParams{
		CreatorID:   owner.User.ID,
		CreatorRole: owner.User.Role,
		TenantID:    owner.User.TenantID,
		Role:        id.RoleAdmin,
	})
	require.NoError(s.T(), err)

	joined, err := s.service.Register(s.ctx, RegisterParams{
		Email:           "bob@example.com",
		Password:        "correct horse battery",
		InvitationToken: inv.Token,
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), owner.User.TenantID, joined.User.TenantID)
	assert.Equal(s.T(), id.RoleAdmin, joined.User.Role)

	// Single-use invitation is now spent.
	_, err = s.service.Register(s.ctx, RegisterParams{
		Email:           "carol@example.com",
		Password:        "correct horse battery",
		InvitationToken: inv.Token,
	})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvitationExhausted))
}

func (s *ServiceSuite) TestConcurrentInvitedRegistersLeaveOneAccount() {
	owner := s.register("owner@example.com", "Acme Corp")

	inv, err := s.invSvc.Create(s.ctx, invservice.CreateParams{
		CreatorID:   owner.User.ID,
		CreatorRole: owner.User.Role,
		TenantID:    owner.User.TenantID,
	})
	require.NoError(s.T(), err)

	emails := make([]string, 8)
	for i := range emails {
		emails[i] = fmt.Sprintf("racer%d@example.com", i)
	}

	successes, errs := testutil.RunConcurrent(len(emails), func(idx int) error {
		_, err := s.service.Register(s.ctx, RegisterParams{
			Email:           emails[idx],
			Password:        "correct horse battery",
			InvitationToken: inv.Token,
		})
		return err
	})
	assert.Equal(s.T(), 1, successes)
	require.Len(s.T(), errs, len(emails)-1)
	for _, err := range errs {
		assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvitationExhausted), "got %v", err)
	}

	// Only the winner holds an account; the losers cannot log into the
	// invited tenant because they were never created.
	logins := 0
	for _, email := range emails {
		result, err := s.service.Login(s.ctx, email, "correct horse battery", models.SessionMetadata{})
		if err != nil {
			assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidCredentials), "got %v", err)
			continue
		}
		assert.Equal(s.T(), owner.User.TenantID, result.User.TenantID)
		logins++
	}
	assert.Equal(s.T(), 1, logins)
}

func (s *ServiceSuite) TestRegisterEmailConflictReleasesInvitationSeat() {
	owner := s.register("owner@example.com", "Acme Corp")
	s.register("taken@example.com", "Other Org")

	inv, err := s.invSvc.Create(s.ctx, invservice.CreateParams{
		CreatorID:   owner.User.ID,
		CreatorRole: owner.User.Role,
		TenantID:    owner.User.TenantID,
	})
	require.NoError(s.T(), err)

	// A duplicate email fails after the seat was claimed; the seat comes back.
	_, err = s.service.Register(s.ctx, RegisterParams{
		Email:           "taken@example.com",
		Password:        "correct horse battery",
		InvitationToken: inv.Token,
	})
	require.True(s.T(), dErrors.HasCode(err, dErrors.CodeConflict))

	joined, err := s.service.Register(s.ctx, RegisterParams{
		Email:           "fresh@example.com",
		Password:        "correct horse battery",
		InvitationToken: inv.Token,
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), owner.User.TenantID, joined.User.TenantID)
}

func (s *ServiceSuite) TestLogoutAllRejectsPriorTokens() {
	s.register("alice@example.com", "Acme Corp")

	first, err := s.service.Login(s.ctx, "alice@example.com", "correct horse battery", models.SessionMetadata{})
	require.NoError(s.T(), err)
	second, err := s.service.Login(s.ctx, "alice@example.com", "correct horse battery", models.SessionMetadata{})
	require.NoError(s.T(), err)

	userID, firstSession := s.identityOf(first.Token)
	_, secondSession := s.identityOf(second.Token)

	revoked, err := s.service.LogoutAll(s.ctx, userID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, revoked) // registration session plus two logins

	assert.True(s.T(), dErrors.HasCode(s.ledger.Validate(s.ctx, firstSession), dErrors.CodeSessionRevoked))
	assert.True(s.T(), dErrors.HasCode(s.ledger.Validate(s.ctx, secondSession), dErrors.CodeSessionRevoked))
}

func (s *ServiceSuite) TestLogoutRevokesOnlyCurrentSession() {
	s.register("alice@example.com", "Acme Corp")

	first, err := s.service.Login(s.ctx, "alice@example.com", "correct horse battery", models.SessionMetadata{})
	require.NoError(s.T(), err)
	second, err := s.service.Login(s.ctx, "alice@example.com", "correct horse battery", models.SessionMetadata{})
	require.NoError(s.T(), err)

	_, firstSession := s.identityOf(first.Token)
	_, secondSession := s.identityOf(second.Token)

	require.NoError(s.T(), s.service.Logout(s.ctx, firstSession))

	assert.True(s.T(), dErrors.HasCode(s.ledger.Validate(s.ctx, firstSession), dErrors.CodeSessionRevoked))
	assert.NoError(s.T(), s.ledger.Validate(s.ctx, secondSession))
}

func (s *ServiceSuite) TestRevokeSessionOwnershipHiddenAsNotFound() {
	alice := s.register("alice@example.com", "Acme Corp")
	bob := s.register("bob@example.com", "Bob Org")

	err := s.service.RevokeSession(s.ctx, bob.User.ID, alice.Session.ID)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeNotFound))

	require.NoError(s.T(), s.service.RevokeSession(s.ctx, alice.User.ID, alice.Session.ID))
}

func (s *ServiceSuite) TestDisabledSurfaces() {
	disabled := New(s.users, federatedstore.NewMemory(), s.tenants, nil, s.invSvc, s.tokens, s.ledger,
		WithClock(s.clock),
		WithMethods(false, false),
	)

	_, err := disabled.Login(s.ctx, "alice@example.com", "pw", models.SessionMetadata{})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = disabled.Register(s.ctx, RegisterParams{
		Email:            "alice@example.com",
		Password:         "correct horse battery",
		OrganizationName: "Acme",
	})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeForbidden))

	m := disabled.AuthMethods()
	assert.False(s.T(), m.BasicAuthEnabled)
	assert.False(s.T(), m.RegistrationAllowed)
	assert.Empty(s.T(), m.Providers)
}

func (s *ServiceSuite) TestPasswordHashNeverEmptyForBasicUsers() {
	reg := s.register("alice@example.com", "Acme Corp")
	user, err := s.users.FindByID(s.ctx, reg.User.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), user.HasPassword())
	assert.NoError(s.T(), password.Verify("correct horse battery", user.PasswordHash))
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
