// Package service orchestrates the authentication flows: credential login,
// registration, federated login, and session management. It composes the
// credential verifier, token issuer, session ledger, tenant resolver, and
// invitation manager without owning any persistence of its own.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"painchain/internal/federation"
	"painchain/internal/identity/models"
	pwd "painchain/internal/identity/password"
	"painchain/internal/identity/session"
	"painchain/internal/identity/token"
	"painchain/internal/platform/metrics"
	"painchain/internal/sentinel"
	tenantmodels "painchain/internal/tenant/models"
	"painchain/internal/tenant/resolver"
	"painchain/pkg/clock"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// UserStore persists accounts.
// Error Contract: Find methods return sentinel.ErrNotFound when no user
// matches; Create returns sentinel.ErrAlreadyUsed on a taken email.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// FederatedStore persists provider-subject → user links.
type FederatedStore interface {
	FindBySubject(ctx context.Context, providerID id.ProviderID, subject string) (*models.FederatedAccount, error)
	Upsert(ctx context.Context, link *models.FederatedAccount) error
}

// TenantReader resolves the tenant record for the profile endpoint.
type TenantReader interface {
	FindByID(ctx context.Context, tenantID id.TenantID) (*tenantmodels.Tenant, error)
}

// TenantResolver decides which tenant a first-time identity lands in.
type TenantResolver interface {
	Resolve(ctx context.Context, in resolver.Input) (*resolver.Resolution, error)
}

// InvitationConsumer redeems an invitation seat during registration. Release
// compensates a redemption whose account creation failed.
type InvitationConsumer interface {
	Consume(ctx context.Context, token string, userID id.UserID) error
	Release(ctx context.Context, token string) error
}

// Service is the identity orchestrator behind the HTTP handlers.
type Service struct {
	users       UserStore
	federated   FederatedStore
	tenants     TenantReader
	resolver    TenantResolver
	invitations InvitationConsumer
	tokens      *token.Service
	sessions    *session.Ledger

	// federation is nil when no provider file is configured.
	federation *federation.Orchestrator

	basicAuthEnabled    bool
	registrationAllowed bool

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

// WithFederation enables federated login through the given orchestrator.
func WithFederation(orch *federation.Orchestrator) Option {
	return func(s *Service) { s.federation = orch }
}

// WithMethods toggles the basic-auth and self-registration surfaces.
func WithMethods(basicAuth, registration bool) Option {
	return func(s *Service) {
		s.basicAuthEnabled = basicAuth
		s.registrationAllowed = registration
	}
}

func New(
	users UserStore,
	federated FederatedStore,
	tenants TenantReader,
	tenantResolver TenantResolver,
	invitations InvitationConsumer,
	tokens *token.Service,
	sessions *session.Ledger,
	opts ...Option,
) *Service {
	s := &Service{
		users:               users,
		federated:           federated,
		tenants:             tenants,
		resolver:            tenantResolver,
		invitations:         invitations,
		tokens:              tokens,
		sessions:            sessions,
		basicAuthEnabled:    true,
		registrationAllowed: true,
		clock:               clock.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// AuthResult is a successful authentication: the bearer token plus the user
// and session it was minted for.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
	Session   *models.Session
}

// Login authenticates with email and password. The active flag is checked
// only after the password matches, so a probing caller cannot distinguish a
// deactivated account from a wrong password without knowing the password.
func (s *Service) Login(ctx context.Context, email, password string, meta models.SessionMetadata) (*AuthResult, error) {
	if !s.basicAuthEnabled {
		return nil, dErrors.New(dErrors.CodeForbidden, "password login is disabled")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.authFailure(ctx, email, dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password"))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up user")
	}
	if !user.HasPassword() {
		// Federated-only accounts have no password to verify.
		return nil, s.authFailure(ctx, email, dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password"))
	}
	if err := pwd.Verify(password, user.PasswordHash); err != nil {
		return nil, s.authFailure(ctx, email, err)
	}
	if !user.Active {
		return nil, s.authFailure(ctx, email, dErrors.New(dErrors.CodeAccountInactive, "account is deactivated"))
	}

	user.RecordLogin(s.clock.Now())
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "last-login update failed",
			"user_id", user.ID.String(),
			"error", err,
		)
	}

	result, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	s.recordLogin(ctx, user, "basic")
	return result, nil
}

// Logout revokes the session behind the presented token. Idempotent.
func (s *Service) Logout(ctx context.Context, sessionID id.SessionID) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// LogoutAll revokes every session of the user, including the current one.
func (s *Service) LogoutAll(ctx context.Context, userID id.UserID) (int, error) {
	return s.sessions.RevokeAll(ctx, userID)
}

// Profile is the authenticated user plus their tenant, for /me.
type Profile struct {
	User   *models.User
	Tenant *tenantmodels.Tenant
}

// Me returns the caller's account and tenant.
func (s *Service) Me(ctx context.Context, userID id.UserID) (*Profile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load user")
	}
	tenant, err := s.tenants.FindByID(ctx, user.TenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load tenant")
	}
	return &Profile{User: user, Tenant: tenant}, nil
}

// ListSessions returns every session of the user, newest first.
func (s *Service) ListSessions(ctx context.Context, userID id.UserID) ([]*models.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// RevokeSession revokes one of the caller's own sessions. A session that
// exists but belongs to someone else reads as not found, never as forbidden.
func (s *Service) RevokeSession(ctx context.Context, callerID id.UserID, sessionID id.SessionID) error {
	sess, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != callerID {
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	return s.sessions.Revoke(ctx, sessionID)
}

// Methods describes the authentication surfaces this deployment offers.
type Methods struct {
	BasicAuthEnabled    bool
	RegistrationAllowed bool
	Providers           []*federation.Provider
}

// AuthMethods reports what the login page should render.
func (s *Service) AuthMethods() Methods {
	m := Methods{
		BasicAuthEnabled:    s.basicAuthEnabled,
		RegistrationAllowed: s.registrationAllowed,
	}
	if s.federation != nil {
		m.Providers = s.federation.Providers()
	}
	return m
}

// issueSession opens a ledger entry and mints the matching token. Every
// authentication path ends here so a user is never created without a session.
func (s *Service) issueSession(ctx context.Context, user *models.User, meta models.SessionMetadata) (*AuthResult, error) {
	sess, err := s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}
	signed, err := s.tokens.Mint(user.ID, user.Email, user.TenantID, user.Role, sess.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Token:     signed,
		ExpiresAt: sess.ExpiresAt,
		User:      user,
		Session:   sess,
	}, nil
}

func (s *Service) recordLogin(ctx context.Context, user *models.User, method string) {
	s.logger.InfoContext(ctx, "login succeeded",
		"user_id", user.ID.String(),
		"tenant_id", user.TenantID.String(),
		"method", method,
	)
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues(method).Inc()
	}
}

// authFailure logs and counts a failed attempt, then passes the error through.
func (s *Service) authFailure(ctx context.Context, email string, err error) error {
	s.logger.WarnContext(ctx, "login failed",
		"email", email,
		"reason", string(dErrors.CodeOf(err)),
	)
	if s.metrics != nil {
		s.metrics.AuthFailures.Inc()
	}
	return err
}
