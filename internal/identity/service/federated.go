package service

import (
	"context"
	"errors"

	"painchain/internal/federation"
	"painchain/internal/identity/models"
	"painchain/internal/sentinel"
	"painchain/internal/tenant/resolver"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// FederatedBegin returns the provider redirect URL to start a federated login.
func (s *Service) FederatedBegin(providerID id.ProviderID, redirectURI string) (string, error) {
	if s.federation == nil {
		return "", dErrors.New(dErrors.CodeNotFound, "federated login is not configured")
	}
	return s.federation.AuthorizationURL(providerID, redirectURI)
}

// FederatedCallback completes a federated login. Three cases, tried in order:
// a known provider link logs straight in; a known email gets the link attached
// and logs in without touching tenant membership; a brand-new identity goes
// through tenant resolution and gets an account without a password.
func (s *Service) FederatedCallback(ctx context.Context, code, state, redirectURI string, meta models.SessionMetadata) (*AuthResult, error) {
	if s.federation == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "federated login is not configured")
	}
	fident, err := s.federation.HandleCallback(ctx, code, state, redirectURI)
	if err != nil {
		if s.metrics != nil {
			s.metrics.AuthFailures.Inc()
		}
		return nil, err
	}

	user, err := s.federatedUser(ctx, fident)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, s.authFailure(ctx, user.Email, dErrors.New(dErrors.CodeAccountInactive, "account is deactivated"))
	}

	now := s.clock.Now()
	if err := s.federated.Upsert(ctx, &models.FederatedAccount{
		ProviderID: fident.Provider.ID,
		Subject:    fident.Subject,
		UserID:     user.ID,
		LastClaims: fident.Claims,
		LastUsedAt: now,
		CreatedAt:  now,
	}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not record federated link")
	}

	user.RecordLogin(now)
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
	s.recordLogin(ctx, user, "federated")
	return result, nil
}

// federatedUser maps a provider identity to a local account, creating one on
// first contact.
func (s *Service) federatedUser(ctx context.Context, fident *federation.Identity) (*models.User, error) {
	link, err := s.federated.FindBySubject(ctx, fident.Provider.ID, fident.Subject)
	if err == nil {
		user, err := s.users.FindByID(ctx, link.UserID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load linked user")
		}
		return user, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up federated link")
	}

	if fident.Email == "" {
		return nil, dErrors.New(dErrors.CodeUserinfoFetchFailed, "provider returned no email address")
	}

	// An existing account with the same email gets the provider attached.
	// Its tenant membership is left untouched.
	user, err := s.users.FindByEmail(ctx, fident.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not look up user")
	}

	return s.createFederatedUser(ctx, fident)
}

func (s *Service) createFederatedUser(ctx context.Context, fident *federation.Identity) (*models.User, error) {
	res, err := s.resolver.Resolve(ctx, resolver.Input{
		Federated: true,
		Email:     fident.Email,
		Domain:    fident.TenantDomain,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &models.User{
		ID:          id.NewUserID(),
		Email:       fident.Email,
		TenantID:    res.Tenant.ID,
		Role:        res.Role,
		DisplayName: displayNameOr(fident.DisplayName, fident.Email),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Lost a race with a concurrent first login of the same identity.
			return s.users.FindByEmail(ctx, fident.Email)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not create user")
	}

	s.logger.InfoContext(ctx, "federated user created",
		"user_id", user.ID.String(),
		"tenant_id", user.TenantID.String(),
		"provider_id", fident.Provider.ID.String(),
	)
	if s.metrics != nil {
		s.metrics.UsersCreated.Inc()
	}
	return user, nil
}
