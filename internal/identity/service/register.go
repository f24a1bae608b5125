package service

import (
	"context"
	"errors"
	"strings"

	"painchain/internal/identity/models"
	pwd "painchain/internal/identity/password"
	"painchain/internal/sentinel"
	"painchain/internal/tenant/resolver"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

const minPasswordLength = 8

// RegisterParams is a self-service registration request. Exactly one of
// InvitationToken or OrganizationName selects the tenant; supplying neither
// is rejected by the resolver.
type RegisterParams struct {
	Email            string
	Password         string
	DisplayName      string
	InvitationToken  string
	OrganizationName string

	Meta models.SessionMetadata
}

// Register creates an account, places it in a tenant, and logs it in. The
// invitation (when used) is consumed before the account exists; a failed
// create releases the seat, so the seat count and the accounts behind it
// never diverge.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*AuthResult, error) {
	if !s.registrationAllowed {
		return nil, dErrors.New(dErrors.CodeForbidden, "self-service registration is disabled")
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(p.Password) < minPasswordLength {
		return nil, dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}

	res, err := s.resolver.Resolve(ctx, resolver.Input{
		InvitationToken:  p.InvitationToken,
		OrganizationName: p.OrganizationName,
	})
	if err != nil {
		return nil, err
	}

	hash, err := pwd.Hash(p.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &models.User{
		ID:           id.NewUserID(),
		Email:        email,
		PasswordHash: hash,
		TenantID:     res.Tenant.ID,
		Role:         res.Role,
		DisplayName:  displayNameOr(p.DisplayName, email),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// Claim the invitation seat first. The store's conditional update makes
	// this the single winner-picking step for concurrent redemptions: losers
	// stop here with no account created.
	if res.InvitationToken != "" {
		if err := s.invitations.Consume(ctx, res.InvitationToken, user.ID); err != nil {
			return nil, err
		}
	}

	if err := s.users.Create(ctx, user); err != nil {
		if res.InvitationToken != "" {
			if relErr := s.invitations.Release(ctx, res.InvitationToken); relErr != nil {
				s.logger.WarnContext(ctx, "invitation release failed",
					"error", relErr,
				)
			}
		}
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not create user")
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"tenant_id", user.TenantID.String(),
		"role", user.Role.String(),
		"created_tenant", res.CreatedTenant,
	)
	if s.metrics != nil {
		s.metrics.UsersCreated.Inc()
	}

	result, err := s.issueSession(ctx, user, p.Meta)
	if err != nil {
		return nil, err
	}
	s.recordLogin(ctx, user, "register")
	return result, nil
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || len(email) > 254 {
		return dErrors.New(dErrors.CodeValidation, "email address is not valid")
	}
	return nil
}

func displayNameOr(name, fallback string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fallback
}
