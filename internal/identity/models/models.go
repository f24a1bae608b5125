package models

import (
	"time"

	id "painchain/pkg/domain"
)

// User is a tenant-scoped account. PasswordHash is empty for federated-only
// accounts; such users cannot log in with basic auth.
type User struct {
	ID           id.UserID
	Email        string
	PasswordHash string
	TenantID     id.TenantID
	Role         id.Role
	DisplayName  string
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the account can authenticate with basic auth.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// RecordLogin stamps the last successful authentication.
func (u *User) RecordLogin(now time.Time) {
	u.LastLoginAt = &now
	u.UpdatedAt = now
}

// Session is the persistent record backing one issued bearer token. The
// token's jti claim equals the session ID; revoking the row revokes the token.
type Session struct {
	ID         id.SessionID
	UserID     id.UserID
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastSeenAt time.Time
	RevokedAt  *time.Time

	// Client metadata captured at login for the sessions list.
	IP          string
	UserAgent   string
	DisplayName string
}

// IsRevoked reports whether the session has been explicitly revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsActive reports whether the session is neither revoked nor expired at now.
func (s *Session) IsActive(now time.Time) bool {
	return !s.IsRevoked() && now.Before(s.ExpiresAt)
}

// Revoke marks the session revoked. Returns false if it already was;
// revocation is a one-way transition and repeated calls are no-ops.
func (s *Session) Revoke(now time.Time) bool {
	if s.IsRevoked() {
		return false
	}
	s.RevokedAt = &now
	return true
}

// RecordActivity updates the last-seen timestamp. Called on every validated
// use, which doubles as activity tracking without a separate heartbeat.
func (s *Session) RecordActivity(now time.Time) {
	s.LastSeenAt = now
}

// SessionMetadata carries the client context of a login request.
type SessionMetadata struct {
	IP        string
	UserAgent string
}

// FederatedAccount links one provider subject to exactly one user.
type FederatedAccount struct {
	ProviderID id.ProviderID
	Subject    string
	UserID     id.UserID
	LastClaims map[string]any
	LastUsedAt time.Time
	CreatedAt  time.Time
}
