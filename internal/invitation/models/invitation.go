package models

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	id "painchain/pkg/domain"
)

// Invitation is a shareable, usage-limited join link granting membership in a
// specific tenant at a specific role.
type Invitation struct {
	Token     string
	TenantID  id.TenantID
	CreatorID id.UserID
	Role      id.Role
	ExpiresAt time.Time
	MaxUses   int
	UseCount  int
	UsedBy    *id.UserID
	RevokedAt *time.Time
	RevokedBy *id.UserID
	CreatedAt time.Time
}

// NewToken generates an opaque, URL-safe invitation token.
func NewToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IsRevoked reports whether the invitation has been revoked.
func (i *Invitation) IsRevoked() bool { return i.RevokedAt != nil }

// IsExpired reports whether the invitation's expiry has passed at now.
func (i *Invitation) IsExpired(now time.Time) bool { return !now.Before(i.ExpiresAt) }

// IsExhausted reports whether the use count has reached the maximum.
func (i *Invitation) IsExhausted() bool { return i.UseCount >= i.MaxUses }

// PublicView is the safe subset exposed on the unauthenticated lookup
// endpoint: enough for the join page, nothing identifying the creator.
type PublicView struct {
	Token      string    `json:"token"`
	TenantName string    `json:"tenant_name"`
	Role       string    `json:"role"`
	ExpiresAt  time.Time `json:"expires_at"`
}
