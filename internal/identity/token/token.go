// Package token mints and parses the signed bearer tokens issued after login.
// It is a stateless cryptographic layer: revocation lives in the session
// ledger, keyed by the sid claim embedded here.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"painchain/pkg/clock"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// Fixed issuer/audience pair. Tokens minted for a different deployment fail
// parsing even when signed with the same secret.
const (
	Issuer   = "painchain-auth"
	Audience = "painchain-api"
)

// Claims is the payload carried by every bearer token. The registered ID
// claim (jti) holds the session identifier.
type Claims struct {
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service mints and validates HS256-signed bearer tokens.
type Service struct {
	signingKey []byte
	tokenTTL   time.Duration
	clock      clock.Clock
}

func New(signingKey string, tokenTTL time.Duration, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
		clock:      clk,
	}
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration { return s.tokenTTL }

// Mint signs a token for the given identity. The session ID becomes the jti
// claim so the ledger can revoke it server-side.
func (s *Service) Mint(userID id.UserID, email string, tenantID id.TenantID, role id.Role, sessionID id.SessionID) (string, error) {
	now := s.clock.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:    email,
		TenantID: tenantID.String(),
		Role:     role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Audience:  []string{Audience},
			ID:        sessionID.String(),
		},
	})

	signed, err := t.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not sign token")
	}
	return signed, nil
}

// Parse validates signature, expiry, issuer, and audience, and returns the
// claims. Expiry is a distinct failure kind from a bad signature because
// callers treat them differently (refresh vs. force re-login).
func (s *Service) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "empty token")
	}

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeTokenExpired, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeTokenInvalid, "invalid token")
	}
	return claims, nil
}

// Identity converts validated claims into typed identifiers.
func (c *Claims) Identity() (userID id.UserID, tenantID id.TenantID, sessionID id.SessionID, role id.Role, err error) {
	if userID, err = id.ParseUserID(c.Subject); err != nil {
		return userID, tenantID, sessionID, role, dErrors.New(dErrors.CodeTokenInvalid, "invalid subject claim")
	}
	if tenantID, err = id.ParseTenantID(c.TenantID); err != nil {
		return userID, tenantID, sessionID, role, dErrors.New(dErrors.CodeTokenInvalid, "invalid tenant claim")
	}
	if sessionID, err = id.ParseSessionID(c.ID); err != nil {
		return userID, tenantID, sessionID, role, dErrors.New(dErrors.CodeTokenInvalid, "invalid session claim")
	}
	if role, err = id.ParseRole(c.Role); err != nil {
		return userID, tenantID, sessionID, role, dErrors.New(dErrors.CodeTokenInvalid, "invalid role claim")
	}
	return userID, tenantID, sessionID, role, nil
}
