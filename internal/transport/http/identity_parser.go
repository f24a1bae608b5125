package httptransport

import (
	"painchain/internal/identity/token"
	"painchain/internal/platform/middleware"
)

// IdentityParser adapts the token service to the middleware's TokenParser
// contract, turning validated claims into a typed identity.
type IdentityParser struct {
	tokens *token.Service
}

func NewIdentityParser(tokens *token.Service) *IdentityParser {
	return &IdentityParser{tokens: tokens}
}

func (p *IdentityParser) Parse(tokenString string) (*middleware.Identity, error) {
	claims, err := p.tokens.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	userID, tenantID, sessionID, role, err := claims.Identity()
	if err != nil {
		return nil, err
	}
	return &middleware.Identity{
		UserID:    userID,
		TenantID:  tenantID,
		SessionID: sessionID,
		Email:     claims.Email,
		Role:      role,
	}, nil
}
