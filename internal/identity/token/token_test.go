package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"painchain/pkg/clock"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

type TokenSuite struct {
	suite.Suite
	clock   *clock.Fixed
	service *Service

	userID    id.UserID
	tenantID  id.TenantID
	sessionID id.SessionID
}

func (s *TokenSuite) SetupTest() {
	s.clock = clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s.service = New("test-signing-secret", 7*24*time.Hour, s.clock)
	s.userID = id.NewUserID()
	s.tenantID = id.NewTenantID()
	s.sessionID = id.NewSessionID()
}

func (s *TokenSuite) mint() string {
	signed, err := s.service.Mint(s.userID, "alice@example.com", s.tenantID, id.RoleAdmin, s.sessionID)
	require.NoError(s.T(), err)
	return signed
}

func (s *TokenSuite) TestRoundTrip() {
	claims, err := s.service.Parse(s.mint())
	require.NoError(s.T(), err)

	userID, tenantID, sessionID, role, err := claims.Identity()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), s.userID, userID)
	assert.Equal(s.T(), s.tenantID, tenantID)
	assert.Equal(s.T(), s.sessionID, sessionID)
	assert.Equal(s.T(), id.RoleAdmin, role)
	assert.Equal(s.T(), "alice@example.com", claims.Email)
}

func (s *TokenSuite) TestBitFlipRejected() {
	signed := s.mint()

	// Flip one bit near the end of the signature segment.
	raw := []byte(signed)
	raw[len(raw)-2] ^= 0x01

	_, err := s.service.Parse(string(raw))
	require.Error(s.T(), err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeTokenInvalid))
}

func (s *TokenSuite) TestExpiredIsDistinctFromInvalid() {
	signed := s.mint()

	s.clock.Advance(7*24*time.Hour + time.Minute)

	_, err := s.service.Parse(signed)
	require.Error(s.T(), err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeTokenExpired))
	assert.False(s.T(), dErrors.HasCode(err, dErrors.CodeTokenInvalid))
}

func (s *TokenSuite) TestWrongSecretRejected() {
	signed := s.mint()

	other := New("another-secret", 7*24*time.Hour, s.clock)
	_, err := other.Parse(signed)
	require.Error(s.T(), err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeTokenInvalid))
}

func (s *TokenSuite) TestEmptyToken() {
	_, err := s.service.Parse("")
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeTokenInvalid))
}

func TestTokenSuite(t *testing.T) {
	suite.Run(t, new(TokenSuite))
}
