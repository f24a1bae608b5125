package federation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"painchain/pkg/clock"
	dErrors "painchain/pkg/domain-errors"
)

type TransitSuite struct {
	suite.Suite
	clock *clock.Fixed
	codec *TransitCodec
}

func (s *TransitSuite) SetupTest() {
	s.clock = clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	codec, err := NewTransitCodec("deployment-secret", 10*time.Minute, s.clock)
	require.NoError(s.T(), err)
	s.codec = codec
}

func (s *TransitSuite) TestRoundTrip() {
	state, err := s.codec.NewState("okta")
	require.NoError(s.T(), err)
	require.NotEmpty(s.T(), state.Nonce)

	encoded, err := s.codec.Encrypt(state)
	require.NoError(s.T(), err)

	decoded, err := s.codec.Decrypt(encoded)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), state.ProviderID, decoded.ProviderID)
	assert.Equal(s.T(), state.Nonce, decoded.Nonce)
}

func (s *TransitSuite) TestStaleStateRejected() {
	state, err := s.codec.NewState("okta")
	require.NoError(s.T(), err)
	encoded, err := s.codec.Encrypt(state)
	require.NoError(s.T(), err)

	s.clock.Advance(10*time.Minute + time.Second)

	_, err = s.codec.Decrypt(encoded)
	require.Error(s.T(), err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *TransitSuite) TestWithinWindowAccepted() {
	state, err := s.codec.NewState("okta")
	require.NoError(s.T(), err)
	encoded, err := s.codec.Encrypt(state)
	require.NoError(s.T(), err)

	s.clock.Advance(9 * time.Minute)

	_, err = s.codec.Decrypt(encoded)
	assert.NoError(s.T(), err)
}

func (s *TransitSuite) TestTamperedStateRejected() {
	state, err := s.codec.NewState("okta")
	require.NoError(s.T(), err)
	encoded, err := s.codec.Encrypt(state)
	require.NoError(s.T(), err)

	raw := []byte(encoded)
	raw[len(raw)-1] ^= 0x01

	_, err = s.codec.Decrypt(string(raw))
	require.Error(s.T(), err)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *TransitSuite) TestGarbageRejected() {
	for _, input := range []string{"", "not-base64!!!", "YWJjZGVm"} {
		_, err := s.codec.Decrypt(input)
		assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidState), "input %q", input)
	}
}

func (s *TransitSuite) TestDifferentSecretCannotDecrypt() {
	state, err := s.codec.NewState("okta")
	require.NoError(s.T(), err)
	encoded, err := s.codec.Encrypt(state)
	require.NoError(s.T(), err)

	other, err := NewTransitCodec("another-secret", 10*time.Minute, s.clock)
	require.NoError(s.T(), err)

	_, err = other.Decrypt(encoded)
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestTransitSuite(t *testing.T) {
	suite.Run(t, new(TransitSuite))
}
