package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"painchain/internal/invitation/models"
	"painchain/internal/sentinel"
	id "painchain/pkg/domain"
)

// PostgresInvitationSuite covers the conditional-update redemption path and
// its failure diagnosis against a mocked driver.
type PostgresInvitationSuite struct {
	suite.Suite
	ctx   context.Context
	mock  sqlmock.Sqlmock
	store *PostgresStore
	now   time.Time
}

func (s *PostgresInvitationSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	require.NoError(s.T(), err)
	s.ctx = context.Background()
	s.mock = mock
	s.store = NewPostgres(db)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresInvitationSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *PostgresInvitationSuite) invitationRow(inv *models.Invitation) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"token", "tenant_id", "creator_id", "role", "expires_at",
		"max_uses", "use_count", "used_by", "revoked_at", "revoked_by", "created_at",
	})
	var revokedAt any
	if inv.RevokedAt != nil {
		revokedAt = *inv.RevokedAt
	}
	return rows.AddRow(inv.Token, inv.TenantID.String(), inv.CreatorID.String(),
		inv.Role.String(), inv.ExpiresAt, inv.MaxUses, inv.UseCount, nil, revokedAt, nil, inv.CreatedAt)
}

func (s *PostgresInvitationSuite) sampleInvitation() *models.Invitation {
	return &models.Invitation{
		Token:     "inv-token",
		TenantID:  id.NewTenantID(),
		CreatorID: id.NewUserID(),
		Role:      id.RoleMember,
		ExpiresAt: s.now.Add(24 * time.Hour),
		MaxUses:   1,
		CreatedAt: s.now,
	}
}

func (s *PostgresInvitationSuite) TestConsumeSucceedsOnMatchedRow() {
	userID := id.NewUserID()

	s.mock.ExpectExec("update invitations").
		WithArgs("inv-token", uuid.UUID(userID), s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(s.T(), s.store.Consume(s.ctx, "inv-token", userID, s.now))
}

func (s *PostgresInvitationSuite) TestConsumeDiagnosesExhausted() {
	inv := s.sampleInvitation()
	inv.UseCount = 1

	s.mock.ExpectExec("update invitations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery("select (.+) from invitations where token =").
		WithArgs("inv-token").
		WillReturnRows(s.invitationRow(inv))

	err := s.store.Consume(s.ctx, "inv-token", id.NewUserID(), s.now)
	assert.ErrorIs(s.T(), err, sentinel.ErrExhausted)
}

func (s *PostgresInvitationSuite) TestConsumeDiagnosesRevoked() {
	inv := s.sampleInvitation()
	revoked := s.now.Add(-time.Hour)
	inv.RevokedAt = &revoked

	s.mock.ExpectExec("update invitations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery("select (.+) from invitations where token =").
		WithArgs("inv-token").
		WillReturnRows(s.invitationRow(inv))

	err := s.store.Consume(s.ctx, "inv-token", id.NewUserID(), s.now)
	assert.ErrorIs(s.T(), err, sentinel.ErrRevoked)
}

func (s *PostgresInvitationSuite) TestConsumeDiagnosesExpired() {
	inv := s.sampleInvitation()
	inv.ExpiresAt = s.now.Add(-time.Minute)

	s.mock.ExpectExec("update invitations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery("select (.+) from invitations where token =").
		WithArgs("inv-token").
		WillReturnRows(s.invitationRow(inv))

	err := s.store.Consume(s.ctx, "inv-token", id.NewUserID(), s.now)
	assert.ErrorIs(s.T(), err, sentinel.ErrExpired)
}

func (s *PostgresInvitationSuite) TestConsumeUnknownToken() {
	s.mock.ExpectExec("update invitations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery("select (.+) from invitations where token =").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"token"}))

	err := s.store.Consume(s.ctx, "missing", id.NewUserID(), s.now)
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func TestPostgresInvitationSuite(t *testing.T) {
	suite.Run(t, new(PostgresInvitationSuite))
}
