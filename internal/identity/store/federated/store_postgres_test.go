package federated

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"painchain/internal/identity/models"
	"painchain/internal/sentinel"
	id "painchain/pkg/domain"
)

// PostgresFederatedSuite checks the conditional upsert guarding the
// one-subject-one-user contract of provider links.
type PostgresFederatedSuite struct {
	suite.Suite
	ctx   context.Context
	mock  sqlmock.Sqlmock
	store *PostgresStore
}

func (s *PostgresFederatedSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	require.NoError(s.T(), err)
	s.ctx = context.Background()
	s.mock = mock
	s.store = NewPostgres(db)
}

func (s *PostgresFederatedSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *PostgresFederatedSuite) sampleLink() *models.FederatedAccount {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.FederatedAccount{
		ProviderID: "corp-idp",
		Subject:    "subject-1",
		UserID:     id.NewUserID(),
		LastClaims: map[string]any{"sub": "subject-1"},
		LastUsedAt: now,
		CreatedAt:  now,
	}
}

func (s *PostgresFederatedSuite) TestUpsertInsertsAndRefreshes() {
	link := s.sampleLink()

	s.mock.ExpectExec("insert into federated_accounts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(s.T(), s.store.Upsert(s.ctx, link))
}

func (s *PostgresFederatedSuite) TestUpsertRejectsRelinkToDifferentUser() {
	link := s.sampleLink()

	// The conditional update matches nothing when the stored row belongs to
	// another user, so the driver reports zero affected rows.
	s.mock.ExpectExec("insert into federated_accounts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.store.Upsert(s.ctx, link)
	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, sentinel.ErrAlreadyUsed)
}

func (s *PostgresFederatedSuite) TestFindBySubjectNotFound() {
	s.mock.ExpectQuery("select (.+) from federated_accounts").
		WithArgs("corp-idp", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"provider_id"}))

	_, err := s.store.FindBySubject(s.ctx, "corp-idp", "missing")
	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func TestPostgresFederatedSuite(t *testing.T) {
	suite.Run(t, new(PostgresFederatedSuite))
}
