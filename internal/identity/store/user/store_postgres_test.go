package user

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"painchain/internal/identity/models"
	"painchain/internal/sentinel"
	id "painchain/pkg/domain"
)

// PostgresUserSuite checks the SQL layer in isolation: parameter shaping,
// row scanning, and driver error translation to sentinel errors.
type PostgresUserSuite struct {
	suite.Suite
	ctx   context.Context
	mock  sqlmock.Sqlmock
	store *PostgresStore
}

func (s *PostgresUserSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	require.NoError(s.T(), err)
	s.ctx = context.Background()
	s.mock = mock
	s.store = NewPostgres(db)
}

func (s *PostgresUserSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
}

func (s *PostgresUserSuite) sampleUser() *models.User {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.User{
		ID:           id.NewUserID(),
		Email:        "alice@example.com",
		PasswordHash: "$2a$12$hash",
		TenantID:     id.NewTenantID(),
		Role:         id.RoleOwner,
		DisplayName:  "Alice",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *PostgresUserSuite) TestCreateLowercasesEmail() {
	user := s.sampleUser()
	user.Email = "Alice@Example.COM"

	s.mock.ExpectExec("insert into users").
		WithArgs(uuid.UUID(user.ID), "alice@example.com", user.PasswordHash,
			uuid.UUID(user.TenantID), "owner", user.DisplayName,
			true, sqlmock.AnyArg(), user.CreatedAt, user.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(s.T(), s.store.Create(s.ctx, user))
}

func (s *PostgresUserSuite) TestCreateUniqueViolation() {
	user := s.sampleUser()

	s.mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := s.store.Create(s.ctx, user)
	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, sentinel.ErrAlreadyUsed)
}

func (s *PostgresUserSuite) TestFindByEmailScansRow() {
	user := s.sampleUser()
	lastLogin := time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "tenant_id", "role",
		"display_name", "active", "last_login_at", "created_at", "updated_at",
	}).AddRow(
		user.ID.String(), user.Email, user.PasswordHash, user.TenantID.String(), "owner",
		user.DisplayName, true, lastLogin, user.CreatedAt, user.UpdatedAt,
	)
	s.mock.ExpectQuery("select (.+) from users where email =").
		WithArgs("alice@example.com").
		WillReturnRows(rows)

	// Lookup must normalize the email before hitting the index.
	found, err := s.store.FindByEmail(s.ctx, "Alice@Example.COM")
	require.NoError(s.T(), err)

	assert.Equal(s.T(), user.ID, found.ID)
	assert.Equal(s.T(), id.RoleOwner, found.Role)
	require.NotNil(s.T(), found.LastLoginAt)
	assert.Equal(s.T(), lastLogin, *found.LastLoginAt)
}

func (s *PostgresUserSuite) TestFindByIDNullLastLogin() {
	user := s.sampleUser()

	rows := sqlmock.NewRows([]string{
		"id", "email", "password_hash", "tenant_id", "role",
		"display_name", "active", "last_login_at", "created_at", "updated_at",
	}).AddRow(
		user.ID.String(), user.Email, user.PasswordHash, user.TenantID.String(), "member",
		user.DisplayName, true, nil, user.CreatedAt, user.UpdatedAt,
	)
	s.mock.ExpectQuery("select (.+) from users where id =").
		WithArgs(uuid.UUID(user.ID)).
		WillReturnRows(rows)

	found, err := s.store.FindByID(s.ctx, user.ID)
	require.NoError(s.T(), err)
	assert.Nil(s.T(), found.LastLoginAt)
}

func (s *PostgresUserSuite) TestFindByIDNotFound() {
	userID := id.NewUserID()

	s.mock.ExpectQuery("select (.+) from users where id =").
		WithArgs(uuid.UUID(userID)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.store.FindByID(s.ctx, userID)
	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func (s *PostgresUserSuite) TestUpdateMissingRow() {
	user := s.sampleUser()

	s.mock.ExpectExec("update users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.store.Update(s.ctx, user)
	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, sentinel.ErrNotFound)
}

func TestPostgresUserSuite(t *testing.T) {
	suite.Run(t, new(PostgresUserSuite))
}
