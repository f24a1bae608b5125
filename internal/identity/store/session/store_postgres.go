package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"painchain/internal/identity/models"
	"painchain/internal/sentinel"
	id "painchain/pkg/domain"
)

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, user_id, created_at, expires_at, last_seen_at, revoked_at, ip, user_agent, display_name`

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (`+sessionColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(session.ID), uuid.UUID(session.UserID),
		session.CreatedAt, session.ExpiresAt, session.LastSeenAt,
		nullTime(session.RevokedAt), session.IP, session.UserAgent, session.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id = $1`, uuid.UUID(sessionID))
	session, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+sessionColumns+` from sessions where user_id = $1 order by created_at desc`,
		uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list sessions by user: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStore) TouchActivity(ctx context.Context, sessionID id.SessionID, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set last_seen_at = $2 where id = $1`, uuid.UUID(sessionID), now)
	if err != nil {
		return fmt.Errorf("touch session activity: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, sessionID id.SessionID, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at = $2 where id = $1 and revoked_at is null`,
		uuid.UUID(sessionID), now)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAllByUser(ctx context.Context, userID id.UserID, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at = $2 where user_id = $1 and revoked_at is null`,
		uuid.UUID(userID), now)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions by user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke sessions rows: %w", err)
	}
	return int(rows), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rows: %w", err)
	}
	return int(rows), nil
}

func scanSession(scan func(dest ...any) error) (*models.Session, error) {
	var (
		session   models.Session
		sessionID uuid.UUID
		userID    uuid.UUID
		revokedAt sql.NullTime
	)
	err := scan(&sessionID, &userID, &session.CreatedAt, &session.ExpiresAt,
		&session.LastSeenAt, &revokedAt, &session.IP, &session.UserAgent, &session.DisplayName)
	if err != nil {
		return nil, err
	}
	session.ID = id.SessionID(sessionID)
	session.UserID = id.UserID(userID)
	if revokedAt.Valid {
		t := revokedAt.Time
		session.RevokedAt = &t
	}
	return &session, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
