package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"painchain/internal/invitation/models"
	"painchain/internal/sentinel"
	id "painchain/pkg/domain"
)

// PostgresStore persists invitations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const invitationColumns = `token, tenant_id, creator_id, role, expires_at, max_uses, use_count, used_by, revoked_at, revoked_by, created_at`

func (s *PostgresStore) Create(ctx context.Context, inv *models.Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		insert into invitations (`+invitationColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inv.Token, uuid.UUID(inv.TenantID), uuid.UUID(inv.CreatorID), inv.Role.String(),
		inv.ExpiresAt, inv.MaxUses, inv.UseCount, nullUser(inv.UsedBy),
		nullTime(inv.RevokedAt), nullUser(inv.RevokedBy), inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+invitationColumns+` from invitations where token = $1`, token)
	inv, err := scanInvitation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invitation not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find invitation: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+invitationColumns+` from invitations where tenant_id = $1 order by created_at desc`,
		uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return out, nil
}

// Consume performs the conditional update guarding the max-uses invariant.
// The increment only lands while use_count < max_uses and the invitation is
// neither revoked nor expired; concurrent redeemers race on the row lock and
// the losers fall through to the diagnosis query below.
func (s *PostgresStore) Consume(ctx context.Context, token string, userID id.UserID, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update invitations
		set use_count = use_count + 1, used_by = $2
		where token = $1
		  and revoked_at is null
		  and expires_at > $3
		  and use_count < max_uses`,
		token, uuid.UUID(userID), now)
	if err != nil {
		return fmt.Errorf("consume invitation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume invitation rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// The conditional update matched nothing; re-read to report why.
	inv, err := s.FindByToken(ctx, token)
	if err != nil {
		return err
	}
	switch {
	case inv.IsRevoked():
		return fmt.Errorf("invitation revoked: %w", sentinel.ErrRevoked)
	case inv.IsExpired(now):
		return fmt.Errorf("invitation expired: %w", sentinel.ErrExpired)
	default:
		return fmt.Errorf("invitation exhausted: %w", sentinel.ErrExhausted)
	}
}

// Release returns one consumed use. The guard keeps the count non-negative if
// a stray compensation races a concurrent redemption.
func (s *PostgresStore) Release(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		update invitations
		set use_count = use_count - 1
		where token = $1 and use_count > 0`, token)
	if err != nil {
		return fmt.Errorf("release invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, token string, revokedBy id.UserID, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update invitations
		set revoked_at = $2, revoked_by = $3
		where token = $1 and revoked_at is null`,
		token, now, uuid.UUID(revokedBy))
	if err != nil {
		return fmt.Errorf("revoke invitation: %w", err)
	}
	return nil
}

func scanInvitation(scan func(dest ...any) error) (*models.Invitation, error) {
	var (
		inv       models.Invitation
		tenantID  uuid.UUID
		creatorID uuid.UUID
		role      string
		usedBy    uuid.NullUUID
		revokedAt sql.NullTime
		revokedBy uuid.NullUUID
	)
	err := scan(&inv.Token, &tenantID, &creatorID, &role, &inv.ExpiresAt,
		&inv.MaxUses, &inv.UseCount, &usedBy, &revokedAt, &revokedBy, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	inv.TenantID = id.TenantID(tenantID)
	inv.CreatorID = id.UserID(creatorID)
	inv.Role = id.Role(role)
	if usedBy.Valid {
		u := id.UserID(usedBy.UUID)
		inv.UsedBy = &u
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		inv.RevokedAt = &t
	}
	if revokedBy.Valid {
		u := id.UserID(revokedBy.UUID)
		inv.RevokedBy = &u
	}
	return &inv, nil
}

func nullUser(userID *id.UserID) uuid.NullUUID {
	if userID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*userID), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
