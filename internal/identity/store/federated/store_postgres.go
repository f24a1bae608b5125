package federated

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"painchain/internal/identity/models"
	"painchain/internal/sentinel"
	id "painchain/pkg/domain"
)

// PostgresStore persists federated account links in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindBySubject(ctx context.Context, providerID id.ProviderID, subject string) (*models.FederatedAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		select provider_id, subject, user_id, last_claims, last_used_at, created_at
		from federated_accounts
		where provider_id = $1 and subject = $2`,
		providerID.String(), subject)

	var (
		link      models.FederatedAccount
		provider  string
		userID    uuid.UUID
		rawClaims []byte
	)
	err := row.Scan(&provider, &link.Subject, &userID, &rawClaims, &link.LastUsedAt, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("federated account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find federated account: %w", err)
	}
	link.ProviderID = id.ProviderID(provider)
	link.UserID = id.UserID(userID)
	if len(rawClaims) > 0 {
		if err := json.Unmarshal(rawClaims, &link.LastClaims); err != nil {
			return nil, fmt.Errorf("unmarshal federated claims: %w", err)
		}
	}
	return &link, nil
}

// Upsert creates the link on first login and refreshes claims and the
// last-used timestamp on later ones. The conflict update is conditional on
// the stored user: one provider subject maps to exactly one user, so a
// conflicting row held by someone else reports ErrAlreadyUsed instead of
// silently relinking.
func (s *PostgresStore) Upsert(ctx context.Context, link *models.FederatedAccount) error {
	rawClaims, err := json.Marshal(link.LastClaims)
	if err != nil {
		return fmt.Errorf("marshal federated claims: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		insert into federated_accounts (provider_id, subject, user_id, last_claims, last_used_at, created_at)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (provider_id, subject)
		do update set last_claims = excluded.last_claims, last_used_at = excluded.last_used_at
		where federated_accounts.user_id = excluded.user_id`,
		link.ProviderID.String(), link.Subject, uuid.UUID(link.UserID),
		rawClaims, link.LastUsedAt, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert federated account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert federated account rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("federated subject already linked: %w", sentinel.ErrAlreadyUsed)
	}
	return nil
}
