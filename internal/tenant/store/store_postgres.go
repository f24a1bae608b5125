package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"painchain/internal/sentinel"
	"painchain/internal/tenant/models"
	id "painchain/pkg/domain"
)

// PostgresStore persists tenants in PostgreSQL. Domains are stored as a
// JSONB array and additionally queried via containment for auto-join lookups.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tenantColumns = `id, slug, name, domains, created_at, updated_at`

func (s *PostgresStore) CreateIfSlugAvailable(ctx context.Context, tenant *models.Tenant) error {
	domains, err := json.Marshal(tenant.Domains)
	if err != nil {
		return fmt.Errorf("marshal tenant domains: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into tenants (`+tenantColumns+`)
		values ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(tenant.ID), tenant.Slug, tenant.Name, domains,
		tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("slug taken: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+tenantColumns+` from tenants where id = $1`, uuid.UUID(tenantID))
	return scanTenant(row)
}

func (s *PostgresStore) FindBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+tenantColumns+` from tenants where slug = $1`, slug)
	return scanTenant(row)
}

func (s *PostgresStore) FindByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	domainJSON, err := json.Marshal([]string{strings.ToLower(domain)})
	if err != nil {
		return nil, fmt.Errorf("marshal domain: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`select `+tenantColumns+` from tenants where domains @> $1 limit 1`, domainJSON)
	return scanTenant(row)
}

func (s *PostgresStore) Update(ctx context.Context, tenant *models.Tenant) error {
	domains, err := json.Marshal(tenant.Domains)
	if err != nil {
		return fmt.Errorf("marshal tenant domains: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update tenants
		set slug = $2, name = $3, domains = $4, updated_at = $5
		where id = $1`,
		uuid.UUID(tenant.ID), tenant.Slug, tenant.Name, domains, tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tenant rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("tenant not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func scanTenant(row *sql.Row) (*models.Tenant, error) {
	var (
		tenant   models.Tenant
		tenantID uuid.UUID
		domains  []byte
	)
	err := row.Scan(&tenantID, &tenant.Slug, &tenant.Name, &domains,
		&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	tenant.ID = id.TenantID(tenantID)
	if len(domains) > 0 {
		if err := json.Unmarshal(domains, &tenant.Domains); err != nil {
			return nil, fmt.Errorf("unmarshal tenant domains: %w", err)
		}
	}
	return &tenant, nil
}
