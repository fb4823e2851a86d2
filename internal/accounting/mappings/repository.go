package mappings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/platform/db"
)

// Repository persists role mappings.
type Repository interface {
	List(ctx context.Context) ([]AccountMapping, error)
	Upsert(ctx context.Context, role Role, accountCode string) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the PostgreSQL backed mapping repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT role, account_code, updated_at FROM account_mappings ORDER BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Role, &m.AccountCode, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) Upsert(ctx context.Context, role Role, accountCode string) error {
	if role == "" || accountCode == "" {
		return errors.New("mappings: role and account code required")
	}
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (role, account_code, updated_at) VALUES ($1,$2,NOW())
ON CONFLICT (role) DO UPDATE SET account_code=EXCLUDED.account_code, updated_at=NOW()`, role, accountCode)
	if err != nil {
		if db.IsForeignKeyViolation(err, "") {
			return &accounting.AccountError{Code: accountCode, Err: accounting.ErrAccountNotFound}
		}
		return err
	}
	return nil
}

// Provider serves the effective RoleMap: configured defaults overlaid with
// rows stored in account_mappings.
type Provider struct {
	repo     Repository
	defaults RoleMap
}

// NewProvider constructs a Provider. repo may be nil to use defaults only.
func NewProvider(repo Repository, defaults RoleMap) *Provider {
	return &Provider{repo: repo, defaults: defaults}
}

// RoleMap loads the current mapping.
func (p *Provider) RoleMap(ctx context.Context) (RoleMap, error) {
	if p.repo == nil {
		return p.defaults.Merge(nil), nil
	}
	rows, err := p.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("mappings: load: %w", err)
	}
	stored := make(RoleMap, len(rows))
	for _, row := range rows {
		stored[row.Role] = row.AccountCode
	}
	return p.defaults.Merge(stored), nil
}

// Set stores a mapping override.
func (p *Provider) Set(ctx context.Context, role Role, accountCode string) error {
	if p.repo == nil {
		return errors.New("mappings: no repository configured")
	}
	return p.repo.Upsert(ctx, role, accountCode)
}
