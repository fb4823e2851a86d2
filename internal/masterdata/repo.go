package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/platform/db"
)

// repo implements Repository interface
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

const productColumns = `id, sku, name, kind, price, unit_cost, taxable, uom`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Kind, &p.Price, &p.UnitCost, &p.Taxable, &p.UOM)
	return p, err
}

// LoadProduct reads a product through q, which may be an open transaction.
func LoadProduct(ctx context.Context, q db.Querier, id int64) (Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// LoadPartner reads a partner through q.
func LoadPartner(ctx context.Context, q db.Querier, id int64) (Partner, error) {
	var p Partner
	err := q.QueryRow(ctx, `SELECT id, tax_id, name, kind FROM partners WHERE id = $1`, id).
		Scan(&p.ID, &p.TaxID, &p.Name, &p.Kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Partner{}, ErrPartnerNotFound
	}
	return p, err
}

func (r *repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	return LoadProduct(ctx, r.db, id)
}

func (r *repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	query := `INSERT INTO products (sku, name, kind, price, unit_cost, taxable, uom)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := r.db.QueryRow(ctx, query, p.SKU, p.Name, p.Kind, p.Price, p.UnitCost, p.Taxable, p.UOM).Scan(&p.ID)
	if db.IsUniqueViolation(err, "") {
		return Product{}, ErrDuplicate
	}
	return p, err
}

func (r *repo) UpdateProductCost(ctx context.Context, id int64, cost *decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET unit_cost = $2 WHERE id = $1`, id, cost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *repo) GetPartner(ctx context.Context, id int64) (Partner, error) {
	return LoadPartner(ctx, r.db, id)
}

func (r *repo) ListPartners(ctx context.Context) ([]Partner, error) {
	rows, err := r.db.Query(ctx, `SELECT id, tax_id, name, kind FROM partners ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var partners []Partner
	for rows.Next() {
		var p Partner
		if err := rows.Scan(&p.ID, &p.TaxID, &p.Name, &p.Kind); err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

func (r *repo) CreatePartner(ctx context.Context, p Partner) (Partner, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO partners (tax_id, name, kind) VALUES ($1, $2, $3) RETURNING id`,
		p.TaxID, p.Name, p.Kind).Scan(&p.ID)
	if db.IsUniqueViolation(err, "") {
		return Partner{}, ErrDuplicate
	}
	return p, err
}

func (r *repo) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM warehouses WHERE id = $1`, id).Scan(&w.ID, &w.Code, &w.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrWarehouseNotFound
	}
	return w, err
}

func (r *repo) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name FROM warehouses ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

func (r *repo) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO warehouses (code, name) VALUES ($1, $2) RETURNING id`, w.Code, w.Name).Scan(&w.ID)
	if db.IsUniqueViolation(err, "") {
		return Warehouse{}, ErrDuplicate
	}
	return w, err
}
