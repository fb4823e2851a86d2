package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hermes-erp/hermes/internal/platform/db"
)

// StockTx is the slice of the inventory store used inside a caller's
// transaction.
type StockTx interface {
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
	// GetStockForUpdate returns the stock row locked until the end of the
	// transaction, creating an empty one when missing.
	GetStockForUpdate(ctx context.Context, productID, warehouseID int64) (Stock, error)
	UpsertStock(ctx context.Context, s Stock) error
	SetMovementJournal(ctx context.Context, movementID, entryID int64) error
	GetMovement(ctx context.Context, id int64) (Movement, error)
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// NewStockTx binds the stock queries to an open transaction.
func NewStockTx(tx pgx.Tx) StockTx {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, StockTx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *Repository) GetStock(ctx context.Context, productID, warehouseID int64) (Stock, error) {
	var s Stock
	err := r.pool.QueryRow(ctx, `SELECT product_id, warehouse_id, quantity, avg_cost, updated_at
FROM stock WHERE product_id=$1 AND warehouse_id=$2`, productID, warehouseID).
		Scan(&s.ProductID, &s.WarehouseID, &s.Quantity, &s.AvgCost, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, ErrStockNotFound
	}
	return s, err
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM inventory_movements
WHERE ($1 = 0 OR product_id = $1)
  AND ($2 = 0 OR warehouse_id = $2)
  AND ($3 = '' OR ref_module = $3)
  AND ($4 = 0 OR ref_id = $4)
ORDER BY id DESC LIMIT $5`, filter.ProductID, filter.WarehouseID, filter.RefModule, filter.RefID, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.Code, &m.Kind, &m.ProductID, &m.WarehouseID, &m.Quantity, &m.UnitCost,
		&m.RefModule, &m.RefID, &m.JournalEntryID, &m.PostedAt)
	return m, err
}

const movementColumns = `id, code, kind, product_id, warehouse_id, quantity, unit_cost, ref_module, ref_id, journal_entry_id, posted_at`

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements
(code, kind, product_id, warehouse_id, quantity, unit_cost, ref_module, ref_id, journal_entry_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		m.Code, m.Kind, m.ProductID, m.WarehouseID, m.Quantity, m.UnitCost, m.RefModule, m.RefID, m.JournalEntryID, m.PostedAt).
		Scan(&m.ID)
	return m, err
}

func (r *txRepo) GetStockForUpdate(ctx context.Context, productID, warehouseID int64) (Stock, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO stock (product_id, warehouse_id) VALUES ($1,$2)
ON CONFLICT (product_id, warehouse_id) DO NOTHING`, productID, warehouseID); err != nil {
		return Stock{}, err
	}
	var s Stock
	err := r.tx.QueryRow(ctx, `SELECT product_id, warehouse_id, quantity, avg_cost, updated_at
FROM stock WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`, productID, warehouseID).
		Scan(&s.ProductID, &s.WarehouseID, &s.Quantity, &s.AvgCost, &s.UpdatedAt)
	return s, err
}

func (r *txRepo) UpsertStock(ctx context.Context, s Stock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock (product_id, warehouse_id, quantity, avg_cost, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (product_id, warehouse_id) DO UPDATE
SET quantity=EXCLUDED.quantity, avg_cost=EXCLUDED.avg_cost, updated_at=EXCLUDED.updated_at`,
		s.ProductID, s.WarehouseID, s.Quantity, s.AvgCost, s.UpdatedAt)
	return err
}

func (r *txRepo) SetMovementJournal(ctx context.Context, movementID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_movements SET journal_entry_id=$2 WHERE id=$1`, movementID, entryID)
	return err
}

func (r *txRepo) GetMovement(ctx context.Context, id int64) (Movement, error) {
	m, err := scanMovement(r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM inventory_movements WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	return m, err
}
