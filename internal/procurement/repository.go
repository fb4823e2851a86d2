package procurement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/inventory"
	"github.com/hermes-erp/hermes/internal/masterdata"
	"github.com/hermes-erp/hermes/internal/platform/db"
)

// Repository provides PostgreSQL persistence for procurement.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. Receipts move stock and
// post to the ledger inside the same transaction.
type TxRepository interface {
	accounting.LedgerTx
	inventory.StockTx

	GetProduct(ctx context.Context, id int64) (masterdata.Product, error)
	GetPartner(ctx context.Context, id int64) (masterdata.Partner, error)

	InsertOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateOrderLineReceived(ctx context.Context, lineID int64, received decimal.Decimal) error
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error

	InsertReceipt(ctx context.Context, r Receipt) (Receipt, error)
	GetReceiptForUpdate(ctx context.Context, id int64) (Receipt, error)
	SetReceiptLineMovement(ctx context.Context, lineID, movementID int64) error
	UpdateReceiptPosting(ctx context.Context, id int64, status PostingStatus, postingErr string, entryID *int64) error
}

type txRepo struct {
	accounting.LedgerTx
	inventory.StockTx
	tx pgx.Tx
}

// WithTx runs fn inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			LedgerTx: accounting.NewTxRepository(tx),
			StockTx:  inventory.NewStockTx(tx),
			tx:       tx,
		})
	})
}

// GetOrder loads an order with its lines.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadOrder(ctx, r.pool, id, false)
}

// ListOrders returns order headers, newest first.
func (r *Repository) ListOrders(ctx context.Context, limit int) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM purchase_orders ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

// GetReceipt loads a receipt with its lines.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	return loadReceipt(ctx, r.pool, id, false)
}

// ListReceipts returns receipt headers, newest first.
func (r *Repository) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+receiptColumns+` FROM purchase_receipts
WHERE ($1 = 0 OR order_id = $1)
  AND ($2 = '' OR posting_status = $2)
ORDER BY id DESC LIMIT $3`, filter.OrderID, string(filter.PostingStatus), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

const orderColumns = `id, number, supplier_id, date, currency_code, exchange_rate, status, subtotal, tax_amount, total, created_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.Date, &po.CurrencyCode, &po.ExchangeRate,
		&po.Status, &po.Subtotal, &po.TaxAmount, &po.Total, &po.CreatedAt)
	return po, err
}

func loadOrder(ctx context.Context, q db.Querier, id int64, forUpdate bool) (PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	po, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_cost, received_qty
FROM purchase_order_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitCost, &l.ReceivedQty); err != nil {
			return PurchaseOrder{}, err
		}
		po.Lines = append(po.Lines, l)
	}
	return po, rows.Err()
}

const receiptColumns = `id, number, order_id, warehouse_id, date, total, posting_status, posting_error, journal_entry_id, created_at`

func scanReceipt(row pgx.Row) (Receipt, error) {
	var rc Receipt
	err := row.Scan(&rc.ID, &rc.Number, &rc.OrderID, &rc.WarehouseID, &rc.Date, &rc.Total,
		&rc.PostingStatus, &rc.PostingError, &rc.JournalEntryID, &rc.CreatedAt)
	return rc, err
}

func loadReceipt(ctx context.Context, q db.Querier, id int64, forUpdate bool) (Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM purchase_receipts WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rc, err := scanReceipt(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrNotFound
		}
		return Receipt{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, receipt_id, order_line_id, product_id, quantity, unit_cost, movement_id
FROM purchase_receipt_lines WHERE receipt_id=$1 ORDER BY id`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ReceiptLine
		if err := rows.Scan(&l.ID, &l.ReceiptID, &l.OrderLineID, &l.ProductID, &l.Quantity, &l.UnitCost, &l.MovementID); err != nil {
			return Receipt{}, err
		}
		rc.Lines = append(rc.Lines, l)
	}
	return rc, rows.Err()
}

func (r *txRepo) GetProduct(ctx context.Context, id int64) (masterdata.Product, error) {
	return masterdata.LoadProduct(ctx, r.tx, id)
}

func (r *txRepo) GetPartner(ctx context.Context, id int64) (masterdata.Partner, error) {
	return masterdata.LoadPartner(ctx, r.tx, id)
}

func (r *txRepo) InsertOrder(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, date, currency_code, exchange_rate, status, subtotal, tax_amount, total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		po.Number, po.SupplierID, po.Date, po.CurrencyCode, po.ExchangeRate, po.Status, po.Subtotal, po.TaxAmount, po.Total).
		Scan(&po.ID, &po.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return PurchaseOrder{}, ErrDuplicateNumber
		}
		return PurchaseOrder{}, err
	}
	for i := range po.Lines {
		line := &po.Lines[i]
		line.OrderID = po.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_lines (order_id, product_id, quantity, unit_cost, received_qty)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, po.ID, line.ProductID, line.Quantity, line.UnitCost, line.ReceivedQty).Scan(&line.ID); err != nil {
			return PurchaseOrder{}, err
		}
	}
	return po, nil
}

func (r *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadOrder(ctx, r.tx, id, true)
}

func (r *txRepo) UpdateOrderLineReceived(ctx context.Context, lineID int64, received decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_lines SET received_qty=$2 WHERE id=$1`, lineID, received)
	return err
}

func (r *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, id, status)
	return err
}

func (r *txRepo) InsertReceipt(ctx context.Context, rc Receipt) (Receipt, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_receipts (number, order_id, warehouse_id, date, total, posting_status, posting_error)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		rc.Number, rc.OrderID, rc.WarehouseID, rc.Date, rc.Total, rc.PostingStatus, rc.PostingError).
		Scan(&rc.ID, &rc.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Receipt{}, ErrDuplicateNumber
		}
		return Receipt{}, err
	}
	for i := range rc.Lines {
		line := &rc.Lines[i]
		line.ReceiptID = rc.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO purchase_receipt_lines (receipt_id, order_line_id, product_id, quantity, unit_cost)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, rc.ID, line.OrderLineID, line.ProductID, line.Quantity, line.UnitCost).Scan(&line.ID); err != nil {
			return Receipt{}, err
		}
	}
	return rc, nil
}

func (r *txRepo) GetReceiptForUpdate(ctx context.Context, id int64) (Receipt, error) {
	return loadReceipt(ctx, r.tx, id, true)
}

func (r *txRepo) SetReceiptLineMovement(ctx context.Context, lineID, movementID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_receipt_lines SET movement_id=$2 WHERE id=$1`, lineID, movementID)
	return err
}

func (r *txRepo) UpdateReceiptPosting(ctx context.Context, id int64, status PostingStatus, postingErr string, entryID *int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_receipts SET posting_status=$2, posting_error=$3, journal_entry_id=$4 WHERE id=$1`,
		id, status, postingErr, entryID)
	return err
}
