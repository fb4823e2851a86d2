package sales

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

// Repository provides PostgreSQL backed persistence for invoicing.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations. It carries the ledger and
// stock queries so an invoice, its stock issues and its journal entries share
// one transaction.
type TxRepository interface {
	accounting.LedgerTx
	inventory.StockTx

	GetProduct(ctx context.Context, id int64) (masterdata.Product, error)
	GetPartner(ctx context.Context, id int64) (masterdata.Partner, error)

	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	SetLineMovement(ctx context.Context, lineID, movementID int64) error
	UpdateInvoicePosting(ctx context.Context, id int64, status PostingStatus, postingErr string, entryID *int64) error
	UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, amountPaid decimal.Decimal) error
	CountPayments(ctx context.Context, invoiceID int64) (int, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
}

type txRepo struct {
	accounting.LedgerTx
	inventory.StockTx
	tx pgx.Tx
}

// WithTx wraps callback in read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			LedgerTx: accounting.NewTxRepository(tx),
			StockTx:  inventory.NewStockTx(tx),
			tx:       tx,
		})
	})
}

// GetInvoice loads an invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, r.pool, id, false)
}

// ListInvoices returns invoice headers, newest first.
func (r *Repository) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE ($1 = 0 OR partner_id = $1)
  AND ($2 = '' OR status = $2)
  AND ($3 = '' OR posting_status = $3)
ORDER BY id DESC LIMIT $4`, filter.PartnerID, string(filter.Status), string(filter.PostingStatus), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListPayments returns the payments of an invoice in sequence order.
func (r *Repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, seq, amount, paid_at, journal_entry_id
FROM invoice_payments WHERE invoice_id=$1 ORDER BY seq`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Seq, &p.Amount, &p.PaidAt, &p.JournalEntryID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const invoiceColumns = `id, number, partner_id, date, currency_code, exchange_rate, status, subtotal, tax_amount, total,
amount_paid, posting_status, posting_error, journal_entry_id, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.PartnerID, &inv.Date, &inv.CurrencyCode, &inv.ExchangeRate,
		&inv.Status, &inv.Subtotal, &inv.TaxAmount, &inv.Total, &inv.AmountPaid, &inv.PostingStatus,
		&inv.PostingError, &inv.JournalEntryID, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func loadInvoice(ctx context.Context, q db.Querier, id int64, forUpdate bool) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	inv, err := scanInvoice(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, invoice_id, line_no, product_id, quantity, unit_price, taxable, line_total, movement_id
FROM invoice_lines WHERE invoice_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.LineNo, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.Taxable, &l.LineTotal, &l.MovementID); err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	return inv, rows.Err()
}

func (r *txRepo) GetProduct(ctx context.Context, id int64) (masterdata.Product, error) {
	return masterdata.LoadProduct(ctx, r.tx, id)
}

func (r *txRepo) GetPartner(ctx context.Context, id int64) (masterdata.Partner, error) {
	return masterdata.LoadPartner(ctx, r.tx, id)
}

func (r *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (number, partner_id, date, currency_code, exchange_rate, status,
subtotal, tax_amount, total, amount_paid, posting_status, posting_error)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id, created_at, updated_at`,
		inv.Number, inv.PartnerID, inv.Date, inv.CurrencyCode, inv.ExchangeRate, inv.Status,
		inv.Subtotal, inv.TaxAmount, inv.Total, inv.AmountPaid, inv.PostingStatus, inv.PostingError).
		Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return Invoice{}, ErrDuplicateInvoice
		}
		return Invoice{}, err
	}
	for i := range inv.Lines {
		line := &inv.Lines[i]
		line.InvoiceID = inv.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, line_no, product_id, quantity, unit_price, taxable, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			inv.ID, line.LineNo, line.ProductID, line.Quantity, line.UnitPrice, line.Taxable, line.LineTotal).Scan(&line.ID); err != nil {
			return Invoice{}, err
		}
	}
	return inv, nil
}

func (r *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, r.tx, id, true)
}

func (r *txRepo) SetLineMovement(ctx context.Context, lineID, movementID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoice_lines SET movement_id=$2 WHERE id=$1`, lineID, movementID)
	return err
}

func (r *txRepo) UpdateInvoicePosting(ctx context.Context, id int64, status PostingStatus, postingErr string, entryID *int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET posting_status=$2, posting_error=$3, journal_entry_id=$4, updated_at=NOW() WHERE id=$1`,
		id, status, postingErr, entryID)
	return err
}

func (r *txRepo) UpdateInvoiceStatus(ctx context.Context, id int64, status InvoiceStatus, amountPaid decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET status=$2, amount_paid=$3, updated_at=NOW() WHERE id=$1`, id, status, amountPaid)
	return err
}

func (r *txRepo) CountPayments(ctx context.Context, invoiceID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM invoice_payments WHERE invoice_id=$1`, invoiceID).Scan(&n)
	return n, err
}

func (r *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_payments (invoice_id, seq, amount, paid_at, journal_entry_id)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, p.InvoiceID, p.Seq, p.Amount, p.PaidAt, p.JournalEntryID).Scan(&p.ID)
	return p, err
}
