package accounting

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/platform/db"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	LedgerTx
	ListAccounts(ctx context.Context) ([]Account, error)
	InsertAccount(ctx context.Context, account Account) error
	UpdateAccountParent(ctx context.Context, code string, parent *string) error
	SetAccountActive(ctx context.Context, code string, active bool) error
	CountLinesForAccount(ctx context.Context, code string) (int64, error)
	DeleteAccount(ctx context.Context, code string) error
	ListJournalEntries(ctx context.Context, limit int) ([]JournalEntry, error)
	TrialBalance(ctx context.Context) ([]TrialBalanceRow, error)
	UnbalancedEntries(ctx context.Context) ([]Imbalance, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the ledger queries to an open transaction so other
// modules can post journals inside their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const accountColumns = `code, name, class, natural_side, parent_code, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.Code, &a.Name, &a.Class, &a.NaturalSide, &a.ParentCode, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) GetAccount(ctx context.Context, code string) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) InsertAccount(ctx context.Context, a Account) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO accounts (code, name, class, natural_side, parent_code, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, a.Code, a.Name, a.Class, a.NaturalSide, a.ParentCode, a.IsActive, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "accounts_pkey") {
			return &AccountError{Code: a.Code, Err: ErrAccountExists}
		}
		return err
	}
	return nil
}

func (r *txRepository) UpdateAccountParent(ctx context.Context, code string, parent *string) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET parent_code=$2, updated_at=NOW() WHERE code=$1`, code, parent)
	return err
}

func (r *txRepository) SetAccountActive(ctx context.Context, code string, active bool) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET is_active=$2, updated_at=NOW() WHERE code=$1`, code, active)
	return err
}

func (r *txRepository) CountLinesForAccount(ctx context.Context, code string) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_lines WHERE account_code=$1`, code).Scan(&count)
	return count, err
}

func (r *txRepository) DeleteAccount(ctx context.Context, code string) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE code=$1`, code)
	if err != nil {
		if db.IsForeignKeyViolation(err, "") {
			return &AccountError{Code: code, Err: ErrReferentialIntegrity}
		}
		return err
	}
	return nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	entry := JournalEntry{
		Reference:    in.Reference,
		Date:         in.Date,
		Description:  in.Description,
		PartnerID:    in.PartnerID,
		CurrencyCode: in.CurrencyCode,
		ExchangeRate: in.ExchangeRate,
		SourceModule: in.SourceModule,
		ReversalOf:   in.ReversalOf,
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (reference, date, description, partner_id, currency_code, exchange_rate, source_module, reversal_of, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		in.Reference, in.Date, in.Description, in.PartnerID, in.CurrencyCode, in.ExchangeRate, in.SourceModule, in.ReversalOf, nullInt(in.ActorID)).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_journal_entries_reference") {
			return JournalEntry{}, ErrDuplicateReference
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO journal_lines (entry_id, account_code, side, amount) VALUES ($1,$2,$3,$4)`,
			entryID, line.AccountCode, line.Side, line.Amount.Round(2))
	}
	results := r.tx.SendBatch(ctx, batch)
	for range lines {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			if db.IsForeignKeyViolation(err, "") {
				return ErrAccountNotFound
			}
			return err
		}
	}
	return results.Close()
}

const entryColumns = `id, reference, date, description, partner_id, currency_code, exchange_rate, source_module, reversal_of, created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Reference, &e.Date, &e.Description, &e.PartnerID, &e.CurrencyCode, &e.ExchangeRate, &e.SourceModule, &e.ReversalOf, &e.CreatedAt)
	return e, err
}

func (r *txRepository) GetJournalByReference(ctx context.Context, reference string) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE reference=$1`, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_code, side, amount FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountCode, &l.Side, &l.Amount); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, l)
	}
	return entry, rows.Err()
}

func (r *txRepository) ListJournalEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) TrialBalance(ctx context.Context) ([]TrialBalanceRow, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.code, a.name, a.class,
       COALESCE(SUM(l.amount) FILTER (WHERE l.side='DEBIT'), 0),
       COALESCE(SUM(l.amount) FILTER (WHERE l.side='CREDIT'), 0)
FROM accounts a
LEFT JOIN journal_lines l ON l.account_code = a.code
GROUP BY a.code, a.name, a.class
ORDER BY a.code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		var debit, credit decimal.Decimal
		if err := rows.Scan(&row.AccountCode, &row.AccountName, &row.Class, &debit, &credit); err != nil {
			return nil, err
		}
		row.Debit = debit
		row.Credit = credit
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *txRepository) UnbalancedEntries(ctx context.Context) ([]Imbalance, error) {
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.reference,
       COALESCE(SUM(l.amount) FILTER (WHERE l.side='DEBIT'), 0) AS debit,
       COALESCE(SUM(l.amount) FILTER (WHERE l.side='CREDIT'), 0) AS credit
FROM journal_entries e
LEFT JOIN journal_lines l ON l.entry_id = e.id
GROUP BY e.id, e.reference
HAVING ABS(COALESCE(SUM(l.amount) FILTER (WHERE l.side='DEBIT'), 0)
         - COALESCE(SUM(l.amount) FILTER (WHERE l.side='CREDIT'), 0)) > $1
    OR COUNT(l.id) = 0
ORDER BY e.id`, BalanceTolerance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Imbalance
	for rows.Next() {
		var im Imbalance
		if err := rows.Scan(&im.EntryID, &im.Reference, &im.Debit, &im.Credit); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

func nullInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
