package currency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/platform/db"
)

// Store persists currencies and exchange rates.
type Store interface {
	List(ctx context.Context) ([]Currency, error)
	Get(ctx context.Context, code string) (Currency, error)
	ListPrincipal(ctx context.Context) ([]Currency, error)
	Insert(ctx context.Context, c Currency) error
	SetPrincipal(ctx context.Context, code string) error
	LatestRate(ctx context.Context, code string, on time.Time) (decimal.Decimal, error)
	InsertRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error)
}

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) List(ctx context.Context) ([]Currency, error) {
	return r.query(ctx, `SELECT code, name, symbol, is_principal FROM currencies ORDER BY code`)
}

func (r *Repository) ListPrincipal(ctx context.Context) ([]Currency, error) {
	return r.query(ctx, `SELECT code, name, symbol, is_principal FROM currencies WHERE is_principal ORDER BY code`)
}

func (r *Repository) query(ctx context.Context, sql string) ([]Currency, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Currency
	for rows.Next() {
		var c Currency
		if err := rows.Scan(&c.Code, &c.Name, &c.Symbol, &c.IsPrincipal); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, code string) (Currency, error) {
	var c Currency
	err := r.pool.QueryRow(ctx, `SELECT code, name, symbol, is_principal FROM currencies WHERE code=$1`, code).
		Scan(&c.Code, &c.Name, &c.Symbol, &c.IsPrincipal)
	if errors.Is(err, pgx.ErrNoRows) {
		return Currency{}, ErrCurrencyNotFound
	}
	return c, err
}

// Insert registers c. A principal currency takes the flag over from any
// other currency inside the same transaction.
func (r *Repository) Insert(ctx context.Context, c Currency) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if c.IsPrincipal {
			if _, err := tx.Exec(ctx, `UPDATE currencies SET is_principal = FALSE WHERE is_principal`); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO currencies (code, name, symbol, is_principal) VALUES ($1,$2,$3,$4)`,
			c.Code, c.Name, c.Symbol, c.IsPrincipal)
		if db.IsUniqueViolation(err, "currencies_pkey") {
			return ErrCurrencyExists
		}
		return err
	})
}

func (r *Repository) SetPrincipal(ctx context.Context, code string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE currencies SET is_principal = FALSE WHERE is_principal AND code <> $1`, code); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE currencies SET is_principal = TRUE WHERE code=$1`, code)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrCurrencyNotFound
		}
		return nil
	})
}

func (r *Repository) LatestRate(ctx context.Context, code string, on time.Time) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT rate FROM exchange_rates
WHERE currency_code=$1 AND effective_date <= $2
ORDER BY effective_date DESC LIMIT 1`, code, on).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrRateUnavailable
	}
	return rate, err
}

func (r *Repository) InsertRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO exchange_rates (currency_code, rate, effective_date) VALUES ($1,$2,$3)
ON CONFLICT (currency_code, effective_date) DO UPDATE SET rate=EXCLUDED.rate
RETURNING id`, rate.CurrencyCode, rate.Rate, rate.EffectiveDate).Scan(&rate.ID)
	if db.IsForeignKeyViolation(err, "") {
		return ExchangeRate{}, ErrCurrencyNotFound
	}
	return rate, err
}
