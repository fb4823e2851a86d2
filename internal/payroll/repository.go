package payroll

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/platform/db"
)

// Repository persists payroll data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations a run needs inside one transaction.
type TxRepository interface {
	accounting.LedgerTx

	GetEmployee(ctx context.Context, id int64) (Employee, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)
	GetConcept(ctx context.Context, code string) (Concept, error)
	InsertRun(ctx context.Context, run Run) (Run, error)
	GetRunForUpdate(ctx context.Context, id int64) (Run, error)
	UpdateRunPosting(ctx context.Context, id int64, status PostingStatus, postingErr string, entryID *int64) error
}

type txRepo struct {
	accounting.LedgerTx
	tx pgx.Tx
}

// WithTx runs fn inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{LedgerTx: accounting.NewTxRepository(tx), tx: tx})
	})
}

func (r *Repository) CreateEmployee(ctx context.Context, e Employee) (Employee, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO employees (national_id, name, is_active) VALUES ($1,$2,$3) RETURNING id`,
		e.NationalID, e.Name, e.IsActive).Scan(&e.ID)
	if db.IsUniqueViolation(err, "") {
		return Employee{}, ErrDuplicate
	}
	return e, err
}

func (r *Repository) ListEmployees(ctx context.Context) ([]Employee, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, national_id, name, is_active FROM employees ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.NationalID, &e.Name, &e.IsActive); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) CreatePeriod(ctx context.Context, p Period) (Period, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO payroll_periods (code, start_date, end_date, pay_date) VALUES ($1,$2,$3,$4) RETURNING id`,
		p.Code, p.StartDate, p.EndDate, p.PayDate).Scan(&p.ID)
	if db.IsUniqueViolation(err, "") {
		return Period{}, ErrDuplicate
	}
	return p, err
}

func (r *Repository) ListPeriods(ctx context.Context) ([]Period, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, start_date, end_date, pay_date FROM payroll_periods ORDER BY start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.PayDate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) CreateConcept(ctx context.Context, c Concept) (Concept, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO payroll_concepts (code, name, kind) VALUES ($1,$2,$3)`, c.Code, c.Name, c.Kind)
	if db.IsUniqueViolation(err, "") {
		return Concept{}, ErrDuplicate
	}
	return c, err
}

func (r *Repository) ListConcepts(ctx context.Context) ([]Concept, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name, kind FROM payroll_concepts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Concept
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.Code, &c.Name, &c.Kind); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) GetRun(ctx context.Context, id int64) (Run, error) {
	return loadRun(ctx, r.pool, id, false)
}

func (r *Repository) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM payroll_runs
WHERE ($1 = 0 OR period_id = $1)
  AND ($2 = 0 OR employee_id = $2)
  AND ($3 = '' OR posting_status = $3)
ORDER BY id DESC LIMIT $4`, filter.PeriodID, filter.EmployeeID, string(filter.PostingStatus), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

const runColumns = `id, employee_id, period_id, total_earnings, total_deductions, net_pay, posting_status, posting_error, journal_entry_id, created_at`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.EmployeeID, &run.PeriodID, &run.TotalEarnings, &run.TotalDeductions, &run.NetPay,
		&run.PostingStatus, &run.PostingError, &run.JournalEntryID, &run.CreatedAt)
	return run, err
}

func loadRun(ctx context.Context, q db.Querier, id int64, forUpdate bool) (Run, error) {
	query := `SELECT ` + runColumns + ` FROM payroll_runs WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	run, err := scanRun(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, run_id, concept_code, kind, amount FROM payroll_run_lines WHERE run_id=$1 ORDER BY id`, id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l RunLine
		if err := rows.Scan(&l.ID, &l.RunID, &l.ConceptCode, &l.Kind, &l.Amount); err != nil {
			return Run{}, err
		}
		run.Lines = append(run.Lines, l)
	}
	return run, rows.Err()
}

func (r *txRepo) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	var e Employee
	err := r.tx.QueryRow(ctx, `SELECT id, national_id, name, is_active FROM employees WHERE id=$1`, id).
		Scan(&e.ID, &e.NationalID, &e.Name, &e.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return e, err
}

func (r *txRepo) GetPeriod(ctx context.Context, id int64) (Period, error) {
	var p Period
	err := r.tx.QueryRow(ctx, `SELECT id, code, start_date, end_date, pay_date FROM payroll_periods WHERE id=$1`, id).
		Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.PayDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *txRepo) GetConcept(ctx context.Context, code string) (Concept, error) {
	var c Concept
	err := r.tx.QueryRow(ctx, `SELECT code, name, kind FROM payroll_concepts WHERE code=$1`, code).
		Scan(&c.Code, &c.Name, &c.Kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Concept{}, ErrConceptNotFound
	}
	return c, err
}

func (r *txRepo) InsertRun(ctx context.Context, run Run) (Run, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO payroll_runs (employee_id, period_id, total_earnings, total_deductions, net_pay, posting_status, posting_error)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		run.EmployeeID, run.PeriodID, run.TotalEarnings, run.TotalDeductions, run.NetPay, run.PostingStatus, run.PostingError).
		Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_payroll_runs_employee_period") {
			return Run{}, ErrDuplicateRun
		}
		return Run{}, err
	}
	batch := &pgx.Batch{}
	for _, l := range run.Lines {
		batch.Queue(`INSERT INTO payroll_run_lines (run_id, concept_code, kind, amount) VALUES ($1,$2,$3,$4) RETURNING id`,
			run.ID, l.ConceptCode, l.Kind, l.Amount)
	}
	results := r.tx.SendBatch(ctx, batch)
	for i := range run.Lines {
		run.Lines[i].RunID = run.ID
		if err := results.QueryRow().Scan(&run.Lines[i].ID); err != nil {
			_ = results.Close()
			return Run{}, err
		}
	}
	return run, results.Close()
}

func (r *txRepo) GetRunForUpdate(ctx context.Context, id int64) (Run, error) {
	return loadRun(ctx, r.tx, id, true)
}

func (r *txRepo) UpdateRunPosting(ctx context.Context, id int64, status PostingStatus, postingErr string, entryID *int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE payroll_runs SET posting_status=$2, posting_error=$3, journal_entry_id=$4 WHERE id=$1`,
		id, status, postingErr, entryID)
	return err
}
