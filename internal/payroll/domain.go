package payroll

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ConceptKind tells whether a concept adds to or subtracts from pay.
type ConceptKind string

const (
	ConceptEarning   ConceptKind = "EARNING"
	ConceptDeduction ConceptKind = "DEDUCTION"
)

// PostingStatus tells whether a run reached the ledger.
type PostingStatus string

const (
	PostingPosted   PostingStatus = "POSTED"
	PostingUnposted PostingStatus = "UNPOSTED"
)

// Employee on the payroll.
type Employee struct {
	ID         int64  `json:"id"`
	NationalID string `json:"national_id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
}

// Period is a pay period; runs post on its pay date.
type Period struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	PayDate   time.Time `json:"pay_date"`
}

// Concept is an earning or deduction line type.
type Concept struct {
	Code string      `json:"code"`
	Name string      `json:"name"`
	Kind ConceptKind `json:"kind"`
}

// Run is the computed payroll of one employee for one period.
type Run struct {
	ID              int64           `json:"id"`
	EmployeeID      int64           `json:"employee_id"`
	PeriodID        int64           `json:"period_id"`
	TotalEarnings   decimal.Decimal `json:"total_earnings"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	NetPay          decimal.Decimal `json:"net_pay"`
	PostingStatus   PostingStatus   `json:"posting_status"`
	PostingError    string          `json:"posting_error,omitempty"`
	JournalEntryID  *int64          `json:"journal_entry_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	Lines           []RunLine       `json:"lines"`
}

// RunLine is one concept amount of a run.
type RunLine struct {
	ID          int64           `json:"id"`
	RunID       int64           `json:"run_id"`
	ConceptCode string          `json:"concept_code"`
	Kind        ConceptKind     `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
}

// EmployeeInput creates an employee.
type EmployeeInput struct {
	NationalID string `json:"national_id" validate:"required,max=20"`
	Name       string `json:"name" validate:"required,max=200"`
}

// PeriodInput creates a pay period. A zero PayDate means the end date.
type PeriodInput struct {
	Code      string    `json:"code" validate:"required,max=20"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	PayDate   time.Time `json:"pay_date"`
}

// ConceptInput creates a concept.
type ConceptInput struct {
	Code string      `json:"code" validate:"required,max=20"`
	Name string      `json:"name" validate:"required,max=100"`
	Kind ConceptKind `json:"kind" validate:"required,oneof=EARNING DEDUCTION"`
}

// RunInput computes a run.
type RunInput struct {
	EmployeeID int64          `json:"employee_id" validate:"required,gt=0"`
	PeriodID   int64          `json:"period_id" validate:"required,gt=0"`
	Lines      []RunLineInput `json:"lines" validate:"required,min=1,dive"`
	ActorID    int64          `json:"-"`
}

// RunLineInput is a concept amount.
type RunLineInput struct {
	ConceptCode string          `json:"concept_code" validate:"required,max=20"`
	Amount      decimal.Decimal `json:"amount"`
}

// RunFilter narrows run listings.
type RunFilter struct {
	PeriodID      int64
	EmployeeID    int64
	PostingStatus PostingStatus
	Limit         int
}

var (
	ErrEmployeeNotFound = errors.New("payroll: employee not found")
	ErrPeriodNotFound   = errors.New("payroll: period not found")
	ErrConceptNotFound  = errors.New("payroll: concept not found")
	ErrRunNotFound      = errors.New("payroll: run not found")
	// ErrDuplicateRun indicates the employee already has a run for the period.
	ErrDuplicateRun     = errors.New("payroll: run already exists for employee and period")
	ErrDuplicate        = errors.New("payroll: record already exists")
	ErrInactiveEmployee = errors.New("payroll: employee is inactive")
	ErrInvalidInput     = errors.New("payroll: invalid input")
)
