package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/posting"
	"github.com/hermes-erp/hermes/internal/shared"
)

// RepositoryPort is the persistence used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateEmployee(ctx context.Context, e Employee) (Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	CreatePeriod(ctx context.Context, p Period) (Period, error)
	ListPeriods(ctx context.Context) ([]Period, error)
	CreateConcept(ctx context.Context, c Concept) (Concept, error)
	ListConcepts(ctx context.Context) ([]Concept, error)
	GetRun(ctx context.Context, id int64) (Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
}

// Poster writes the journal entry of a payroll run.
type Poster interface {
	PostPayroll(ctx context.Context, tx accounting.LedgerTx, evt posting.PayrollEvent) (accounting.JournalEntry, error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service computes and posts payroll runs.
type Service struct {
	repo     RepositoryPort
	poster   Poster
	audit    AuditPort
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService constructs the payroll service.
func NewService(repo RepositoryPort, poster Poster, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, poster: poster, audit: audit, logger: logger, validate: validator.New()}
}

func (s *Service) CreateEmployee(ctx context.Context, input EmployeeInput) (Employee, error) {
	if err := s.validate.Struct(input); err != nil {
		return Employee{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.repo.CreateEmployee(ctx, Employee{
		NationalID: strings.TrimSpace(input.NationalID),
		Name:       strings.TrimSpace(input.Name),
		IsActive:   true,
	})
}

func (s *Service) ListEmployees(ctx context.Context) ([]Employee, error) {
	return s.repo.ListEmployees(ctx)
}

// CreatePeriod stores a pay period. The pay date defaults to the end date and
// may not precede the start date.
func (s *Service) CreatePeriod(ctx context.Context, input PeriodInput) (Period, error) {
	if err := s.validate.Struct(input); err != nil {
		return Period{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.EndDate.Before(input.StartDate) {
		return Period{}, fmt.Errorf("%w: period ends before it starts", ErrInvalidInput)
	}
	if input.PayDate.IsZero() {
		input.PayDate = input.EndDate
	}
	if input.PayDate.Before(input.StartDate) {
		return Period{}, fmt.Errorf("%w: pay date precedes the period", ErrInvalidInput)
	}
	return s.repo.CreatePeriod(ctx, Period{
		Code:      strings.TrimSpace(input.Code),
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		PayDate:   input.PayDate,
	})
}

func (s *Service) ListPeriods(ctx context.Context) ([]Period, error) {
	return s.repo.ListPeriods(ctx)
}

func (s *Service) CreateConcept(ctx context.Context, input ConceptInput) (Concept, error) {
	if err := s.validate.Struct(input); err != nil {
		return Concept{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.repo.CreateConcept(ctx, Concept{Code: strings.ToUpper(strings.TrimSpace(input.Code)), Name: input.Name, Kind: input.Kind})
}

func (s *Service) ListConcepts(ctx context.Context) ([]Concept, error) {
	return s.repo.ListConcepts(ctx)
}

// CreateRun totals the concept lines of an employee for a period and posts
// the run in the principal currency on the period's pay date. A
// configuration error while posting keeps the run with PostingStatus
// UNPOSTED; any other failure rolls back.
func (s *Service) CreateRun(ctx context.Context, input RunInput) (Run, error) {
	if err := s.validate.Struct(input); err != nil {
		return Run{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var run Run
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		employee, err := tx.GetEmployee(ctx, input.EmployeeID)
		if err != nil {
			return err
		}
		if !employee.IsActive {
			return ErrInactiveEmployee
		}
		period, err := tx.GetPeriod(ctx, input.PeriodID)
		if err != nil {
			return err
		}
		draft, err := s.compute(ctx, tx, input)
		if err != nil {
			return err
		}
		run, err = tx.InsertRun(ctx, draft)
		if err != nil {
			return err
		}
		return s.settle(ctx, tx, &run, s.post(ctx, tx, &run, employee, period, input.ActorID))
	})
	if err != nil {
		return Run{}, err
	}
	s.record(ctx, input.ActorID, "payroll.run.create", run)
	return run, nil
}

func (s *Service) compute(ctx context.Context, tx TxRepository, input RunInput) (Run, error) {
	run := Run{
		EmployeeID:    input.EmployeeID,
		PeriodID:      input.PeriodID,
		PostingStatus: PostingUnposted,
	}
	for i, in := range input.Lines {
		if in.Amount.IsNegative() {
			return Run{}, fmt.Errorf("%w: line %d amount is negative", ErrInvalidInput, i+1)
		}
		concept, err := tx.GetConcept(ctx, in.ConceptCode)
		if err != nil {
			return Run{}, err
		}
		amount := in.Amount.Round(2)
		switch concept.Kind {
		case ConceptEarning:
			run.TotalEarnings = run.TotalEarnings.Add(amount)
		case ConceptDeduction:
			run.TotalDeductions = run.TotalDeductions.Add(amount)
		default:
			return Run{}, fmt.Errorf("%w: concept %s has unknown kind %q", ErrInvalidInput, concept.Code, concept.Kind)
		}
		run.Lines = append(run.Lines, RunLine{ConceptCode: concept.Code, Kind: concept.Kind, Amount: amount})
	}
	if !run.TotalEarnings.IsPositive() {
		return Run{}, fmt.Errorf("%w: run has no earnings", ErrInvalidInput)
	}
	run.NetPay = run.TotalEarnings.Sub(run.TotalDeductions)
	if run.NetPay.IsNegative() {
		return Run{}, fmt.Errorf("%w: deductions %s exceed earnings %s",
			ErrInvalidInput, run.TotalDeductions.StringFixed(2), run.TotalEarnings.StringFixed(2))
	}
	return run, nil
}

func (s *Service) post(ctx context.Context, tx TxRepository, run *Run, employee Employee, period Period, actorID int64) error {
	if run.JournalEntryID != nil {
		return nil
	}
	entry, err := s.poster.PostPayroll(ctx, tx, posting.PayrollEvent{
		Header: posting.Header{
			Reference:   posting.PayrollReference(employee.NationalID, period.Code),
			Date:        period.PayDate,
			Description: fmt.Sprintf("Payroll %s %s", period.Code, employee.Name),
			ActorID:     actorID,
		},
		Earnings:   run.TotalEarnings,
		Deductions: run.TotalDeductions,
		NetPay:     run.NetPay,
	})
	if err != nil {
		return err
	}
	id := entry.ID
	run.JournalEntryID = &id
	return nil
}

func (s *Service) settle(ctx context.Context, tx TxRepository, run *Run, postErr error) error {
	run.PostingStatus, run.PostingError = PostingPosted, ""
	if postErr != nil {
		if _, ok := accounting.IsConfigurationError(postErr); !ok {
			return postErr
		}
		run.PostingStatus, run.PostingError = PostingUnposted, postErr.Error()
	}
	return tx.UpdateRunPosting(ctx, run.ID, run.PostingStatus, run.PostingError, run.JournalEntryID)
}

// RetryPosting posts a run left unposted by a configuration error.
func (s *Service) RetryPosting(ctx context.Context, runID, actorID int64) (Run, error) {
	var run Run
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		run, err = tx.GetRunForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		employee, err := tx.GetEmployee(ctx, run.EmployeeID)
		if err != nil {
			return err
		}
		period, err := tx.GetPeriod(ctx, run.PeriodID)
		if err != nil {
			return err
		}
		return s.settle(ctx, tx, &run, s.post(ctx, tx, &run, employee, period, actorID))
	})
	if err != nil {
		return Run{}, err
	}
	s.record(ctx, actorID, "posting.retry", run)
	return run, nil
}

func (s *Service) GetRun(ctx context.Context, id int64) (Run, error) {
	return s.repo.GetRun(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListRuns(ctx, filter)
}

// ListUnposted returns the ids of runs waiting for a posting retry.
func (s *Service) ListUnposted(ctx context.Context) ([]int64, error) {
	runs, err := s.repo.ListRuns(ctx, RunFilter{PostingStatus: PostingUnposted, Limit: 500})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.ID)
	}
	return ids, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, run Run) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payroll_run",
		EntityID: fmt.Sprintf("%d", run.ID),
		Meta: map[string]any{
			"net_pay":        run.NetPay.StringFixed(2),
			"posting_status": run.PostingStatus,
		},
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
