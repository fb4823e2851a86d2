package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hermes-erp/hermes/internal/accounting/ledgertest"
	"github.com/hermes-erp/hermes/internal/accounting/mappings"
	"github.com/hermes-erp/hermes/internal/currency/currencytest"
	"github.com/hermes-erp/hermes/internal/payroll"
	"github.com/hermes-erp/hermes/internal/posting"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	ctx      context.Context
	ledger   *ledgertest.Ledger
	repo     *memoryRepo
	roles    mappings.RoleMap
	svc      *payroll.Service
	employee payroll.Employee
	period   payroll.Period
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), ledger: ledgertest.NewWithDefaultChart(), roles: mappings.Defaults()}
	f.repo = newMemoryRepo(f.ledger)
	resolver, _ := currencytest.Resolver()
	engine := posting.NewEngine(mappings.NewProvider(nil, f.roles), resolver, nil, nil)
	f.svc = payroll.NewService(f.repo, engine, nil, nil)

	var err error
	f.employee, err = f.svc.CreateEmployee(f.ctx, payroll.EmployeeInput{NationalID: "1020", Name: "Ana Ruiz"})
	require.NoError(t, err)
	f.period, err = f.svc.CreatePeriod(f.ctx, payroll.PeriodInput{
		Code:      "2024-03",
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		PayDate:   time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	for _, c := range []payroll.ConceptInput{
		{Code: "SAL", Name: "Salario", Kind: payroll.ConceptEarning},
		{Code: "AUX", Name: "Auxilio de transporte", Kind: payroll.ConceptEarning},
		{Code: "SALUD", Name: "Salud", Kind: payroll.ConceptDeduction},
		{Code: "PENSION", Name: "Pension", Kind: payroll.ConceptDeduction},
	} {
		_, err := f.svc.CreateConcept(f.ctx, c)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) input(lines ...payroll.RunLineInput) payroll.RunInput {
	return payroll.RunInput{EmployeeID: f.employee.ID, PeriodID: f.period.ID, Lines: lines}
}

func concept(code, amount string) payroll.RunLineInput {
	return payroll.RunLineInput{ConceptCode: code, Amount: dec(amount)}
}

func standardLines() []payroll.RunLineInput {
	return []payroll.RunLineInput{
		concept("SAL", "1000"),
		concept("AUX", "200"),
		concept("SALUD", "48"),
		concept("PENSION", "48"),
	}
}

func TestCreateRunPostsOnPayDate(t *testing.T) {
	f := newFixture(t)
	run, err := f.svc.CreateRun(f.ctx, f.input(standardLines()...))
	require.NoError(t, err)

	require.Equal(t, "1200.00", run.TotalEarnings.StringFixed(2))
	require.Equal(t, "96.00", run.TotalDeductions.StringFixed(2))
	require.Equal(t, "1104.00", run.NetPay.StringFixed(2))
	require.Equal(t, payroll.PostingPosted, run.PostingStatus)
	require.NotNil(t, run.JournalEntryID)
	require.Len(t, run.Lines, 4)

	entry, ok := f.ledger.Entry("NOM-1020-2024-03")
	require.True(t, ok)
	require.Equal(t, "COP", entry.CurrencyCode)
	require.True(t, entry.Date.Equal(f.period.PayDate))
	require.Equal(t, posting.ModulePayroll, entry.SourceModule)
	got := map[string]string{}
	for _, l := range entry.Lines {
		got[l.AccountCode+":"+string(l.Side)] = l.Amount.StringFixed(2)
	}
	require.Equal(t, map[string]string{
		"510505:DEBIT":  "1200.00",
		"250505:CREDIT": "1104.00",
		"261005:CREDIT": "96.00",
	}, got)
}

func TestCreateRunWithoutDeductionsSkipsAccrual(t *testing.T) {
	f := newFixture(t)
	delete(f.roles, mappings.RolePayrollAccrual)
	run, err := f.svc.CreateRun(f.ctx, f.input(concept("SAL", "1000")))
	require.NoError(t, err)
	require.Equal(t, payroll.PostingPosted, run.PostingStatus)
	entry, ok := f.ledger.Entry("NOM-1020-2024-03")
	require.True(t, ok)
	require.Len(t, entry.Lines, 2)
}

func TestDuplicateRunRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRun(f.ctx, f.input(standardLines()...))
	require.NoError(t, err)

	_, err = f.svc.CreateRun(f.ctx, f.input(concept("SAL", "10")))
	require.ErrorIs(t, err, payroll.ErrDuplicateRun)
	require.Len(t, f.repo.runs, 1)
	require.Len(t, f.ledger.Entries(), 1)
}

func TestMissingRoleKeepsRunUnposted(t *testing.T) {
	f := newFixture(t)
	delete(f.roles, mappings.RolePayrollAccrual)

	run, err := f.svc.CreateRun(f.ctx, f.input(standardLines()...))
	require.NoError(t, err)
	require.Equal(t, payroll.PostingUnposted, run.PostingStatus)
	require.Contains(t, run.PostingError, "role:payroll-accrual")
	require.Nil(t, run.JournalEntryID)
	require.Empty(t, f.ledger.Entries())

	ids, err := f.svc.ListUnposted(f.ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{run.ID}, ids)

	f.roles[mappings.RolePayrollAccrual] = "261005"
	retried, err := f.svc.RetryPosting(f.ctx, run.ID, 1)
	require.NoError(t, err)
	require.Equal(t, payroll.PostingPosted, retried.PostingStatus)
	require.Empty(t, retried.PostingError)
	require.Len(t, f.ledger.Entries(), 1)

	again, err := f.svc.RetryPosting(f.ctx, run.ID, 1)
	require.NoError(t, err)
	require.Equal(t, *retried.JournalEntryID, *again.JournalEntryID)
	require.Len(t, f.ledger.Entries(), 1)
}

func TestCreateRunRejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateRun(f.ctx, f.input(concept("SAL", "100"), concept("SALUD", "150")))
	require.ErrorIs(t, err, payroll.ErrInvalidInput)

	_, err = f.svc.CreateRun(f.ctx, f.input(concept("SALUD", "10")))
	require.ErrorIs(t, err, payroll.ErrInvalidInput)

	_, err = f.svc.CreateRun(f.ctx, f.input(concept("SAL", "-1")))
	require.ErrorIs(t, err, payroll.ErrInvalidInput)

	_, err = f.svc.CreateRun(f.ctx, f.input(concept("BONUS", "10")))
	require.ErrorIs(t, err, payroll.ErrConceptNotFound)

	_, err = f.svc.CreateRun(f.ctx, payroll.RunInput{EmployeeID: 999, PeriodID: f.period.ID, Lines: standardLines()})
	require.ErrorIs(t, err, payroll.ErrEmployeeNotFound)

	inactive := f.repo.employees[f.employee.ID]
	inactive.IsActive = false
	f.repo.employees[f.employee.ID] = inactive
	_, err = f.svc.CreateRun(f.ctx, f.input(standardLines()...))
	require.ErrorIs(t, err, payroll.ErrInactiveEmployee)

	require.Empty(t, f.repo.runs)
	require.Empty(t, f.ledger.Entries())
}

func TestCreatePeriodDates(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)

	p, err := f.svc.CreatePeriod(f.ctx, payroll.PeriodInput{Code: "2024-04", StartDate: start, EndDate: end})
	require.NoError(t, err)
	require.True(t, p.PayDate.Equal(end))

	_, err = f.svc.CreatePeriod(f.ctx, payroll.PeriodInput{Code: "bad", StartDate: end, EndDate: start})
	require.ErrorIs(t, err, payroll.ErrInvalidInput)

	_, err = f.svc.CreatePeriod(f.ctx, payroll.PeriodInput{Code: "2024-04", StartDate: start, EndDate: end})
	require.ErrorIs(t, err, payroll.ErrDuplicate)
}
