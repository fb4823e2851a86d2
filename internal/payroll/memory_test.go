package payroll_test

import (
	"context"
	"sort"

	"github.com/hermes-erp/hermes/internal/accounting/ledgertest"
	"github.com/hermes-erp/hermes/internal/payroll"
)

type memoryRepo struct {
	*ledgertest.Ledger

	employees map[int64]payroll.Employee
	periods   map[int64]payroll.Period
	concepts  map[string]payroll.Concept
	runs      map[int64]payroll.Run
	nextID    int64
}

func newMemoryRepo(ledger *ledgertest.Ledger) *memoryRepo {
	return &memoryRepo{
		Ledger:    ledger,
		employees: map[int64]payroll.Employee{},
		periods:   map[int64]payroll.Period{},
		concepts:  map[string]payroll.Concept{},
		runs:      map[int64]payroll.Run{},
	}
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func cloneRun(run payroll.Run) payroll.Run {
	run.Lines = append([]payroll.RunLine(nil), run.Lines...)
	return run
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, payroll.TxRepository) error) error {
	ledger, nextID := m.Ledger.Snapshot(), m.nextID
	runs := make(map[int64]payroll.Run, len(m.runs))
	for id, run := range m.runs {
		runs[id] = cloneRun(run)
	}
	if err := fn(ctx, m); err != nil {
		m.Ledger.Restore(ledger)
		m.runs, m.nextID = runs, nextID
		return err
	}
	return nil
}

func (m *memoryRepo) CreateEmployee(ctx context.Context, e payroll.Employee) (payroll.Employee, error) {
	for _, existing := range m.employees {
		if existing.NationalID == e.NationalID {
			return payroll.Employee{}, payroll.ErrDuplicate
		}
	}
	e.ID = m.id()
	m.employees[e.ID] = e
	return e, nil
}

func (m *memoryRepo) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	var out []payroll.Employee
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRepo) CreatePeriod(ctx context.Context, p payroll.Period) (payroll.Period, error) {
	for _, existing := range m.periods {
		if existing.Code == p.Code {
			return payroll.Period{}, payroll.ErrDuplicate
		}
	}
	p.ID = m.id()
	m.periods[p.ID] = p
	return p, nil
}

func (m *memoryRepo) ListPeriods(ctx context.Context) ([]payroll.Period, error) {
	var out []payroll.Period
	for _, p := range m.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (m *memoryRepo) CreateConcept(ctx context.Context, c payroll.Concept) (payroll.Concept, error) {
	if _, ok := m.concepts[c.Code]; ok {
		return payroll.Concept{}, payroll.ErrDuplicate
	}
	m.concepts[c.Code] = c
	return c, nil
}

func (m *memoryRepo) ListConcepts(ctx context.Context) ([]payroll.Concept, error) {
	var out []payroll.Concept
	for _, c := range m.concepts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memoryRepo) GetRun(ctx context.Context, id int64) (payroll.Run, error) {
	run, ok := m.runs[id]
	if !ok {
		return payroll.Run{}, payroll.ErrRunNotFound
	}
	return cloneRun(run), nil
}

func (m *memoryRepo) ListRuns(ctx context.Context, filter payroll.RunFilter) ([]payroll.Run, error) {
	var out []payroll.Run
	for _, run := range m.runs {
		if filter.PeriodID != 0 && run.PeriodID != filter.PeriodID {
			continue
		}
		if filter.EmployeeID != 0 && run.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.PostingStatus != "" && run.PostingStatus != filter.PostingStatus {
			continue
		}
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) GetEmployee(ctx context.Context, id int64) (payroll.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return payroll.Employee{}, payroll.ErrEmployeeNotFound
	}
	return e, nil
}

func (m *memoryRepo) GetPeriod(ctx context.Context, id int64) (payroll.Period, error) {
	p, ok := m.periods[id]
	if !ok {
		return payroll.Period{}, payroll.ErrPeriodNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetConcept(ctx context.Context, code string) (payroll.Concept, error) {
	c, ok := m.concepts[code]
	if !ok {
		return payroll.Concept{}, payroll.ErrConceptNotFound
	}
	return c, nil
}

func (m *memoryRepo) InsertRun(ctx context.Context, run payroll.Run) (payroll.Run, error) {
	for _, existing := range m.runs {
		if existing.EmployeeID == run.EmployeeID && existing.PeriodID == run.PeriodID {
			return payroll.Run{}, payroll.ErrDuplicateRun
		}
	}
	run = cloneRun(run)
	run.ID = m.id()
	for i := range run.Lines {
		run.Lines[i].ID = m.id()
		run.Lines[i].RunID = run.ID
	}
	m.runs[run.ID] = cloneRun(run)
	return run, nil
}

func (m *memoryRepo) GetRunForUpdate(ctx context.Context, id int64) (payroll.Run, error) {
	return m.GetRun(ctx, id)
}

func (m *memoryRepo) UpdateRunPosting(ctx context.Context, id int64, status payroll.PostingStatus, postingErr string, entryID *int64) error {
	run, ok := m.runs[id]
	if !ok {
		return payroll.ErrRunNotFound
	}
	run.PostingStatus, run.PostingError, run.JournalEntryID = status, postingErr, entryID
	m.runs[id] = run
	return nil
}
