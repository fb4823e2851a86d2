// Package ledgertest provides an in-memory ledger store for tests of modules
// that post journal entries.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/accounting/mappings"
)

// Ledger implements accounting.RepositoryPort and accounting.TxRepository.
// WithTx restores the previous state when the callback fails.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]accounting.Account
	entries  []accounting.JournalEntry
	nextID   int64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[string]accounting.Account)}
}

var roleClasses = map[mappings.Role]accounting.AccountClass{
	mappings.RoleAccountsReceivable: accounting.AccountClassAsset,
	mappings.RoleSalesRevenue:       accounting.AccountClassIncome,
	mappings.RoleTaxPayable:         accounting.AccountClassLiability,
	mappings.RoleInventoryAsset:     accounting.AccountClassAsset,
	mappings.RoleCostOfGoodsSold:    accounting.AccountClassExpense,
	mappings.RolePayrollExpense:     accounting.AccountClassExpense,
	mappings.RolePayrollPayable:     accounting.AccountClassLiability,
	mappings.RolePayrollAccrual:     accounting.AccountClassLiability,
	mappings.RoleAccountsPayable:    accounting.AccountClassLiability,
	mappings.RoleCash:               accounting.AccountClassAsset,
}

// NewWithDefaultChart returns a ledger holding the account of every role in
// mappings.Defaults.
func NewWithDefaultChart() *Ledger {
	l := New()
	for role, code := range mappings.Defaults() {
		l.AddAccount(code, roleClasses[role])
	}
	return l
}

// AddAccount registers an active account.
func (l *Ledger) AddAccount(code string, class accounting.AccountClass) *Ledger {
	l.accounts[code] = accounting.Account{
		Code:        code,
		Name:        code,
		Class:       class,
		NaturalSide: class.NaturalSide(),
		IsActive:    true,
	}
	return l
}

// Entries returns a copy of every stored entry.
func (l *Ledger) Entries() []accounting.JournalEntry {
	return append([]accounting.JournalEntry(nil), l.entries...)
}

// Entry returns the entry with the given reference.
func (l *Ledger) Entry(reference string) (accounting.JournalEntry, bool) {
	for _, e := range l.entries {
		if e.Reference == reference {
			return e, true
		}
	}
	return accounting.JournalEntry{}, false
}

// WithTx runs fn and rolls back in-memory state on error.
func (l *Ledger) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	snapshot := l.snapshot()
	if err := fn(ctx, l); err != nil {
		l.restore(snapshot)
		return err
	}
	return nil
}

type state struct {
	accounts map[string]accounting.Account
	entries  []accounting.JournalEntry
	nextID   int64
}

// Snapshot captures the ledger so callers sharing it across repositories can
// roll back together.
func (l *Ledger) Snapshot() any { return l.snapshot() }

// Restore rolls back to a value returned by Snapshot.
func (l *Ledger) Restore(s any) { l.restore(s.(state)) }

func (l *Ledger) snapshot() state {
	accounts := make(map[string]accounting.Account, len(l.accounts))
	for k, v := range l.accounts {
		accounts[k] = v
	}
	return state{accounts: accounts, entries: append([]accounting.JournalEntry(nil), l.entries...), nextID: l.nextID}
}

func (l *Ledger) restore(s state) {
	l.accounts = s.accounts
	l.entries = s.entries
	l.nextID = s.nextID
}

func (l *Ledger) GetAccount(ctx context.Context, code string) (accounting.Account, error) {
	a, ok := l.accounts[code]
	if !ok {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return a, nil
}

func (l *Ledger) ListAccounts(ctx context.Context) ([]accounting.Account, error) {
	out := make([]accounting.Account, 0, len(l.accounts))
	for _, a := range l.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (l *Ledger) InsertAccount(ctx context.Context, a accounting.Account) error {
	if _, ok := l.accounts[a.Code]; ok {
		return &accounting.AccountError{Code: a.Code, Err: accounting.ErrAccountExists}
	}
	l.accounts[a.Code] = a
	return nil
}

func (l *Ledger) UpdateAccountParent(ctx context.Context, code string, parent *string) error {
	a := l.accounts[code]
	a.ParentCode = parent
	l.accounts[code] = a
	return nil
}

func (l *Ledger) SetAccountActive(ctx context.Context, code string, active bool) error {
	a := l.accounts[code]
	a.IsActive = active
	l.accounts[code] = a
	return nil
}

func (l *Ledger) CountLinesForAccount(ctx context.Context, code string) (int64, error) {
	var n int64
	for _, e := range l.entries {
		for _, line := range e.Lines {
			if line.AccountCode == code {
				n++
			}
		}
	}
	return n, nil
}

func (l *Ledger) DeleteAccount(ctx context.Context, code string) error {
	delete(l.accounts, code)
	for k, a := range l.accounts {
		if a.ParentCode != nil && *a.ParentCode == code {
			a.ParentCode = nil
			l.accounts[k] = a
		}
	}
	return nil
}

func (l *Ledger) InsertJournalEntry(ctx context.Context, in accounting.PostingInput) (accounting.JournalEntry, error) {
	for _, e := range l.entries {
		if e.Reference == in.Reference {
			return accounting.JournalEntry{}, accounting.ErrDuplicateReference
		}
	}
	l.nextID++
	entry := accounting.JournalEntry{
		ID:           l.nextID,
		Reference:    in.Reference,
		Date:         in.Date,
		Description:  in.Description,
		PartnerID:    in.PartnerID,
		CurrencyCode: in.CurrencyCode,
		ExchangeRate: in.ExchangeRate,
		SourceModule: in.SourceModule,
		ReversalOf:   in.ReversalOf,
		CreatedAt:    time.Now(),
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *Ledger) InsertJournalLines(ctx context.Context, entryID int64, lines []accounting.PostingLineInput) error {
	for i := range l.entries {
		if l.entries[i].ID != entryID {
			continue
		}
		for _, line := range lines {
			l.entries[i].Lines = append(l.entries[i].Lines, accounting.JournalLine{
				ID:          int64(len(l.entries[i].Lines) + 1),
				EntryID:     entryID,
				AccountCode: line.AccountCode,
				Side:        line.Side,
				Amount:      line.Amount.Round(2),
			})
		}
		return nil
	}
	return accounting.ErrJournalNotFound
}

func (l *Ledger) GetJournalByReference(ctx context.Context, reference string) (accounting.JournalEntry, error) {
	e, ok := l.Entry(reference)
	if !ok {
		return accounting.JournalEntry{}, accounting.ErrJournalNotFound
	}
	return e, nil
}

func (l *Ledger) ListJournalEntries(ctx context.Context, limit int) ([]accounting.JournalEntry, error) {
	out := make([]accounting.JournalEntry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

func (l *Ledger) TrialBalance(ctx context.Context) ([]accounting.TrialBalanceRow, error) {
	rows := make(map[string]*accounting.TrialBalanceRow)
	for code, a := range l.accounts {
		rows[code] = &accounting.TrialBalanceRow{AccountCode: code, AccountName: a.Name, Class: a.Class, Debit: decimal.Zero, Credit: decimal.Zero}
	}
	for _, e := range l.entries {
		for _, line := range e.Lines {
			row, ok := rows[line.AccountCode]
			if !ok {
				continue
			}
			if line.Side == accounting.SideDebit {
				row.Debit = row.Debit.Add(line.Amount)
			} else {
				row.Credit = row.Credit.Add(line.Amount)
			}
		}
	}
	out := make([]accounting.TrialBalanceRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountCode < out[j].AccountCode })
	return out, nil
}

func (l *Ledger) UnbalancedEntries(ctx context.Context) ([]accounting.Imbalance, error) {
	var out []accounting.Imbalance
	for _, e := range l.entries {
		debit, credit := decimal.Zero, decimal.Zero
		for _, line := range e.Lines {
			if line.Side == accounting.SideDebit {
				debit = debit.Add(line.Amount)
			} else {
				credit = credit.Add(line.Amount)
			}
		}
		if len(e.Lines) == 0 || debit.Sub(credit).Abs().GreaterThan(accounting.BalanceTolerance) {
			out = append(out, accounting.Imbalance{EntryID: e.ID, Reference: e.Reference, Debit: debit, Credit: credit})
		}
	}
	return out, nil
}

// SetLineAmount overwrites a stored line, bypassing validation, so tests can
// build a ledger that no longer balances.
func (l *Ledger) SetLineAmount(reference string, index int, amount decimal.Decimal) {
	for i := range l.entries {
		if l.entries[i].Reference == reference {
			l.entries[i].Lines[index].Amount = amount
			return
		}
	}
}
