package accounting

import (
	"github.com/shopspring/decimal"
)

// BalanceTolerance is the largest absolute debit/credit difference accepted.
var BalanceTolerance = decimal.New(1, -3)

// Totals sums line amounts per side.
func Totals(lines []PostingLineInput) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		switch line.Side {
		case SideDebit:
			debit = debit.Add(line.Amount)
		case SideCredit:
			credit = credit.Add(line.Amount)
		}
	}
	return debit, credit
}

// Validate checks the balance invariant of a line set. It has no side effects
// and must be called before anything is persisted.
func Validate(lines []PostingLineInput) error {
	if len(lines) == 0 {
		return ErrEmptyEntry
	}
	for idx, line := range lines {
		if line.AccountCode == "" {
			return &LineError{Index: idx, Reason: "missing account code"}
		}
		if !line.Side.Valid() {
			return &LineError{Index: idx, Reason: "side must be DEBIT or CREDIT"}
		}
		if line.Amount.IsNegative() {
			return &LineError{Index: idx, Reason: "negative amount"}
		}
	}
	debit, credit := Totals(lines)
	if debit.Sub(credit).Abs().GreaterThan(BalanceTolerance) {
		return &BalanceError{TotalDebit: debit, TotalCredit: credit}
	}
	return nil
}
