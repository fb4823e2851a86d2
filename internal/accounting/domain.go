package accounting

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountClass enumerates CoA categories.
type AccountClass string

const (
	AccountClassAsset     AccountClass = "ASSET"
	AccountClassLiability AccountClass = "LIABILITY"
	AccountClassEquity    AccountClass = "EQUITY"
	AccountClassIncome    AccountClass = "INCOME"
	AccountClassExpense   AccountClass = "EXPENSE"
)

// Valid reports whether the class is one of the known categories.
func (c AccountClass) Valid() bool {
	switch c {
	case AccountClassAsset, AccountClassLiability, AccountClassEquity, AccountClassIncome, AccountClassExpense:
		return true
	}
	return false
}

// NaturalSide returns the side on which increases of the class are recorded.
func (c AccountClass) NaturalSide() Side {
	if c == AccountClassAsset || c == AccountClassExpense {
		return SideDebit
	}
	return SideCredit
}

// Side is one of the two sides of a double-entry line.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// Valid reports whether the side is DEBIT or CREDIT.
func (s Side) Valid() bool {
	return s == SideDebit || s == SideCredit
}

// Opposite flips the side.
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}
	return SideDebit
}

// Account models a chart of accounts node.
type Account struct {
	Code        string       `json:"code"`
	Name        string       `json:"name"`
	Class       AccountClass `json:"class"`
	NaturalSide Side         `json:"natural_side"`
	ParentCode  *string      `json:"parent_code,omitempty"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// JournalEntry is the header of a balanced set of lines.
type JournalEntry struct {
	ID           int64           `json:"id"`
	Reference    string          `json:"reference"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	PartnerID    *int64          `json:"partner_id,omitempty"`
	CurrencyCode string          `json:"currency"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	SourceModule string          `json:"source_module,omitempty"`
	ReversalOf   *int64          `json:"reversal_of,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	Lines        []JournalLine   `json:"lines"`
}

// JournalLine stores one debit or credit amount against an account.
type JournalLine struct {
	ID          int64           `json:"id"`
	EntryID     int64           `json:"entry_id"`
	AccountCode string          `json:"account_code"`
	Side        Side            `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
}

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountCode string          `json:"account_code" validate:"required,max=20"`
	Side        Side            `json:"side" validate:"required,oneof=DEBIT CREDIT"`
	Amount      decimal.Decimal `json:"amount"`
}

// Debit is shorthand for a debit line.
func Debit(code string, amount decimal.Decimal) PostingLineInput {
	return PostingLineInput{AccountCode: code, Side: SideDebit, Amount: amount}
}

// Credit is shorthand for a credit line.
func Credit(code string, amount decimal.Decimal) PostingLineInput {
	return PostingLineInput{AccountCode: code, Side: SideCredit, Amount: amount}
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Reference    string             `json:"reference" validate:"required,max=50"`
	Date         time.Time          `json:"date" validate:"required"`
	Description  string             `json:"description"`
	PartnerID    *int64             `json:"partner_id,omitempty"`
	CurrencyCode string             `json:"currency" validate:"required,len=3"`
	ExchangeRate decimal.Decimal    `json:"exchange_rate"`
	SourceModule string             `json:"source_module,omitempty"`
	ReversalOf   *int64             `json:"-"`
	ActorID      int64              `json:"-"`
	Lines        []PostingLineInput `json:"lines" validate:"dive"`
}

// AccountInput is the request shape for creating an account.
type AccountInput struct {
	Code        string       `json:"code" validate:"required,max=20"`
	Name        string       `json:"name" validate:"required,max=200"`
	Class       AccountClass `json:"class" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	NaturalSide Side         `json:"natural_side,omitempty" validate:"omitempty,oneof=DEBIT CREDIT"`
	ParentCode  *string      `json:"parent_code,omitempty" validate:"omitempty,max=20"`
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	Reference string
	Date      *time.Time
	Memo      string
	ActorID   int64
}

// TrialBalanceRow aggregates posted amounts for a single account.
type TrialBalanceRow struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Class       AccountClass    `json:"class"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// Balance returns the net amount on the account's natural side.
func (r TrialBalanceRow) Balance() decimal.Decimal {
	if r.Class.NaturalSide() == SideDebit {
		return r.Debit.Sub(r.Credit)
	}
	return r.Credit.Sub(r.Debit)
}

// Imbalance is a stored entry whose debits and credits differ beyond
// BalanceTolerance.
type Imbalance struct {
	EntryID   int64           `json:"entry_id"`
	Reference string          `json:"reference"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountCode: line.AccountCode,
			Side:        line.Side.Opposite(),
			Amount:      line.Amount,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			EntryID:     entryID,
			AccountCode: line.AccountCode,
			Side:        line.Side,
			Amount:      line.Amount,
		})
	}
	return out
}
