package accounting

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyEntry indicates a journal without lines.
	ErrEmptyEntry = errors.New("accounting: journal entry requires at least one line")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrInvalidLine indicates a malformed journal line.
	ErrInvalidLine = errors.New("accounting: invalid journal line")
	// ErrAccountNotFound indicates a missing account code.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrInvalidAccount indicates an account that cannot receive postings.
	ErrInvalidAccount = errors.New("accounting: account is inactive")
	// ErrAccountExists indicates the code is already taken.
	ErrAccountExists = errors.New("accounting: account code already exists")
	// ErrAccountCycle indicates a parent assignment that would create a loop.
	ErrAccountCycle = errors.New("accounting: account hierarchy cycle")
	// ErrReferentialIntegrity indicates a delete blocked by dependents.
	ErrReferentialIntegrity = errors.New("accounting: account is referenced by journal lines")
	// ErrDuplicateReference indicates the entry reference already exists.
	ErrDuplicateReference = errors.New("accounting: journal reference already exists")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrAlreadyReversed indicates the entry already has a reversal.
	ErrAlreadyReversed = errors.New("accounting: journal entry already reversed")
	// ErrConfiguration indicates missing role mapping or ambiguous principal currency.
	ErrConfiguration = errors.New("accounting: configuration error")
	// ErrMissingCost indicates a physical product without unit cost.
	ErrMissingCost = errors.New("accounting: unit cost is not defined")
)

// BalanceError reports the computed totals of an unbalanced line set.
type BalanceError struct {
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Error prints both totals with at least two decimals, and with more when a
// total carries sub-cent digits so that the difference stays visible.
func (e *BalanceError) Error() string {
	places := int32(2)
	for _, d := range []decimal.Decimal{e.TotalDebit, e.TotalCredit} {
		if exp := -d.Exponent(); exp > places {
			places = exp
		}
	}
	return fmt.Sprintf("accounting: journal lines must balance: debit=%s credit=%s",
		e.TotalDebit.StringFixed(places), e.TotalCredit.StringFixed(places))
}

func (e *BalanceError) Unwrap() error { return ErrUnbalanced }

// LineError points at the offending line of a posting request.
type LineError struct {
	Index  int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("accounting: line %d: %s", e.Index, e.Reason)
}

func (e *LineError) Unwrap() error { return ErrInvalidLine }

// AccountError carries the code that failed lookup or activity checks.
type AccountError struct {
	Code string
	Err  error
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Code)
}

func (e *AccountError) Unwrap() error { return e.Err }

// ConfigurationError names the configuration key that could not be resolved.
// Posting callers treat it as non-fatal for the parent document.
type ConfigurationError struct {
	Key    string
	Detail string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "accounting: configuration error: " + e.Key
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is lets errors.Is match ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err carries a ConfigurationError and returns it.
func IsConfigurationError(err error) (*ConfigurationError, bool) {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr, true
	}
	return nil, false
}
