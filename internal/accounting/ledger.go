package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// LedgerTx is the slice of the ledger store that other modules need to write
// journal entries inside their own transaction.
type LedgerTx interface {
	GetAccount(ctx context.Context, code string) (Account, error)
	InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	GetJournalByReference(ctx context.Context, reference string) (JournalEntry, error)
}

// CheckAccounts verifies that every code exists and accepts postings.
func CheckAccounts(ctx context.Context, tx LedgerTx, codes ...string) error {
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		account, err := tx.GetAccount(ctx, code)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return &AccountError{Code: code, Err: ErrAccountNotFound}
			}
			return err
		}
		if !account.IsActive {
			return &AccountError{Code: code, Err: ErrInvalidAccount}
		}
	}
	return nil
}

// CreateJournalEntry persists header and lines through tx. It does not check
// the balance invariant; callers run Validate first. Nothing is written when an
// account check fails.
func CreateJournalEntry(ctx context.Context, tx LedgerTx, in PostingInput) (JournalEntry, error) {
	codes := make([]string, 0, len(in.Lines))
	for _, line := range in.Lines {
		codes = append(codes, line.AccountCode)
	}
	if err := CheckAccounts(ctx, tx, codes...); err != nil {
		return JournalEntry{}, err
	}
	if in.ExchangeRate.IsZero() {
		in.ExchangeRate = decimal.NewFromInt(1)
	}
	entry, err := tx.InsertJournalEntry(ctx, in)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.InsertJournalLines(ctx, entry.ID, in.Lines); err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = toJournalLines(entry.ID, in.Lines)
	return entry, nil
}

// Post validates the lines and writes the entry through tx.
func Post(ctx context.Context, tx LedgerTx, in PostingInput) (JournalEntry, error) {
	if in.Reference == "" {
		return JournalEntry{}, errors.New("accounting: reference required")
	}
	if err := Validate(in.Lines); err != nil {
		return JournalEntry{}, err
	}
	return CreateJournalEntry(ctx, tx, in)
}

// ReversalReference derives the reference of the reversing entry.
func ReversalReference(reference string) string {
	return reference + "-REV"
}

// Reverse writes a mirror entry of the referenced journal through tx.
func Reverse(ctx context.Context, tx LedgerTx, input ReverseInput) (JournalEntry, error) {
	if input.Reference == "" {
		return JournalEntry{}, errors.New("accounting: reference required")
	}
	original, err := tx.GetJournalByReference(ctx, input.Reference)
	if err != nil {
		return JournalEntry{}, err
	}
	revRef := ReversalReference(original.Reference)
	if _, err := tx.GetJournalByReference(ctx, revRef); err == nil {
		return JournalEntry{}, ErrAlreadyReversed
	} else if !errors.Is(err, ErrJournalNotFound) {
		return JournalEntry{}, err
	}
	date := original.Date
	if input.Date != nil {
		date = *input.Date
	}
	memo := input.Memo
	if memo == "" {
		memo = fmt.Sprintf("Reversal of %s", original.Reference)
	}
	originalID := original.ID
	return Post(ctx, tx, PostingInput{
		Reference:    revRef,
		Date:         date,
		Description:  memo,
		PartnerID:    original.PartnerID,
		CurrencyCode: original.CurrencyCode,
		ExchangeRate: original.ExchangeRate,
		SourceModule: original.SourceModule,
		ReversalOf:   &originalID,
		ActorID:      input.ActorID,
		Lines:        reverseLines(original.Lines),
	})
}
