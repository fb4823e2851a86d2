package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hermes-erp/hermes/internal/shared"
)

// maxAccountDepth bounds the parent walk of the cycle check.
const maxAccountDepth = 64

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the chart of accounts and journal postings.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, validate: validator.New(), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostJournal validates and persists a new journal entry.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := s.validate.Struct(input); err != nil {
		return JournalEntry{}, fmt.Errorf("%w: %v", ErrInvalidLine, err)
	}
	if err := Validate(input.Lines); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = CreateJournalEntry(ctx, tx, input)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.ActorID, "journal.post", "journal_entry", entry.Reference, map[string]any{
		"id":            entry.ID,
		"source_module": input.SourceModule,
	})
	return entry, nil
}

// ReverseJournal creates the mirror entry of an existing journal.
func (s *Service) ReverseJournal(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = Reverse(ctx, tx, input)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.ActorID, "journal.reverse", "journal_entry", input.Reference, map[string]any{
		"reversal_id":        reversal.ID,
		"reversal_reference": reversal.Reference,
	})
	return reversal, nil
}

// GetJournalByReference loads an entry with its lines.
func (s *Service) GetJournalByReference(ctx context.Context, reference string) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetJournalByReference(ctx, reference)
		return err
	})
	return entry, err
}

// ListJournalEntries returns the most recent entry headers.
func (s *Service) ListJournalEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListJournalEntries(ctx, limit)
		return err
	})
	return entries, err
}

// GetAccount looks up an account by code.
func (s *Service) GetAccount(ctx context.Context, code string) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccount(ctx, code)
		return err
	})
	return account, err
}

// ListAccounts retrieves all chart of accounts entries.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// CreateAccount adds a node to the chart of accounts.
func (s *Service) CreateAccount(ctx context.Context, input AccountInput) (Account, error) {
	if err := s.validate.Struct(input); err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	side := input.NaturalSide
	if side == "" {
		side = input.Class.NaturalSide()
	}
	now := s.now()
	account := Account{
		Code:        input.Code,
		Name:        input.Name,
		Class:       input.Class,
		NaturalSide: side,
		ParentCode:  input.ParentCode,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.ParentCode != nil {
			if err := checkParent(ctx, tx, input.Code, *input.ParentCode); err != nil {
				return err
			}
		}
		return tx.InsertAccount(ctx, account)
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// ReparentAccount moves an account under a new parent, or to the root when
// parent is nil.
func (s *Service) ReparentAccount(ctx context.Context, code string, parent *string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, code); err != nil {
			return err
		}
		if parent != nil {
			if err := checkParent(ctx, tx, code, *parent); err != nil {
				return err
			}
		}
		return tx.UpdateAccountParent(ctx, code, parent)
	})
}

// DeactivateAccount blocks further postings to the account.
func (s *Service) DeactivateAccount(ctx context.Context, code string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, code); err != nil {
			return err
		}
		return tx.SetAccountActive(ctx, code, false)
	})
}

// DeleteAccount removes an account that no journal line references.
func (s *Service) DeleteAccount(ctx context.Context, code string, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, code); err != nil {
			return err
		}
		count, err := tx.CountLinesForAccount(ctx, code)
		if err != nil {
			return err
		}
		if count > 0 {
			return &AccountError{Code: code, Err: ErrReferentialIntegrity}
		}
		return tx.DeleteAccount(ctx, code)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "account.delete", "account", code, nil)
	return nil
}

// TrialBalance aggregates posted amounts per account.
func (s *Service) TrialBalance(ctx context.Context) ([]TrialBalanceRow, error) {
	var rows []TrialBalanceRow
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rows, err = tx.TrialBalance(ctx)
		return err
	})
	return rows, err
}

// UnbalancedEntries lists stored entries that no longer balance, including
// entries without lines.
func (s *Service) UnbalancedEntries(ctx context.Context) ([]Imbalance, error) {
	var out []Imbalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.UnbalancedEntries(ctx)
		return err
	})
	return out, err
}

func checkParent(ctx context.Context, tx TxRepository, code, parent string) error {
	current := parent
	for depth := 0; depth < maxAccountDepth; depth++ {
		if current == code {
			return &AccountError{Code: code, Err: ErrAccountCycle}
		}
		account, err := tx.GetAccount(ctx, current)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return &AccountError{Code: current, Err: ErrAccountNotFound}
			}
			return err
		}
		if account.ParentCode == nil {
			return nil
		}
		current = *account.ParentCode
	}
	return &AccountError{Code: code, Err: ErrAccountCycle}
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
