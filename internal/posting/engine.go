package posting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/accounting/mappings"
	"github.com/hermes-erp/hermes/internal/currency"
)

// RoleSource supplies the current role to account mapping.
type RoleSource interface {
	RoleMap(ctx context.Context) (mappings.RoleMap, error)
}

// CurrencyResolver settles the currency and rate of an entry.
type CurrencyResolver interface {
	Resolve(ctx context.Context, code string, supplied *decimal.Decimal, on time.Time) (currency.Resolution, error)
}

// Header carries the document fields copied onto the journal entry. An empty
// CurrencyCode means the principal currency.
type Header struct {
	Reference    string
	Date         time.Time
	Description  string
	PartnerID    *int64
	CurrencyCode string
	ExchangeRate *decimal.Decimal
	ActorID      int64
}

// SaleEvent is an issued invoice.
type SaleEvent struct {
	Header
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// CostOfGoodsEvent is the stock issue of one physical invoice line.
type CostOfGoodsEvent struct {
	Header
	UnitCost *decimal.Decimal
	Quantity decimal.Decimal
}

// PayrollEvent is a computed payroll run.
type PayrollEvent struct {
	Header
	Earnings   decimal.Decimal
	Deductions decimal.Decimal
	NetPay     decimal.Decimal
}

// PurchaseReceiptEvent is a goods receipt against a purchase order.
type PurchaseReceiptEvent struct {
	Header
	Lines []ReceiptLine
}

// PaymentEvent is a customer payment against an invoice.
type PaymentEvent struct {
	Header
	Amount decimal.Decimal
}

// Engine derives journal lines from business events and writes them through
// the caller's transaction.
type Engine struct {
	roles      RoleSource
	currencies CurrencyResolver
	metrics    *Metrics
	logger     *slog.Logger
}

// NewEngine constructs the posting engine. metrics may be nil.
func NewEngine(roles RoleSource, currencies CurrencyResolver, metrics *Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{roles: roles, currencies: currencies, metrics: metrics, logger: logger}
}

// PostSale writes the receivable, revenue and tax entry of an invoice.
func (e *Engine) PostSale(ctx context.Context, tx accounting.LedgerTx, evt SaleEvent) (accounting.JournalEntry, error) {
	return e.post(ctx, tx, ModuleSale, evt.Header, func(roles mappings.RoleMap) ([]accounting.PostingLineInput, error) {
		return DeriveSaleLines(evt.Subtotal, evt.Tax, evt.Total, roles)
	})
}

// PostCostOfGoods writes the cost of goods sold entry of a stock issue.
func (e *Engine) PostCostOfGoods(ctx context.Context, tx accounting.LedgerTx, evt CostOfGoodsEvent) (accounting.JournalEntry, error) {
	return e.post(ctx, tx, ModuleCostOfGoods, evt.Header, func(roles mappings.RoleMap) ([]accounting.PostingLineInput, error) {
		return DeriveCostOfGoodsLines(evt.UnitCost, evt.Quantity, roles)
	})
}

// PostPayroll writes the expense, payable and accrual entry of a payroll run.
func (e *Engine) PostPayroll(ctx context.Context, tx accounting.LedgerTx, evt PayrollEvent) (accounting.JournalEntry, error) {
	return e.post(ctx, tx, ModulePayroll, evt.Header, func(roles mappings.RoleMap) ([]accounting.PostingLineInput, error) {
		return DerivePayrollLines(evt.Earnings, evt.Deductions, evt.NetPay, roles)
	})
}

// PostPurchaseReceipt writes the inventory and payables entry of a receipt.
func (e *Engine) PostPurchaseReceipt(ctx context.Context, tx accounting.LedgerTx, evt PurchaseReceiptEvent) (accounting.JournalEntry, error) {
	return e.post(ctx, tx, ModulePurchaseReceipt, evt.Header, func(roles mappings.RoleMap) ([]accounting.PostingLineInput, error) {
		return DerivePurchaseReceiptLines(evt.Lines, roles)
	})
}

// PostPayment writes the cash and receivables entry of a customer payment.
func (e *Engine) PostPayment(ctx context.Context, tx accounting.LedgerTx, evt PaymentEvent) (accounting.JournalEntry, error) {
	return e.post(ctx, tx, ModulePayment, evt.Header, func(roles mappings.RoleMap) ([]accounting.PostingLineInput, error) {
		return DerivePaymentLines(evt.Amount, roles)
	})
}

func (e *Engine) post(ctx context.Context, tx accounting.LedgerTx, module string, h Header, derive func(mappings.RoleMap) ([]accounting.PostingLineInput, error)) (accounting.JournalEntry, error) {
	entry, err := e.build(ctx, tx, module, h, derive)
	e.metrics.Observe(module, err)
	e.report(module, h.Reference, entry, err)
	return entry, err
}

func (e *Engine) build(ctx context.Context, tx accounting.LedgerTx, module string, h Header, derive func(mappings.RoleMap) ([]accounting.PostingLineInput, error)) (accounting.JournalEntry, error) {
	if e == nil || e.roles == nil || e.currencies == nil {
		return accounting.JournalEntry{}, errors.New("posting: engine not configured")
	}
	if h.Reference == "" {
		return accounting.JournalEntry{}, errors.New("posting: reference required")
	}
	if h.Date.IsZero() {
		return accounting.JournalEntry{}, errors.New("posting: date required")
	}
	roles, err := e.roles.RoleMap(ctx)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	lines, err := derive(roles)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	if err := checkMappedAccounts(ctx, tx, lines); err != nil {
		return accounting.JournalEntry{}, err
	}
	res, err := e.currencies.Resolve(ctx, h.CurrencyCode, h.ExchangeRate, h.Date)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	return accounting.Post(ctx, tx, accounting.PostingInput{
		Reference:    h.Reference,
		Date:         h.Date,
		Description:  h.Description,
		PartnerID:    h.PartnerID,
		CurrencyCode: res.CurrencyCode,
		ExchangeRate: res.Rate,
		SourceModule: module,
		ActorID:      h.ActorID,
		Lines:        lines,
	})
}

// checkMappedAccounts turns a role bound to a missing or inactive account into
// a configuration error, before anything is written.
func checkMappedAccounts(ctx context.Context, tx accounting.LedgerTx, lines []accounting.PostingLineInput) error {
	codes := make([]string, 0, len(lines))
	for _, line := range lines {
		codes = append(codes, line.AccountCode)
	}
	err := accounting.CheckAccounts(ctx, tx, codes...)
	var accErr *accounting.AccountError
	if errors.As(err, &accErr) {
		return &accounting.ConfigurationError{
			Key:    "account:" + accErr.Code,
			Detail: "mapped account cannot receive postings",
			Err:    err,
		}
	}
	return err
}

func (e *Engine) report(module, reference string, entry accounting.JournalEntry, err error) {
	if e == nil {
		return
	}
	if err == nil {
		e.logger.Info("journal posted",
			slog.String("module", module),
			slog.String("reference", reference),
			slog.Int64("entry_id", entry.ID))
		return
	}
	if cfgErr, ok := accounting.IsConfigurationError(err); ok {
		e.logger.Warn("posting skipped: configuration",
			slog.String("module", module),
			slog.String("reference", reference),
			slog.String("key", cfgErr.Key),
			slog.Any("error", err))
		return
	}
	if errors.Is(err, accounting.ErrMissingCost) {
		e.logger.Warn("posting skipped: missing cost",
			slog.String("module", module),
			slog.String("reference", reference))
		return
	}
	e.logger.Error("posting failed",
		slog.String("module", module),
		slog.String("reference", reference),
		slog.Any("error", err))
}

