package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/inventory"
	"github.com/hermes-erp/hermes/internal/posting"
	"github.com/hermes-erp/hermes/internal/shared"
)

// DefaultTaxRate applies when no rate is configured.
var DefaultTaxRate = decimal.RequireFromString("0.18")

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
}

// Poster writes the journal entries of sales documents.
type Poster interface {
	PostSale(ctx context.Context, tx accounting.LedgerTx, evt posting.SaleEvent) (accounting.JournalEntry, error)
	PostCostOfGoods(ctx context.Context, tx accounting.LedgerTx, evt posting.CostOfGoodsEvent) (accounting.JournalEntry, error)
	PostPayment(ctx context.Context, tx accounting.LedgerTx, evt posting.PaymentEvent) (accounting.JournalEntry, error)
}

// StockMover records stock movements inside the caller's transaction.
type StockMover interface {
	RecordMovement(ctx context.Context, tx inventory.StockTx, m inventory.Movement) (inventory.Movement, error)
	ApplyToStock(ctx context.Context, tx inventory.StockTx, m inventory.Movement) (inventory.Stock, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config groups invoicing settings.
type Config struct {
	TaxRate     decimal.Decimal
	WarehouseID int64
}

// Service provides business logic for invoicing.
type Service struct {
	repo     RepositoryPort
	poster   Poster
	stock    StockMover
	audit    AuditPort
	cfg      Config
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, poster Poster, stock StockMover, audit AuditPort, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TaxRate.IsZero() {
		cfg.TaxRate = DefaultTaxRate
	}
	return &Service{
		repo:     repo,
		poster:   poster,
		stock:    stock,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInvoice issues an invoice, takes the physical lines out of the sales
// warehouse and posts the sale and cost of goods entries, all in one
// transaction. A configuration error while posting keeps the invoice with
// PostingStatus UNPOSTED; any other failure rolls everything back.
func (s *Service) CreateInvoice(ctx context.Context, input InvoiceInput) (Invoice, error) {
	if err := s.validate.Struct(input); err != nil {
		return Invoice{}, fmt.Errorf("%w: %v", ErrInvalidInvoice, err)
	}
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		partner, err := tx.GetPartner(ctx, input.PartnerID)
		if err != nil {
			return err
		}
		if !partner.IsCustomer() {
			return ErrNotCustomer
		}
		draft, physical, err := s.buildInvoice(ctx, tx, input)
		if err != nil {
			return err
		}
		inv, err = tx.InsertInvoice(ctx, draft)
		if err != nil {
			return err
		}
		if err := s.issueStock(ctx, tx, &inv, physical); err != nil {
			return err
		}
		postErr := s.post(ctx, tx, &inv, input.ActorID)
		return s.settle(ctx, tx, &inv, postErr)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "sales.invoice.create",
		Entity:   "invoice",
		EntityID: inv.Number,
		Meta: map[string]any{
			"total":          inv.Total.StringFixed(2),
			"posting_status": inv.PostingStatus,
		},
	})
	return inv, nil
}

// buildInvoice prices the lines and computes totals. It also reports which
// line numbers carry physical products.
func (s *Service) buildInvoice(ctx context.Context, tx TxRepository, input InvoiceInput) (Invoice, map[int]bool, error) {
	inv := Invoice{
		Number:        input.Number,
		PartnerID:     input.PartnerID,
		Date:          input.Date,
		CurrencyCode:  input.CurrencyCode,
		ExchangeRate:  input.ExchangeRate,
		Status:        InvoiceStatusIssued,
		PostingStatus: PostingUnposted,
	}
	physical := make(map[int]bool)
	taxable := decimal.Zero
	for i, in := range input.Lines {
		if !in.Quantity.IsPositive() {
			return Invoice{}, nil, fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidInvoice, i+1)
		}
		product, err := tx.GetProduct(ctx, in.ProductID)
		if err != nil {
			return Invoice{}, nil, err
		}
		price := product.Price
		if in.UnitPrice != nil {
			price = *in.UnitPrice
		}
		if price.IsNegative() {
			return Invoice{}, nil, fmt.Errorf("%w: line %d price must be >= 0", ErrInvalidInvoice, i+1)
		}
		line := InvoiceLine{
			LineNo:    i + 1,
			ProductID: product.ID,
			Quantity:  in.Quantity,
			UnitPrice: price,
			Taxable:   product.Taxable,
			LineTotal: in.Quantity.Mul(price).Round(2),
		}
		inv.Subtotal = inv.Subtotal.Add(line.LineTotal)
		if line.Taxable {
			taxable = taxable.Add(line.LineTotal)
		}
		if product.IsPhysical() {
			physical[line.LineNo] = true
		}
		inv.Lines = append(inv.Lines, line)
	}
	inv.TaxAmount = taxable.Mul(s.cfg.TaxRate).Round(2)
	inv.Total = inv.Subtotal.Add(inv.TaxAmount)
	return inv, physical, nil
}

// issueStock records an outbound movement per physical line and links it to
// the line.
func (s *Service) issueStock(ctx context.Context, tx TxRepository, inv *Invoice, physical map[int]bool) error {
	if len(physical) == 0 {
		return nil
	}
	if s.cfg.WarehouseID == 0 {
		return ErrWarehouseNotConfigured
	}
	for i := range inv.Lines {
		line := &inv.Lines[i]
		if !physical[line.LineNo] {
			continue
		}
		product, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return err
		}
		invoiceID := inv.ID
		m, err := s.stock.RecordMovement(ctx, tx, inventory.Movement{
			Code:        fmt.Sprintf("FACT-%s-%d", inv.Number, line.LineNo),
			Kind:        inventory.MovementOut,
			ProductID:   line.ProductID,
			WarehouseID: s.cfg.WarehouseID,
			Quantity:    line.Quantity,
			UnitCost:    product.UnitCost,
			RefModule:   posting.ModuleSale,
			RefID:       &invoiceID,
			PostedAt:    inv.Date,
		})
		if err != nil {
			return err
		}
		if _, err := s.stock.ApplyToStock(ctx, tx, m); err != nil {
			return err
		}
		if err := tx.SetLineMovement(ctx, line.ID, m.ID); err != nil {
			return err
		}
		movementID := m.ID
		line.MovementID = &movementID
	}
	return nil
}

// post writes whatever journal entries the invoice is still missing: the
// sale entry, then one cost of goods entry per issued line. A line without a
// unit cost is skipped and left for a later retry.
func (s *Service) post(ctx context.Context, tx TxRepository, inv *Invoice, actorID int64) error {
	partnerID := inv.PartnerID
	header := posting.Header{
		Reference:    posting.SaleReference(inv.Number),
		Date:         inv.Date,
		Description:  "Invoice " + inv.Number,
		PartnerID:    &partnerID,
		CurrencyCode: inv.CurrencyCode,
		ExchangeRate: inv.ExchangeRate,
		ActorID:      actorID,
	}
	if inv.JournalEntryID == nil {
		entry, err := s.poster.PostSale(ctx, tx, posting.SaleEvent{
			Header:   header,
			Subtotal: inv.Subtotal,
			Tax:      inv.TaxAmount,
			Total:    inv.Total,
		})
		if err != nil {
			return err
		}
		entryID := entry.ID
		inv.JournalEntryID = &entryID
	}
	for _, line := range inv.Lines {
		if line.MovementID == nil {
			continue
		}
		m, err := tx.GetMovement(ctx, *line.MovementID)
		if err != nil {
			return err
		}
		if m.JournalEntryID != nil {
			continue
		}
		cost, err := s.issuedCost(ctx, tx, m)
		if err != nil {
			return err
		}
		// Costs are carried in the principal currency.
		cogs := posting.Header{
			Reference:   posting.CostOfGoodsReference(inv.Number, line.LineNo),
			Date:        inv.Date,
			Description: fmt.Sprintf("Cost of goods, invoice %s line %d", inv.Number, line.LineNo),
			PartnerID:   &partnerID,
			ActorID:     actorID,
		}
		entry, err := s.poster.PostCostOfGoods(ctx, tx, posting.CostOfGoodsEvent{Header: cogs, UnitCost: cost, Quantity: m.Quantity})
		if errors.Is(err, accounting.ErrMissingCost) {
			continue
		}
		if err != nil {
			return err
		}
		if err := tx.SetMovementJournal(ctx, m.ID, entry.ID); err != nil {
			return err
		}
	}
	return nil
}

// issuedCost is the movement's unit cost, or the product's current cost when
// the product was uncosted at issue time.
func (s *Service) issuedCost(ctx context.Context, tx TxRepository, m inventory.Movement) (*decimal.Decimal, error) {
	if m.UnitCost != nil {
		return m.UnitCost, nil
	}
	product, err := tx.GetProduct(ctx, m.ProductID)
	if err != nil {
		return nil, err
	}
	return product.UnitCost, nil
}

// settle stores the posting outcome. Configuration errors are absorbed so the
// transaction commits with the document unposted.
func (s *Service) settle(ctx context.Context, tx TxRepository, inv *Invoice, postErr error) error {
	inv.PostingStatus, inv.PostingError = PostingPosted, ""
	if postErr != nil {
		if _, ok := accounting.IsConfigurationError(postErr); !ok {
			return postErr
		}
		inv.PostingStatus, inv.PostingError = PostingUnposted, postErr.Error()
	}
	return tx.UpdateInvoicePosting(ctx, inv.ID, inv.PostingStatus, inv.PostingError, inv.JournalEntryID)
}

// RetryPosting posts the journal entries an invoice is still missing.
func (s *Service) RetryPosting(ctx context.Context, id, actorID int64) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceStatusVoid {
			return ErrInvoiceVoid
		}
		return s.settle(ctx, tx, &inv, s.post(ctx, tx, &inv, actorID))
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "posting.retry",
		Entity:   "invoice",
		EntityID: inv.Number,
		Meta:     map[string]any{"posting_status": inv.PostingStatus},
	})
	return inv, nil
}

// RecordPayment applies a customer payment and posts cash against
// receivables. The invoice turns PAID once its balance reaches zero. A
// payment is rejected outright when it cannot be posted, and so is a payment
// against an invoice whose sale entry is not in the ledger yet.
func (s *Service) RecordPayment(ctx context.Context, id int64, input PaymentInput) (Payment, error) {
	if err := s.validate.Struct(input); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}
	if !input.Amount.IsPositive() {
		return Payment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case InvoiceStatusVoid:
			return ErrInvoiceVoid
		case InvoiceStatusPaid:
			return ErrInvoicePaid
		}
		if inv.JournalEntryID == nil {
			return ErrInvoiceUnposted
		}
		amount := input.Amount.Round(2)
		if amount.GreaterThan(inv.Balance()) {
			return fmt.Errorf("%w: balance %s, payment %s", ErrOverpayment, inv.Balance().StringFixed(2), amount.StringFixed(2))
		}
		count, err := tx.CountPayments(ctx, inv.ID)
		if err != nil {
			return err
		}
		seq := count + 1
		partnerID := inv.PartnerID
		entry, err := s.poster.PostPayment(ctx, tx, posting.PaymentEvent{
			Header: posting.Header{
				Reference:    posting.PaymentReference(inv.Number, seq),
				Date:         input.Date,
				Description:  fmt.Sprintf("Payment %d of invoice %s", seq, inv.Number),
				PartnerID:    &partnerID,
				CurrencyCode: inv.CurrencyCode,
				ExchangeRate: inv.ExchangeRate,
				ActorID:      input.ActorID,
			},
			Amount: amount,
		})
		if err != nil {
			return err
		}
		entryID := entry.ID
		payment, err = tx.InsertPayment(ctx, Payment{
			InvoiceID:      inv.ID,
			Seq:            seq,
			Amount:         amount,
			PaidAt:         input.Date,
			JournalEntryID: &entryID,
		})
		if err != nil {
			return err
		}
		paid := inv.AmountPaid.Add(amount)
		status := inv.Status
		if paid.GreaterThanOrEqual(inv.Total) {
			status = InvoiceStatusPaid
		}
		return tx.UpdateInvoiceStatus(ctx, inv.ID, status, paid)
	})
	if err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// VoidInvoice reverses the invoice's journal entries, returns the issued
// stock and marks the invoice VOID. Invoices with payments cannot be voided.
func (s *Service) VoidInvoice(ctx context.Context, id, actorID int64) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == InvoiceStatusVoid {
			return ErrInvoiceVoid
		}
		if inv.AmountPaid.IsPositive() {
			return ErrInvoiceHasPayments
		}
		today := s.now().Truncate(24 * time.Hour)
		if inv.JournalEntryID != nil {
			if _, err := accounting.Reverse(ctx, tx, accounting.ReverseInput{
				Reference: posting.SaleReference(inv.Number),
				Date:      &today,
				ActorID:   actorID,
			}); err != nil {
				return err
			}
		}
		for _, line := range inv.Lines {
			if line.MovementID == nil {
				continue
			}
			if err := s.returnStock(ctx, tx, inv, line, today, actorID); err != nil {
				return err
			}
		}
		inv.Status = InvoiceStatusVoid
		return tx.UpdateInvoiceStatus(ctx, inv.ID, inv.Status, inv.AmountPaid)
	})
	if err != nil {
		return Invoice{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "sales.invoice.void",
		Entity:   "invoice",
		EntityID: inv.Number,
	})
	return inv, nil
}

func (s *Service) returnStock(ctx context.Context, tx TxRepository, inv Invoice, line InvoiceLine, on time.Time, actorID int64) error {
	issued, err := tx.GetMovement(ctx, *line.MovementID)
	if err != nil {
		return err
	}
	if issued.JournalEntryID != nil {
		if _, err := accounting.Reverse(ctx, tx, accounting.ReverseInput{
			Reference: posting.CostOfGoodsReference(inv.Number, line.LineNo),
			Date:      &on,
			ActorID:   actorID,
		}); err != nil {
			return err
		}
	}
	cost, err := s.issuedCost(ctx, tx, issued)
	if err != nil {
		return err
	}
	invoiceID := inv.ID
	m, err := s.stock.RecordMovement(ctx, tx, inventory.Movement{
		Code:        issued.Code + "-VOID",
		Kind:        inventory.MovementIn,
		ProductID:   issued.ProductID,
		WarehouseID: issued.WarehouseID,
		Quantity:    issued.Quantity,
		UnitCost:    cost,
		RefModule:   posting.ModuleSale,
		RefID:       &invoiceID,
		PostedAt:    on,
	})
	if err != nil {
		return err
	}
	_, err = s.stock.ApplyToStock(ctx, tx, m)
	return err
}

// GetInvoice returns an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices lists invoice headers.
func (s *Service) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListInvoices(ctx, filter)
}

// ListPayments lists the payments applied to an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, invoiceID)
}

// ListUnposted returns the ids of live invoices waiting for a posting retry.
func (s *Service) ListUnposted(ctx context.Context) ([]int64, error) {
	invoices, err := s.repo.ListInvoices(ctx, ListFilter{PostingStatus: PostingUnposted, Limit: 500})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(invoices))
	for _, inv := range invoices {
		if inv.Status != InvoiceStatusVoid {
			ids = append(ids, inv.ID)
		}
	}
	return ids, nil
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	log.At = s.now()
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record", slog.String("action", log.Action), slog.Any("error", err))
	}
}
