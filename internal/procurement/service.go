package procurement

import (
	"context"
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

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, limit int) ([]PurchaseOrder, error)
	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]Receipt, error)
}

// Poster writes the journal entry of a goods receipt.
type Poster interface {
	PostPurchaseReceipt(ctx context.Context, tx accounting.LedgerTx, evt posting.PurchaseReceiptEvent) (accounting.JournalEntry, error)
}

// InventoryPort exposes required inventory integration.
type InventoryPort interface {
	RecordMovement(ctx context.Context, tx inventory.StockTx, m inventory.Movement) (inventory.Movement, error)
	ApplyToStock(ctx context.Context, tx inventory.StockTx, m inventory.Movement) (inventory.Stock, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates procurement flows.
type Service struct {
	repo      RepositoryPort
	poster    Poster
	inventory InventoryPort
	audit     AuditPort
	taxRate   decimal.Decimal
	logger    *slog.Logger
	validate  *validator.Validate
	now       func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, poster Poster, inventory InventoryPort, audit AuditPort, taxRate decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		poster:    poster,
		inventory: inventory,
		audit:     audit,
		taxRate:   taxRate,
		logger:    logger,
		validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder persists a purchase order. Orders do not touch the ledger.
func (s *Service) CreateOrder(ctx context.Context, input OrderInput) (PurchaseOrder, error) {
	if err := s.validate.Struct(input); err != nil {
		return PurchaseOrder{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}
	po := PurchaseOrder{
		Number:       input.Number,
		SupplierID:   input.SupplierID,
		Date:         defaultTime(input.Date, s.now()),
		CurrencyCode: input.CurrencyCode,
		ExchangeRate: input.ExchangeRate,
		Status:       OrderStatusDraft,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		supplier, err := tx.GetPartner(ctx, input.SupplierID)
		if err != nil {
			return err
		}
		if !supplier.IsSupplier() {
			return ErrNotSupplier
		}
		taxable := decimal.Zero
		for i, in := range input.Lines {
			if !in.Quantity.IsPositive() || in.UnitCost.IsNegative() {
				return fmt.Errorf("%w: line %d needs a positive quantity and a non-negative cost", ErrValidation, i+1)
			}
			product, err := tx.GetProduct(ctx, in.ProductID)
			if err != nil {
				return err
			}
			if !product.IsPhysical() {
				return fmt.Errorf("%w: line %d product %s is not stocked", ErrValidation, i+1, product.SKU)
			}
			amount := in.Quantity.Mul(in.UnitCost).Round(2)
			po.Subtotal = po.Subtotal.Add(amount)
			if product.Taxable {
				taxable = taxable.Add(amount)
			}
			po.Lines = append(po.Lines, OrderLine{ProductID: in.ProductID, Quantity: in.Quantity, UnitCost: in.UnitCost})
		}
		po.TaxAmount = taxable.Mul(s.taxRate).Round(2)
		po.Total = po.Subtotal.Add(po.TaxAmount)
		po, err = tx.InsertOrder(ctx, po)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "procurement.order.create", po.Number, map[string]any{"total": po.Total.StringFixed(2)})
	return po, nil
}

// ReceiveOrder books a goods receipt: stock comes in at the ordered cost, the
// order's received quantities advance and the receipt is posted to the
// ledger, all in one transaction. Configuration errors leave the receipt
// unposted; any other error rolls back.
func (s *Service) ReceiveOrder(ctx context.Context, input ReceiptInput) (Receipt, error) {
	if err := s.validate.Struct(input); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if input.Number == "" {
		input.Number = generateNumber("GR")
	}
	var receipt Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if po.Status == OrderStatusReceived {
			return ErrOrderClosed
		}
		draft, received, err := planReceipt(po, input)
		if err != nil {
			return err
		}
		draft.Date = defaultTime(input.Date, s.now())
		receipt, err = tx.InsertReceipt(ctx, draft)
		if err != nil {
			return err
		}
		if err := s.stockIn(ctx, tx, &receipt); err != nil {
			return err
		}
		if err := s.advanceOrder(ctx, tx, po, received); err != nil {
			return err
		}
		return s.settle(ctx, tx, &receipt, s.post(ctx, tx, po, &receipt, input.ActorID))
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, input.ActorID, "procurement.receipt.create", receipt.Number, map[string]any{
		"order_id":       receipt.OrderID,
		"total":          receipt.Total.StringFixed(2),
		"posting_status": receipt.PostingStatus,
	})
	return receipt, nil
}

// planReceipt checks the requested quantities against what is pending and
// builds the receipt. received maps order line ids to their new received
// quantity.
func planReceipt(po PurchaseOrder, input ReceiptInput) (Receipt, map[int64]decimal.Decimal, error) {
	lines := make(map[int64]OrderLine, len(po.Lines))
	received := make(map[int64]decimal.Decimal, len(po.Lines))
	for _, l := range po.Lines {
		lines[l.ID] = l
		received[l.ID] = l.ReceivedQty
	}
	rc := Receipt{
		Number:        input.Number,
		OrderID:       po.ID,
		WarehouseID:   input.WarehouseID,
		PostingStatus: PostingUnposted,
	}
	for i, in := range input.Lines {
		ol, ok := lines[in.OrderLineID]
		if !ok {
			return Receipt{}, nil, fmt.Errorf("%w: line %d references unknown order line %d", ErrValidation, i+1, in.OrderLineID)
		}
		if !in.Quantity.IsPositive() {
			return Receipt{}, nil, fmt.Errorf("%w: line %d quantity must be positive", ErrValidation, i+1)
		}
		total := received[ol.ID].Add(in.Quantity)
		if total.GreaterThan(ol.Quantity) {
			return Receipt{}, nil, fmt.Errorf("%w: order line %d pending %s, received %s",
				ErrOverReceipt, ol.ID, ol.Quantity.Sub(received[ol.ID]).String(), in.Quantity.String())
		}
		received[ol.ID] = total
		rc.Lines = append(rc.Lines, ReceiptLine{
			OrderLineID: ol.ID,
			ProductID:   ol.ProductID,
			Quantity:    in.Quantity,
			UnitCost:    ol.UnitCost,
		})
		rc.Total = rc.Total.Add(in.Quantity.Mul(ol.UnitCost).Round(2))
	}
	return rc, received, nil
}

func (s *Service) stockIn(ctx context.Context, tx TxRepository, rc *Receipt) error {
	for i := range rc.Lines {
		line := &rc.Lines[i]
		receiptID := rc.ID
		cost := line.UnitCost
		m, err := s.inventory.RecordMovement(ctx, tx, inventory.Movement{
			Code:        fmt.Sprintf("REC-%s-%d", rc.Number, i+1),
			Kind:        inventory.MovementIn,
			ProductID:   line.ProductID,
			WarehouseID: rc.WarehouseID,
			Quantity:    line.Quantity,
			UnitCost:    &cost,
			RefModule:   posting.ModulePurchaseReceipt,
			RefID:       &receiptID,
			PostedAt:    rc.Date,
		})
		if err != nil {
			return err
		}
		if _, err := s.inventory.ApplyToStock(ctx, tx, m); err != nil {
			return err
		}
		if err := tx.SetReceiptLineMovement(ctx, line.ID, m.ID); err != nil {
			return err
		}
		movementID := m.ID
		line.MovementID = &movementID
	}
	return nil
}

func (s *Service) advanceOrder(ctx context.Context, tx TxRepository, po PurchaseOrder, received map[int64]decimal.Decimal) error {
	complete := true
	for _, l := range po.Lines {
		qty := received[l.ID]
		if !qty.Equal(l.ReceivedQty) {
			if err := tx.UpdateOrderLineReceived(ctx, l.ID, qty); err != nil {
				return err
			}
		}
		if qty.LessThan(l.Quantity) {
			complete = false
		}
	}
	status := OrderStatusPartial
	if complete {
		status = OrderStatusReceived
	}
	return tx.UpdateOrderStatus(ctx, po.ID, status)
}

// post writes the receipt entry and links it to the receipt's movements.
func (s *Service) post(ctx context.Context, tx TxRepository, po PurchaseOrder, rc *Receipt, actorID int64) error {
	if rc.JournalEntryID != nil {
		return nil
	}
	supplierID := po.SupplierID
	lines := make([]posting.ReceiptLine, 0, len(rc.Lines))
	for _, l := range rc.Lines {
		lines = append(lines, posting.ReceiptLine{Quantity: l.Quantity, UnitCost: l.UnitCost})
	}
	entry, err := s.poster.PostPurchaseReceipt(ctx, tx, posting.PurchaseReceiptEvent{
		Header: posting.Header{
			Reference:    posting.ReceiptReference(rc.Number),
			Date:         rc.Date,
			Description:  fmt.Sprintf("Goods receipt %s for order %s", rc.Number, po.Number),
			PartnerID:    &supplierID,
			CurrencyCode: po.CurrencyCode,
			ExchangeRate: po.ExchangeRate,
			ActorID:      actorID,
		},
		Lines: lines,
	})
	if err != nil {
		return err
	}
	entryID := entry.ID
	rc.JournalEntryID = &entryID
	for _, l := range rc.Lines {
		if l.MovementID == nil {
			continue
		}
		if err := tx.SetMovementJournal(ctx, *l.MovementID, entry.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) settle(ctx context.Context, tx TxRepository, rc *Receipt, postErr error) error {
	rc.PostingStatus, rc.PostingError = PostingPosted, ""
	if postErr != nil {
		if _, ok := accounting.IsConfigurationError(postErr); !ok {
			return postErr
		}
		rc.PostingStatus, rc.PostingError = PostingUnposted, postErr.Error()
	}
	return tx.UpdateReceiptPosting(ctx, rc.ID, rc.PostingStatus, rc.PostingError, rc.JournalEntryID)
}

// RetryPosting posts an unposted receipt.
func (s *Service) RetryPosting(ctx context.Context, receiptID, actorID int64) (Receipt, error) {
	var receipt Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		receipt, err = tx.GetReceiptForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		po, err := tx.GetOrderForUpdate(ctx, receipt.OrderID)
		if err != nil {
			return err
		}
		return s.settle(ctx, tx, &receipt, s.post(ctx, tx, po, &receipt, actorID))
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, actorID, "posting.retry", receipt.Number, map[string]any{"posting_status": receipt.PostingStatus})
	return receipt, nil
}

// GetOrder returns an order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders lists order headers.
func (s *Service) ListOrders(ctx context.Context, limit int) ([]PurchaseOrder, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListOrders(ctx, limit)
}

// GetReceipt returns a receipt with its lines.
func (s *Service) GetReceipt(ctx context.Context, id int64) (Receipt, error) {
	return s.repo.GetReceipt(ctx, id)
}

// ListReceipts lists receipt headers.
func (s *Service) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]Receipt, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListReceipts(ctx, filter)
}

// ListUnposted returns the ids of receipts waiting for a posting retry.
func (s *Service) ListUnposted(ctx context.Context) ([]int64, error) {
	receipts, err := s.repo.ListReceipts(ctx, ReceiptFilter{PostingStatus: PostingUnposted, Limit: 500})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(receipts))
	for _, rc := range receipts {
		ids = append(ids, rc.ID)
	}
	return ids, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "procurement",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultTime(value, fallback time.Time) time.Time {
	if value.IsZero() {
		return fallback
	}
	return value
}
