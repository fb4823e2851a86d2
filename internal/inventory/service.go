package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/shared"
)

// avgCostPlaces is the precision of the stored moving average.
const avgCostPlaces = 4

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, StockTx) error) error
	GetStock(ctx context.Context, productID, warehouseID int64) (Stock, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service coordinates inventory operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	allowNeg bool
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		allowNeg: cfg.AllowNegativeStock,
		logger:   logger,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RecordMovement inserts m through tx without touching stock. Callers follow
// with ApplyToStock in the same transaction.
func (s *Service) RecordMovement(ctx context.Context, tx StockTx, m Movement) (Movement, error) {
	if m.Kind != MovementIn && m.Kind != MovementOut {
		return Movement{}, ErrInvalidMovement
	}
	if m.ProductID == 0 || m.WarehouseID == 0 {
		return Movement{}, ErrInvalidMovement
	}
	if !m.Quantity.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	if m.UnitCost != nil && m.UnitCost.IsNegative() {
		return Movement{}, ErrInvalidUnitCost
	}
	if m.Code == "" {
		m.Code = fmt.Sprintf("%s-%s", m.Kind, uuid.NewString())
	}
	if m.PostedAt.IsZero() {
		m.PostedAt = s.now()
	}
	return tx.InsertMovement(ctx, m)
}

// ApplyToStock updates the product/warehouse aggregate for a recorded
// movement. The stock row is locked for the rest of the transaction so
// concurrent movements on the same pair serialise. Inbound movements update
// the moving average cost; a nil inbound cost keeps the current average.
func (s *Service) ApplyToStock(ctx context.Context, tx StockTx, m Movement) (Stock, error) {
	stock, err := tx.GetStockForUpdate(ctx, m.ProductID, m.WarehouseID)
	if err != nil {
		return Stock{}, err
	}
	stock.ProductID, stock.WarehouseID = m.ProductID, m.WarehouseID
	switch m.Kind {
	case MovementIn:
		unitCost := stock.AvgCost
		if m.UnitCost != nil {
			unitCost = *m.UnitCost
		}
		newQty := stock.Quantity.Add(m.Quantity)
		if newQty.IsPositive() {
			total := stock.Quantity.Mul(stock.AvgCost).Add(m.Quantity.Mul(unitCost))
			stock.AvgCost = total.DivRound(newQty, avgCostPlaces)
		}
		stock.Quantity = newQty
	case MovementOut:
		newQty := stock.Quantity.Sub(m.Quantity)
		if newQty.IsNegative() && !s.allowNeg {
			return Stock{}, fmt.Errorf("%w: product %d warehouse %d has %s, needs %s",
				ErrNegativeStock, m.ProductID, m.WarehouseID, stock.Quantity.String(), m.Quantity.String())
		}
		if !newQty.IsPositive() {
			stock.AvgCost = decimal.Zero
		}
		stock.Quantity = newQty
	default:
		return Stock{}, ErrInvalidMovement
	}
	stock.UpdatedAt = s.now()
	if err := tx.UpsertStock(ctx, stock); err != nil {
		return Stock{}, err
	}
	return stock, nil
}

// Move records m and applies it to stock through tx.
func (s *Service) Move(ctx context.Context, tx StockTx, m Movement) (Movement, Stock, error) {
	recorded, err := s.RecordMovement(ctx, tx, m)
	if err != nil {
		return Movement{}, Stock{}, err
	}
	stock, err := s.ApplyToStock(ctx, tx, recorded)
	if err != nil {
		return Movement{}, Stock{}, err
	}
	return recorded, stock, nil
}

// Adjust posts a manual correction in its own transaction.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, Stock, error) {
	if err := s.validate.Struct(input); err != nil {
		return Movement{}, Stock{}, fmt.Errorf("%w: %v", ErrInvalidMovement, err)
	}
	if input.Quantity.IsZero() {
		return Movement{}, Stock{}, ErrInvalidQuantity
	}
	m := Movement{
		Code:        input.Code,
		Kind:        MovementIn,
		ProductID:   input.ProductID,
		WarehouseID: input.WarehouseID,
		Quantity:    input.Quantity.Abs(),
		UnitCost:    input.UnitCost,
		RefModule:   "INVENTORY.ADJUSTMENT",
	}
	if input.Quantity.IsNegative() {
		m.Kind = MovementOut
	}
	var (
		movement Movement
		stock    Stock
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx StockTx) error {
		var err error
		movement, stock, err = s.Move(ctx, tx, m)
		return err
	})
	if err != nil {
		return Movement{}, Stock{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory.adjust",
			Entity:   "inventory_movement",
			EntityID: movement.Code,
			Meta: map[string]any{
				"warehouse_id": input.WarehouseID,
				"product_id":   input.ProductID,
				"quantity":     input.Quantity.String(),
				"note":         input.Note,
			},
			At: s.now(),
		}); err != nil {
			s.logger.Warn("audit record", slog.String("action", "inventory.adjust"), slog.Any("error", err))
		}
	}
	return movement, stock, nil
}

// GetStock returns the on-hand aggregate of a product in a warehouse. A pair
// that never moved reports zero.
func (s *Service) GetStock(ctx context.Context, productID, warehouseID int64) (Stock, error) {
	stock, err := s.repo.GetStock(ctx, productID, warehouseID)
	if errors.Is(err, ErrStockNotFound) {
		return Stock{ProductID: productID, WarehouseID: warehouseID}, nil
	}
	return stock, err
}

// ListMovements lists recorded movements, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	return s.repo.ListMovements(ctx, filter)
}
