package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates stock movement directions.
type MovementKind string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementKind = "IN"
	// MovementOut represents an outbound movement.
	MovementOut MovementKind = "OUT"
)

// Movement records a quantity of product entering or leaving a warehouse.
type Movement struct {
	ID             int64            `json:"id"`
	Code           string           `json:"code"`
	Kind           MovementKind     `json:"kind"`
	ProductID      int64            `json:"product_id"`
	WarehouseID    int64            `json:"warehouse_id"`
	Quantity       decimal.Decimal  `json:"quantity"`
	UnitCost       *decimal.Decimal `json:"unit_cost,omitempty"`
	RefModule      string           `json:"ref_module,omitempty"`
	RefID          *int64           `json:"ref_id,omitempty"`
	JournalEntryID *int64           `json:"journal_entry_id,omitempty"`
	PostedAt       time.Time        `json:"posted_at"`
}

// Stock is the on-hand aggregate of a product in a warehouse.
type Stock struct {
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Value is quantity times average cost.
func (s Stock) Value() decimal.Decimal {
	return s.Quantity.Mul(s.AvgCost)
}

// AdjustmentInput describes a manual stock correction. A positive quantity
// adds stock, a negative one removes it.
type AdjustmentInput struct {
	Code        string           `json:"code" validate:"max=60"`
	WarehouseID int64            `json:"warehouse_id" validate:"required"`
	ProductID   int64            `json:"product_id" validate:"required"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitCost    *decimal.Decimal `json:"unit_cost,omitempty"`
	Note        string           `json:"note" validate:"max=200"`
	ActorID     int64            `json:"-"`
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID   int64
	WarehouseID int64
	RefModule   string
	RefID       int64
	Limit       int
}

var (
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrInvalidMovement indicates a movement without kind, product or warehouse.
	ErrInvalidMovement = errors.New("inventory: movement requires kind, product and warehouse")
	// ErrStockNotFound indicates no stock row exists yet.
	ErrStockNotFound = errors.New("inventory: stock not found")
	// ErrMovementNotFound indicates an unknown movement id.
	ErrMovementNotFound = errors.New("inventory: movement not found")
)
