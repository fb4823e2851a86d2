package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Purchase order lifecycle statuses.
type OrderStatus string

const (
	OrderStatusDraft    OrderStatus = "DRAFT"
	OrderStatusPartial  OrderStatus = "PARTIAL"
	OrderStatusReceived OrderStatus = "RECEIVED"
)

// PostingStatus tells whether a receipt reached the ledger.
type PostingStatus string

const (
	PostingPosted   PostingStatus = "POSTED"
	PostingUnposted PostingStatus = "UNPOSTED"
)

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID           int64            `json:"id"`
	Number       string           `json:"number"`
	SupplierID   int64            `json:"supplier_id"`
	Date         time.Time        `json:"date"`
	CurrencyCode string           `json:"currency,omitempty"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
	Status       OrderStatus      `json:"status"`
	Subtotal     decimal.Decimal  `json:"subtotal"`
	TaxAmount    decimal.Decimal  `json:"tax_amount"`
	Total        decimal.Decimal  `json:"total"`
	CreatedAt    time.Time        `json:"created_at"`
	Lines        []OrderLine      `json:"lines"`
}

// OrderLine represents PO lines.
type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
}

// Pending is the quantity still to be received.
func (l OrderLine) Pending() decimal.Decimal {
	return l.Quantity.Sub(l.ReceivedQty)
}

// Receipt is a goods receipt against a purchase order.
type Receipt struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	OrderID        int64           `json:"order_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	Date           time.Time       `json:"date"`
	Total          decimal.Decimal `json:"total"`
	PostingStatus  PostingStatus   `json:"posting_status"`
	PostingError   string          `json:"posting_error,omitempty"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Lines          []ReceiptLine   `json:"lines"`
}

// ReceiptLine describes received goods.
type ReceiptLine struct {
	ID          int64           `json:"id"`
	ReceiptID   int64           `json:"receipt_id"`
	OrderLineID int64           `json:"order_line_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	MovementID  *int64          `json:"movement_id,omitempty"`
}

// OrderInput describes purchase order creation. An empty currency means the
// principal currency.
type OrderInput struct {
	Number       string           `json:"number" validate:"max=30"`
	SupplierID   int64            `json:"supplier_id" validate:"required,gt=0"`
	Date         time.Time        `json:"date"`
	CurrencyCode string           `json:"currency,omitempty" validate:"omitempty,len=3"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
	Lines        []OrderLineInput `json:"lines" validate:"required,min=1,dive"`
	ActorID      int64            `json:"-"`
}

// OrderLineInput describes an ordered product.
type OrderLineInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// ReceiptInput describes a goods receipt.
type ReceiptInput struct {
	OrderID     int64              `json:"order_id" validate:"required,gt=0"`
	Number      string             `json:"number" validate:"max=30"`
	WarehouseID int64              `json:"warehouse_id" validate:"required,gt=0"`
	Date        time.Time          `json:"date"`
	Lines       []ReceiptLineInput `json:"lines" validate:"required,min=1,dive"`
	ActorID     int64              `json:"-"`
}

// ReceiptLineInput is the quantity received for one order line.
type ReceiptLineInput struct {
	OrderLineID int64           `json:"order_line_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// ReceiptFilter narrows receipt listings.
type ReceiptFilter struct {
	OrderID       int64
	PostingStatus PostingStatus
	Limit         int
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrDuplicateNumber indicates the document number is taken.
	ErrDuplicateNumber = errors.New("procurement: number already exists")
	// ErrNotSupplier indicates the partner cannot receive purchase orders.
	ErrNotSupplier = errors.New("procurement: partner is not a supplier")
	// ErrOverReceipt indicates a receipt above the pending quantity.
	ErrOverReceipt = errors.New("procurement: received quantity exceeds ordered quantity")
	// ErrOrderClosed indicates the order was fully received.
	ErrOrderClosed = errors.New("procurement: order already received")
)
