package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the commercial state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "DRAFT"
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
	InvoiceStatusVoid   InvoiceStatus = "VOID"
)

// PostingStatus tells whether the ledger side of a document is complete.
type PostingStatus string

const (
	PostingPosted   PostingStatus = "POSTED"
	PostingUnposted PostingStatus = "UNPOSTED"
)

// Invoice represents an issued sales invoice.
type Invoice struct {
	ID             int64            `json:"id"`
	Number         string           `json:"number"`
	PartnerID      int64            `json:"partner_id"`
	Date           time.Time        `json:"date"`
	CurrencyCode   string           `json:"currency,omitempty"`
	ExchangeRate   *decimal.Decimal `json:"exchange_rate,omitempty"`
	Status         InvoiceStatus    `json:"status"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	TaxAmount      decimal.Decimal  `json:"tax_amount"`
	Total          decimal.Decimal  `json:"total"`
	AmountPaid     decimal.Decimal  `json:"amount_paid"`
	PostingStatus  PostingStatus    `json:"posting_status"`
	PostingError   string           `json:"posting_error,omitempty"`
	JournalEntryID *int64           `json:"journal_entry_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Lines          []InvoiceLine    `json:"lines"`
}

// Balance returns the amount still owed.
func (i Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.AmountPaid)
}

// InvoiceLine represents a line item of an invoice. MovementID links the
// stock issue of a physical product.
type InvoiceLine struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	LineNo     int             `json:"line_no"`
	ProductID  int64           `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Taxable    bool            `json:"taxable"`
	LineTotal  decimal.Decimal `json:"line_total"`
	MovementID *int64          `json:"movement_id,omitempty"`
}

// Payment is a customer payment applied to an invoice.
type Payment struct {
	ID             int64           `json:"id"`
	InvoiceID      int64           `json:"invoice_id"`
	Seq            int             `json:"seq"`
	Amount         decimal.Decimal `json:"amount"`
	PaidAt         time.Time       `json:"paid_at"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
}

// InvoiceInput is the request to issue an invoice. An empty currency means
// the principal currency.
type InvoiceInput struct {
	Number       string             `json:"number" validate:"required,max=30"`
	PartnerID    int64              `json:"partner_id" validate:"required,gt=0"`
	Date         time.Time          `json:"date" validate:"required"`
	CurrencyCode string             `json:"currency,omitempty" validate:"omitempty,len=3"`
	ExchangeRate *decimal.Decimal   `json:"exchange_rate,omitempty"`
	Lines        []InvoiceLineInput `json:"lines" validate:"required,min=1,dive"`
	ActorID      int64              `json:"-"`
}

// InvoiceLineInput is one requested line. A nil UnitPrice uses the product's
// list price.
type InvoiceLineInput struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// PaymentInput is the request to apply a payment.
type PaymentInput struct {
	Amount  decimal.Decimal `json:"amount"`
	Date    time.Time       `json:"date" validate:"required"`
	ActorID int64           `json:"-"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	PartnerID     int64
	Status        InvoiceStatus
	PostingStatus PostingStatus
	Limit         int
}

var (
	ErrInvoiceNotFound    = errors.New("sales: invoice not found")
	ErrDuplicateInvoice   = errors.New("sales: invoice number already exists")
	ErrInvalidInvoice     = errors.New("sales: invalid invoice")
	ErrNotCustomer        = errors.New("sales: partner is not a customer")
	ErrInvoiceVoid        = errors.New("sales: invoice is void")
	ErrInvoicePaid        = errors.New("sales: invoice is already paid")
	ErrInvoiceHasPayments = errors.New("sales: invoice has payments")
	ErrOverpayment        = errors.New("sales: payment exceeds balance")
	ErrInvalidPayment     = errors.New("sales: invalid payment")
	ErrInvoiceUnposted    = errors.New("sales: invoice sale entry is not posted")

	// ErrWarehouseNotConfigured is a deployment fault, not a problem with the
	// invoice: physical lines need SALES_WAREHOUSE_ID.
	ErrWarehouseNotConfigured = errors.New("sales: warehouse is not configured")
)
