package masterdata

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ProductKind separates stocked goods from services.
type ProductKind string

const (
	ProductPhysical ProductKind = "PHYSICAL"
	ProductService  ProductKind = "SERVICE"
)

// PartnerKind tells whether a partner buys, sells or both.
type PartnerKind string

const (
	PartnerCustomer PartnerKind = "CUSTOMER"
	PartnerSupplier PartnerKind = "SUPPLIER"
	PartnerBoth     PartnerKind = "BOTH"
)

// Product represents a sellable item. UnitCost is nil until the product is
// costed; physical products without a cost cannot post cost of goods sold.
type Product struct {
	ID       int64            `json:"id"`
	SKU      string           `json:"sku"`
	Name     string           `json:"name"`
	Kind     ProductKind      `json:"kind"`
	Price    decimal.Decimal  `json:"price"`
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"`
	Taxable  bool             `json:"taxable"`
	UOM      string           `json:"uom"`
}

// IsPhysical reports whether the product moves stock.
func (p Product) IsPhysical() bool {
	return p.Kind == ProductPhysical
}

// Partner represents a customer or supplier.
type Partner struct {
	ID    int64       `json:"id"`
	TaxID string      `json:"tax_id"`
	Name  string      `json:"name"`
	Kind  PartnerKind `json:"kind"`
}

// IsCustomer reports whether invoices can be issued to the partner.
func (p Partner) IsCustomer() bool {
	return p.Kind == PartnerCustomer || p.Kind == PartnerBoth
}

// IsSupplier reports whether purchase orders can be raised to the partner.
func (p Partner) IsSupplier() bool {
	return p.Kind == PartnerSupplier || p.Kind == PartnerBoth
}

// Warehouse represents a warehouse entity
type Warehouse struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ProductInput is the request shape for creating a product.
type ProductInput struct {
	SKU      string           `json:"sku" validate:"required,max=50"`
	Name     string           `json:"name" validate:"required,max=200"`
	Kind     ProductKind      `json:"kind" validate:"required,oneof=PHYSICAL SERVICE"`
	Price    decimal.Decimal  `json:"price"`
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"`
	Taxable  bool             `json:"taxable"`
	UOM      string           `json:"uom" validate:"max=10"`
}

// PartnerInput is the request shape for creating a partner.
type PartnerInput struct {
	TaxID string      `json:"tax_id" validate:"required,max=20"`
	Name  string      `json:"name" validate:"required,max=200"`
	Kind  PartnerKind `json:"kind" validate:"required,oneof=CUSTOMER SUPPLIER BOTH"`
}

// WarehouseInput is the request shape for creating a warehouse.
type WarehouseInput struct {
	Code string `json:"code" validate:"required,max=20"`
	Name string `json:"name" validate:"required,max=100"`
}

var (
	ErrProductNotFound   = errors.New("masterdata: product not found")
	ErrPartnerNotFound   = errors.New("masterdata: partner not found")
	ErrWarehouseNotFound = errors.New("masterdata: warehouse not found")
	ErrDuplicate         = errors.New("masterdata: duplicate code")
	ErrInvalidInput      = errors.New("masterdata: invalid input")
)

// Repository defines the data access interface
type Repository interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProductCost(ctx context.Context, id int64, cost *decimal.Decimal) error
	GetPartner(ctx context.Context, id int64) (Partner, error)
	ListPartners(ctx context.Context) ([]Partner, error)
	CreatePartner(ctx context.Context, p Partner) (Partner, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error)
}

// Service defines the business logic interface
type Service interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (Product, error)
	SetProductCost(ctx context.Context, id int64, cost *decimal.Decimal) error
	GetPartner(ctx context.Context, id int64) (Partner, error)
	ListPartners(ctx context.Context) ([]Partner, error)
	CreatePartner(ctx context.Context, input PartnerInput) (Partner, error)
	GetWarehouse(ctx context.Context, id int64) (Warehouse, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	CreateWarehouse(ctx context.Context, input WarehouseInput) (Warehouse, error)
}
