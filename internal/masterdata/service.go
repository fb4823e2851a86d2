package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// service implements Service interface
type service struct {
	repo     Repository
	validate *validator.Validate
}

// NewService creates a new master data service
func NewService(repo Repository) Service {
	return &service{repo: repo, validate: validator.New()}
}

func (s *service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Product operations
func (s *service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, errors.New("invalid product ID")
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if err := s.check(input); err != nil {
		return Product{}, err
	}
	if input.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price must be >= 0", ErrInvalidInput)
	}
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return Product{}, fmt.Errorf("%w: unit cost must be >= 0", ErrInvalidInput)
	}
	uom := strings.ToUpper(strings.TrimSpace(input.UOM))
	if uom == "" {
		uom = "UND"
	}
	return s.repo.CreateProduct(ctx, Product{
		SKU:      strings.TrimSpace(input.SKU),
		Name:     strings.TrimSpace(input.Name),
		Kind:     input.Kind,
		Price:    input.Price,
		UnitCost: input.UnitCost,
		Taxable:  input.Taxable,
		UOM:      uom,
	})
}

func (s *service) SetProductCost(ctx context.Context, id int64, cost *decimal.Decimal) error {
	if cost != nil && cost.IsNegative() {
		return fmt.Errorf("%w: unit cost must be >= 0", ErrInvalidInput)
	}
	return s.repo.UpdateProductCost(ctx, id, cost)
}

// Partner operations
func (s *service) GetPartner(ctx context.Context, id int64) (Partner, error) {
	if id <= 0 {
		return Partner{}, errors.New("invalid partner ID")
	}
	return s.repo.GetPartner(ctx, id)
}

func (s *service) ListPartners(ctx context.Context) ([]Partner, error) {
	return s.repo.ListPartners(ctx)
}

func (s *service) CreatePartner(ctx context.Context, input PartnerInput) (Partner, error) {
	if err := s.check(input); err != nil {
		return Partner{}, err
	}
	return s.repo.CreatePartner(ctx, Partner{
		TaxID: strings.TrimSpace(input.TaxID),
		Name:  strings.TrimSpace(input.Name),
		Kind:  input.Kind,
	})
}

// Warehouse operations
func (s *service) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, errors.New("invalid warehouse ID")
	}
	return s.repo.GetWarehouse(ctx, id)
}

func (s *service) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return s.repo.ListWarehouses(ctx)
}

func (s *service) CreateWarehouse(ctx context.Context, input WarehouseInput) (Warehouse, error) {
	if err := s.check(input); err != nil {
		return Warehouse{}, err
	}
	return s.repo.CreateWarehouse(ctx, Warehouse{
		Code: strings.ToUpper(strings.TrimSpace(input.Code)),
		Name: strings.TrimSpace(input.Name),
	})
}
