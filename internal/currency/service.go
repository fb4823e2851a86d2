package currency

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// Service manages the currency catalogue and exchange rates.
type Service struct {
	store    Store
	resolver *Resolver
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService constructs the currency service.
func NewService(store Store, resolver *Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, resolver: resolver, logger: logger, validate: validator.New()}
}

// List returns all registered currencies.
func (s *Service) List(ctx context.Context) ([]Currency, error) {
	return s.store.List(ctx)
}

// Principal returns the principal currency.
func (s *Service) Principal(ctx context.Context) (Currency, error) {
	return s.resolver.ResolvePrincipal(ctx)
}

// Create registers a currency after checking its ISO code.
func (s *Service) Create(ctx context.Context, input CreateInput) (Currency, error) {
	if err := s.validate.Struct(input); err != nil {
		return Currency{}, fmt.Errorf("%w: %v", ErrInvalidCurrency, err)
	}
	code, err := NormalizeCode(input.Code)
	if err != nil {
		return Currency{}, err
	}
	c := Currency{Code: code, Name: input.Name, Symbol: input.Symbol, IsPrincipal: input.IsPrincipal}
	if err := s.store.Insert(ctx, c); err != nil {
		return Currency{}, err
	}
	if c.IsPrincipal {
		s.invalidate(ctx)
	}
	return c, nil
}

// SetPrincipal moves the principal flag to code.
func (s *Service) SetPrincipal(ctx context.Context, code string) error {
	code, err := NormalizeCode(code)
	if err != nil {
		return err
	}
	if err := s.store.SetPrincipal(ctx, code); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.Info("principal currency changed", slog.String("code", code))
	return nil
}

// RecordRate stores the rate of a non-principal currency for a day.
func (s *Service) RecordRate(ctx context.Context, input RateInput) (ExchangeRate, error) {
	if err := s.validate.Struct(input); err != nil {
		return ExchangeRate{}, fmt.Errorf("%w: %v", ErrInvalidRate, err)
	}
	if !input.Rate.IsPositive() {
		return ExchangeRate{}, ErrInvalidRate
	}
	code, err := NormalizeCode(input.CurrencyCode)
	if err != nil {
		return ExchangeRate{}, err
	}
	return s.store.InsertRate(ctx, ExchangeRate{
		CurrencyCode:  code,
		Rate:          input.Rate,
		EffectiveDate: input.EffectiveDate,
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.resolver.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate principal currency cache", slog.Any("error", err))
	}
}
