package currency

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// ErrCurrencyNotFound indicates the ISO code is not registered.
	ErrCurrencyNotFound = errors.New("currency: not found")
	// ErrCurrencyExists indicates the ISO code is already registered.
	ErrCurrencyExists = errors.New("currency: already exists")
	// ErrInvalidCurrency indicates a code that is not ISO 4217.
	ErrInvalidCurrency = errors.New("currency: invalid iso code")
	// ErrRateUnavailable indicates no usable exchange rate exists for a
	// non-principal currency.
	ErrRateUnavailable = errors.New("currency: exchange rate unavailable")
	// ErrInvalidRate indicates a zero or negative rate.
	ErrInvalidRate = errors.New("currency: rate must be positive")
)

// Currency is a registered ISO currency.
type Currency struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	IsPrincipal bool   `json:"is_principal"`
}

// ExchangeRate converts one unit of a currency into the principal currency.
type ExchangeRate struct {
	ID            int64           `json:"id"`
	CurrencyCode  string          `json:"currency_code"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// CreateInput registers a currency.
type CreateInput struct {
	Code        string `json:"code" validate:"required,len=3"`
	Name        string `json:"name" validate:"required,max=50"`
	Symbol      string `json:"symbol" validate:"max=5"`
	IsPrincipal bool   `json:"is_principal"`
}

// RateInput records a dated exchange rate.
type RateInput struct {
	CurrencyCode  string          `json:"currency_code"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveDate time.Time       `json:"effective_date" validate:"required"`
}

// Resolution is the currency and rate a journal entry is stamped with.
type Resolution struct {
	CurrencyCode string
	Rate         decimal.Decimal
}

// NormalizeCode upper-cases code and checks it against ISO 4217.
func NormalizeCode(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", ErrInvalidCurrency
	}
	return unit.String(), nil
}
