// Package currencytest provides an in-memory currency store for tests.
package currencytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/currency"
)

// Store implements currency.Store in memory. Unlike the database it does not
// stop several currencies from being flagged principal through Add.
type Store struct {
	mu         sync.Mutex
	currencies map[string]currency.Currency
	rates      []currency.ExchangeRate
	// PrincipalLookups counts ListPrincipal calls.
	PrincipalLookups int
}

// New returns an empty store.
func New() *Store {
	return &Store{currencies: make(map[string]currency.Currency)}
}

// Add registers c as is.
func (s *Store) Add(c currency.Currency) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currencies[c.Code] = c
	return s
}

// AddRate registers a rate effective on day.
func (s *Store) AddRate(code string, rate string, day time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = append(s.rates, currency.ExchangeRate{
		ID:            int64(len(s.rates) + 1),
		CurrencyCode:  code,
		Rate:          decimal.RequireFromString(rate),
		EffectiveDate: day,
	})
	return s
}

func (s *Store) List(ctx context.Context) ([]currency.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(currency.Currency) bool { return true }), nil
}

func (s *Store) Get(ctx context.Context, code string) (currency.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.currencies[code]
	if !ok {
		return currency.Currency{}, currency.ErrCurrencyNotFound
	}
	return c, nil
}

func (s *Store) ListPrincipal(ctx context.Context) ([]currency.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PrincipalLookups++
	return s.sorted(func(c currency.Currency) bool { return c.IsPrincipal }), nil
}

func (s *Store) Insert(ctx context.Context, c currency.Currency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.currencies[c.Code]; ok {
		return currency.ErrCurrencyExists
	}
	if c.IsPrincipal {
		s.clearPrincipal()
	}
	s.currencies[c.Code] = c
	return nil
}

func (s *Store) SetPrincipal(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.currencies[code]
	if !ok {
		return currency.ErrCurrencyNotFound
	}
	s.clearPrincipal()
	c.IsPrincipal = true
	s.currencies[code] = c
	return nil
}

func (s *Store) LatestRate(ctx context.Context, code string, on time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  currency.ExchangeRate
		found bool
	)
	for _, r := range s.rates {
		if r.CurrencyCode != code || r.EffectiveDate.After(on) {
			continue
		}
		if !found || r.EffectiveDate.After(best.EffectiveDate) {
			best, found = r, true
		}
	}
	if !found {
		return decimal.Zero, currency.ErrRateUnavailable
	}
	return best.Rate, nil
}

func (s *Store) InsertRate(ctx context.Context, rate currency.ExchangeRate) (currency.ExchangeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.currencies[rate.CurrencyCode]; !ok {
		return currency.ExchangeRate{}, currency.ErrCurrencyNotFound
	}
	rate.ID = int64(len(s.rates) + 1)
	s.rates = append(s.rates, rate)
	return rate, nil
}

func (s *Store) clearPrincipal() {
	for k, c := range s.currencies {
		c.IsPrincipal = false
		s.currencies[k] = c
	}
}

func (s *Store) sorted(keep func(currency.Currency) bool) []currency.Currency {
	var out []currency.Currency
	for _, c := range s.currencies {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Resolver returns a resolver over a store holding COP as principal and USD.
func Resolver() (*currency.Resolver, *Store) {
	store := New().
		Add(currency.Currency{Code: "COP", Name: "Peso colombiano", Symbol: "$", IsPrincipal: true}).
		Add(currency.Currency{Code: "USD", Name: "US Dollar", Symbol: "US$"})
	return currency.NewResolver(store, nil, nil), store
}
