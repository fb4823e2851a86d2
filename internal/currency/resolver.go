package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/platform/cache"
)

const (
	principalCacheKey = "currency:principal"
	// principalLoadTimeout bounds the shared lookup, which outlives the
	// caller that started it.
	principalLoadTimeout = 10 * time.Second
)

// Resolver answers which currency is principal and which rate an entry in a
// given currency carries.
type Resolver struct {
	store  Store
	cache  *cache.JSONCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewResolver builds a Resolver. c may be nil to disable caching.
func NewResolver(store Store, c *cache.JSONCache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, cache: c, logger: logger}
}

// ResolvePrincipal returns the single principal currency. Zero or several
// flagged currencies yield a *accounting.ConfigurationError. Concurrent
// callers share one lookup; cancelling one caller does not cancel the lookup
// for the others.
func (r *Resolver) ResolvePrincipal(ctx context.Context) (Currency, error) {
	ch := r.group.DoChan(principalCacheKey, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), principalLoadTimeout)
		defer cancel()
		return r.fetchPrincipal(loadCtx)
	})
	select {
	case <-ctx.Done():
		return Currency{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Currency{}, res.Err
		}
		return res.Val.(Currency), nil
	}
}

func (r *Resolver) fetchPrincipal(ctx context.Context) (Currency, error) {
	var (
		cur     Currency
		loadErr error
	)
	err := r.cache.FetchJSON(ctx, principalCacheKey, &cur, func(ctx context.Context) (any, error) {
		c, err := r.loadPrincipal(ctx)
		loadErr = err
		return c, err
	})
	if loadErr != nil {
		return Currency{}, loadErr
	}
	if err != nil {
		r.logger.Warn("currency cache unavailable", slog.Any("error", err))
		return r.loadPrincipal(ctx)
	}
	return cur, nil
}

func (r *Resolver) loadPrincipal(ctx context.Context) (Currency, error) {
	principals, err := r.store.ListPrincipal(ctx)
	if err != nil {
		return Currency{}, err
	}
	switch len(principals) {
	case 1:
		return principals[0], nil
	case 0:
		return Currency{}, &accounting.ConfigurationError{Key: "currency:principal", Detail: "no principal currency"}
	default:
		codes := make([]string, len(principals))
		for i, c := range principals {
			codes[i] = c.Code
		}
		return Currency{}, &accounting.ConfigurationError{
			Key:    "currency:principal",
			Detail: "multiple principal currencies: " + strings.Join(codes, ","),
		}
	}
}

// Invalidate drops the cached principal currency.
func (r *Resolver) Invalidate(ctx context.Context) error {
	return r.cache.Delete(ctx, principalCacheKey)
}

// ResolveRate returns the rate for an entry in code dated on. The principal
// currency is always 1; otherwise a positive supplied rate wins over the
// latest stored one.
func (r *Resolver) ResolveRate(ctx context.Context, code string, supplied *decimal.Decimal, on time.Time) (decimal.Decimal, error) {
	res, err := r.Resolve(ctx, code, supplied, on)
	if err != nil {
		return decimal.Zero, err
	}
	return res.Rate, nil
}

// Resolve fills in the principal currency when code is empty and returns the
// rate the entry must carry.
func (r *Resolver) Resolve(ctx context.Context, code string, supplied *decimal.Decimal, on time.Time) (Resolution, error) {
	principal, err := r.ResolvePrincipal(ctx)
	if err != nil {
		return Resolution{}, err
	}
	if code == "" || strings.EqualFold(code, principal.Code) {
		return Resolution{CurrencyCode: principal.Code, Rate: decimal.NewFromInt(1)}, nil
	}
	code, err = NormalizeCode(code)
	if err != nil {
		return Resolution{}, err
	}
	if _, err := r.store.Get(ctx, code); err != nil {
		return Resolution{}, err
	}
	if supplied != nil && supplied.IsPositive() {
		return Resolution{CurrencyCode: code, Rate: *supplied}, nil
	}
	rate, err := r.store.LatestRate(ctx, code, on)
	if err != nil {
		if errors.Is(err, ErrRateUnavailable) {
			return Resolution{}, fmt.Errorf("%w: %s on %s", ErrRateUnavailable, code, on.Format("2006-01-02"))
		}
		return Resolution{}, err
	}
	return Resolution{CurrencyCode: code, Rate: rate}, nil
}
