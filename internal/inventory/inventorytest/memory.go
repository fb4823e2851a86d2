// Package inventorytest provides an in-memory stock store for tests.
package inventorytest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/inventory"
)

// Store implements inventory.StockTx and inventory.RepositoryPort. WithTx
// rolls back the store when the callback fails.
type Store struct {
	mu        sync.Mutex
	movements []inventory.Movement
	stock     map[string]inventory.Stock
	// Locked lists the product/warehouse pairs passed to GetStockForUpdate.
	Locked []string
}

// New returns an empty store.
func New() *Store {
	return &Store{stock: make(map[string]inventory.Stock)}
}

func key(productID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d", productID, warehouseID)
}

// Seed sets the on-hand stock of a pair.
func (s *Store) Seed(productID, warehouseID int64, quantity, avgCost string) *Store {
	s.stock[key(productID, warehouseID)] = inventory.Stock{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    decimal.RequireFromString(quantity),
		AvgCost:     decimal.RequireFromString(avgCost),
	}
	return s
}

// Movements returns a copy of every recorded movement.
func (s *Store) Movements() []inventory.Movement {
	return append([]inventory.Movement(nil), s.movements...)
}

// Stock returns the current aggregate of a pair.
func (s *Store) Stock(productID, warehouseID int64) inventory.Stock {
	return s.stock[key(productID, warehouseID)]
}

type state struct {
	movements []inventory.Movement
	stock     map[string]inventory.Stock
}

// Snapshot captures the store for a later Restore.
func (s *Store) Snapshot() any {
	stock := make(map[string]inventory.Stock, len(s.stock))
	for k, v := range s.stock {
		stock[k] = v
	}
	return state{movements: append([]inventory.Movement(nil), s.movements...), stock: stock}
}

// Restore rolls back to a value returned by Snapshot.
func (s *Store) Restore(v any) {
	st := v.(state)
	s.movements = st.movements
	s.stock = st.stock
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.StockTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.Snapshot()
	if err := fn(ctx, s); err != nil {
		s.Restore(snap)
		return err
	}
	return nil
}

func (s *Store) GetStock(ctx context.Context, productID, warehouseID int64) (inventory.Stock, error) {
	st, ok := s.stock[key(productID, warehouseID)]
	if !ok {
		return inventory.Stock{}, inventory.ErrStockNotFound
	}
	return st, nil
}

func (s *Store) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, m := range s.movements {
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && m.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.RefModule != "" && m.RefModule != filter.RefModule {
			continue
		}
		if filter.RefID != 0 && (m.RefID == nil || *m.RefID != filter.RefID) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) InsertMovement(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	for _, existing := range s.movements {
		if existing.Code == m.Code {
			return inventory.Movement{}, fmt.Errorf("inventorytest: duplicate movement code %s", m.Code)
		}
	}
	m.ID = int64(len(s.movements) + 1)
	s.movements = append(s.movements, m)
	return m, nil
}

func (s *Store) GetStockForUpdate(ctx context.Context, productID, warehouseID int64) (inventory.Stock, error) {
	k := key(productID, warehouseID)
	s.Locked = append(s.Locked, k)
	st, ok := s.stock[k]
	if !ok {
		st = inventory.Stock{ProductID: productID, WarehouseID: warehouseID}
	}
	return st, nil
}

func (s *Store) UpsertStock(ctx context.Context, st inventory.Stock) error {
	s.stock[key(st.ProductID, st.WarehouseID)] = st
	return nil
}

func (s *Store) SetMovementJournal(ctx context.Context, movementID, entryID int64) error {
	for i := range s.movements {
		if s.movements[i].ID == movementID {
			id := entryID
			s.movements[i].JournalEntryID = &id
			return nil
		}
	}
	return fmt.Errorf("inventorytest: movement %d not found", movementID)
}

func (s *Store) GetMovement(ctx context.Context, id int64) (inventory.Movement, error) {
	for _, m := range s.movements {
		if m.ID == id {
			return m, nil
		}
	}
	return inventory.Movement{}, inventory.ErrMovementNotFound
}
