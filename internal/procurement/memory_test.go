package procurement_test

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/accounting/ledgertest"
	"github.com/hermes-erp/hermes/internal/inventory/inventorytest"
	"github.com/hermes-erp/hermes/internal/masterdata"
	"github.com/hermes-erp/hermes/internal/procurement"
)

type memoryRepo struct {
	*ledgertest.Ledger
	*inventorytest.Store

	products map[int64]masterdata.Product
	partners map[int64]masterdata.Partner
	orders   map[int64]procurement.PurchaseOrder
	receipts map[int64]procurement.Receipt
	nextID   int64
}

func newMemoryRepo(ledger *ledgertest.Ledger, stock *inventorytest.Store) *memoryRepo {
	return &memoryRepo{
		Ledger:   ledger,
		Store:    stock,
		products: map[int64]masterdata.Product{},
		partners: map[int64]masterdata.Partner{},
		orders:   map[int64]procurement.PurchaseOrder{},
		receipts: map[int64]procurement.Receipt{},
	}
}

func cloneOrder(po procurement.PurchaseOrder) procurement.PurchaseOrder {
	po.Lines = append([]procurement.OrderLine(nil), po.Lines...)
	return po
}

func cloneReceipt(rc procurement.Receipt) procurement.Receipt {
	rc.Lines = append([]procurement.ReceiptLine(nil), rc.Lines...)
	return rc
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	ledger, stock, nextID := m.Ledger.Snapshot(), m.Store.Snapshot(), m.nextID
	orders := make(map[int64]procurement.PurchaseOrder, len(m.orders))
	for id, po := range m.orders {
		orders[id] = cloneOrder(po)
	}
	receipts := make(map[int64]procurement.Receipt, len(m.receipts))
	for id, rc := range m.receipts {
		receipts[id] = cloneReceipt(rc)
	}
	if err := fn(ctx, m); err != nil {
		m.Ledger.Restore(ledger)
		m.Store.Restore(stock)
		m.orders, m.receipts, m.nextID = orders, receipts, nextID
		return err
	}
	return nil
}

func (m *memoryRepo) GetOrder(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	po, ok := m.orders[id]
	if !ok {
		return procurement.PurchaseOrder{}, procurement.ErrNotFound
	}
	return cloneOrder(po), nil
}

func (m *memoryRepo) ListOrders(ctx context.Context, limit int) ([]procurement.PurchaseOrder, error) {
	var out []procurement.PurchaseOrder
	for _, po := range m.orders {
		po.Lines = nil
		out = append(out, po)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) GetReceipt(ctx context.Context, id int64) (procurement.Receipt, error) {
	rc, ok := m.receipts[id]
	if !ok {
		return procurement.Receipt{}, procurement.ErrNotFound
	}
	return cloneReceipt(rc), nil
}

func (m *memoryRepo) ListReceipts(ctx context.Context, filter procurement.ReceiptFilter) ([]procurement.Receipt, error) {
	var out []procurement.Receipt
	for _, rc := range m.receipts {
		if filter.OrderID != 0 && rc.OrderID != filter.OrderID {
			continue
		}
		if filter.PostingStatus != "" && rc.PostingStatus != filter.PostingStatus {
			continue
		}
		out = append(out, cloneReceipt(rc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) GetProduct(ctx context.Context, id int64) (masterdata.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return masterdata.Product{}, masterdata.ErrProductNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetPartner(ctx context.Context, id int64) (masterdata.Partner, error) {
	p, ok := m.partners[id]
	if !ok {
		return masterdata.Partner{}, masterdata.ErrPartnerNotFound
	}
	return p, nil
}

func (m *memoryRepo) InsertOrder(ctx context.Context, po procurement.PurchaseOrder) (procurement.PurchaseOrder, error) {
	for _, existing := range m.orders {
		if existing.Number == po.Number {
			return procurement.PurchaseOrder{}, procurement.ErrDuplicateNumber
		}
	}
	po.ID = m.id()
	po = cloneOrder(po)
	for i := range po.Lines {
		po.Lines[i].ID = m.id()
		po.Lines[i].OrderID = po.ID
	}
	m.orders[po.ID] = cloneOrder(po)
	return po, nil
}

func (m *memoryRepo) GetOrderForUpdate(ctx context.Context, id int64) (procurement.PurchaseOrder, error) {
	return m.GetOrder(ctx, id)
}

func (m *memoryRepo) UpdateOrderLineReceived(ctx context.Context, lineID int64, received decimal.Decimal) error {
	for id, po := range m.orders {
		for i := range po.Lines {
			if po.Lines[i].ID == lineID {
				po.Lines[i].ReceivedQty = received
				m.orders[id] = po
				return nil
			}
		}
	}
	return procurement.ErrNotFound
}

func (m *memoryRepo) UpdateOrderStatus(ctx context.Context, id int64, status procurement.OrderStatus) error {
	po, ok := m.orders[id]
	if !ok {
		return procurement.ErrNotFound
	}
	po.Status = status
	m.orders[id] = po
	return nil
}

func (m *memoryRepo) InsertReceipt(ctx context.Context, rc procurement.Receipt) (procurement.Receipt, error) {
	for _, existing := range m.receipts {
		if existing.Number == rc.Number {
			return procurement.Receipt{}, procurement.ErrDuplicateNumber
		}
	}
	rc.ID = m.id()
	rc = cloneReceipt(rc)
	for i := range rc.Lines {
		rc.Lines[i].ID = m.id()
		rc.Lines[i].ReceiptID = rc.ID
	}
	m.receipts[rc.ID] = cloneReceipt(rc)
	return rc, nil
}

func (m *memoryRepo) GetReceiptForUpdate(ctx context.Context, id int64) (procurement.Receipt, error) {
	return m.GetReceipt(ctx, id)
}

func (m *memoryRepo) SetReceiptLineMovement(ctx context.Context, lineID, movementID int64) error {
	for id, rc := range m.receipts {
		for i := range rc.Lines {
			if rc.Lines[i].ID == lineID {
				mid := movementID
				rc.Lines[i].MovementID = &mid
				m.receipts[id] = rc
				return nil
			}
		}
	}
	return procurement.ErrNotFound
}

func (m *memoryRepo) UpdateReceiptPosting(ctx context.Context, id int64, status procurement.PostingStatus, postingErr string, entryID *int64) error {
	rc, ok := m.receipts[id]
	if !ok {
		return procurement.ErrNotFound
	}
	rc.PostingStatus, rc.PostingError, rc.JournalEntryID = status, postingErr, entryID
	m.receipts[id] = rc
	return nil
}
