package sales_test

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/accounting/ledgertest"
	"github.com/hermes-erp/hermes/internal/inventory/inventorytest"
	"github.com/hermes-erp/hermes/internal/masterdata"
	"github.com/hermes-erp/hermes/internal/sales"
)

// memoryRepo keeps invoices in memory next to an in-memory ledger and stock
// store, and rolls all three back together when a transaction fails.
type memoryRepo struct {
	*ledgertest.Ledger
	*inventorytest.Store

	products map[int64]masterdata.Product
	partners map[int64]masterdata.Partner
	invoices map[int64]sales.Invoice
	payments []sales.Payment
	nextID   int64
}

func newMemoryRepo(ledger *ledgertest.Ledger, stock *inventorytest.Store) *memoryRepo {
	return &memoryRepo{
		Ledger:   ledger,
		Store:    stock,
		products: map[int64]masterdata.Product{},
		partners: map[int64]masterdata.Partner{},
		invoices: map[int64]sales.Invoice{},
	}
}

type repoState struct {
	ledger   any
	stock    any
	invoices map[int64]sales.Invoice
	payments []sales.Payment
	nextID   int64
}

func (m *memoryRepo) snapshot() repoState {
	invoices := make(map[int64]sales.Invoice, len(m.invoices))
	for id, inv := range m.invoices {
		invoices[id] = cloneInvoice(inv)
	}
	return repoState{
		ledger:   m.Ledger.Snapshot(),
		stock:    m.Store.Snapshot(),
		invoices: invoices,
		payments: append([]sales.Payment(nil), m.payments...),
		nextID:   m.nextID,
	}
}

func (m *memoryRepo) restore(s repoState) {
	m.Ledger.Restore(s.ledger)
	m.Store.Restore(s.stock)
	m.invoices = s.invoices
	m.payments = s.payments
	m.nextID = s.nextID
}

func cloneInvoice(inv sales.Invoice) sales.Invoice {
	inv.Lines = append([]sales.InvoiceLine(nil), inv.Lines...)
	return inv
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memoryRepo) GetInvoice(ctx context.Context, id int64) (sales.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return sales.Invoice{}, sales.ErrInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

func (m *memoryRepo) ListInvoices(ctx context.Context, filter sales.ListFilter) ([]sales.Invoice, error) {
	var out []sales.Invoice
	for _, inv := range m.invoices {
		if filter.PostingStatus != "" && inv.PostingStatus != filter.PostingStatus {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.PartnerID != 0 && inv.PartnerID != filter.PartnerID {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRepo) ListPayments(ctx context.Context, invoiceID int64) ([]sales.Payment, error) {
	var out []sales.Payment
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
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

func (m *memoryRepo) InsertInvoice(ctx context.Context, inv sales.Invoice) (sales.Invoice, error) {
	for _, existing := range m.invoices {
		if existing.Number == inv.Number {
			return sales.Invoice{}, sales.ErrDuplicateInvoice
		}
	}
	inv.ID = m.id()
	inv.Lines = append([]sales.InvoiceLine(nil), inv.Lines...)
	for i := range inv.Lines {
		inv.Lines[i].ID = m.id()
		inv.Lines[i].InvoiceID = inv.ID
	}
	m.invoices[inv.ID] = cloneInvoice(inv)
	return inv, nil
}

func (m *memoryRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (sales.Invoice, error) {
	return m.GetInvoice(ctx, id)
}

func (m *memoryRepo) SetLineMovement(ctx context.Context, lineID, movementID int64) error {
	for id, inv := range m.invoices {
		for i := range inv.Lines {
			if inv.Lines[i].ID == lineID {
				mid := movementID
				inv.Lines[i].MovementID = &mid
				m.invoices[id] = inv
				return nil
			}
		}
	}
	return sales.ErrInvoiceNotFound
}

func (m *memoryRepo) UpdateInvoicePosting(ctx context.Context, id int64, status sales.PostingStatus, postingErr string, entryID *int64) error {
	inv, ok := m.invoices[id]
	if !ok {
		return sales.ErrInvoiceNotFound
	}
	inv.PostingStatus, inv.PostingError, inv.JournalEntryID = status, postingErr, entryID
	m.invoices[id] = inv
	return nil
}

func (m *memoryRepo) UpdateInvoiceStatus(ctx context.Context, id int64, status sales.InvoiceStatus, amountPaid decimal.Decimal) error {
	inv, ok := m.invoices[id]
	if !ok {
		return sales.ErrInvoiceNotFound
	}
	inv.Status, inv.AmountPaid = status, amountPaid
	m.invoices[id] = inv
	return nil
}

func (m *memoryRepo) CountPayments(ctx context.Context, invoiceID int64) (int, error) {
	payments, _ := m.ListPayments(ctx, invoiceID)
	return len(payments), nil
}

func (m *memoryRepo) InsertPayment(ctx context.Context, p sales.Payment) (sales.Payment, error) {
	p.ID = m.id()
	m.payments = append(m.payments, p)
	return p, nil
}
