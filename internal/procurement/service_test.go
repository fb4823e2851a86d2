package procurement_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/hermes-erp/hermes/internal/accounting/ledgertest"
	"github.com/hermes-erp/hermes/internal/accounting/mappings"
	"github.com/hermes-erp/hermes/internal/currency/currencytest"
	"github.com/hermes-erp/hermes/internal/inventory"
	"github.com/hermes-erp/hermes/internal/inventory/inventorytest"
	"github.com/hermes-erp/hermes/internal/masterdata"
	"github.com/hermes-erp/hermes/internal/posting"
	"github.com/hermes-erp/hermes/internal/procurement"
	"github.com/hermes-erp/hermes/internal/shared"
)

const (
	warehouseID = int64(1)
	boltID      = int64(1)
	serviceID   = int64(2)
	supplierID  = int64(10)
	customerID  = int64(11)
)

var orderDate = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type auditSpy struct{ actions []string }

func (a *auditSpy) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type ProcurementSuite struct {
	suite.Suite
	ctx    context.Context
	ledger *ledgertest.Ledger
	stock  *inventorytest.Store
	repo   *memoryRepo
	roles  mappings.RoleMap
	audit  *auditSpy
	svc    *procurement.Service
}

func TestProcurementSuite(t *testing.T) {
	suite.Run(t, new(ProcurementSuite))
}

func (s *ProcurementSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = ledgertest.NewWithDefaultChart()
	s.stock = inventorytest.New()
	s.repo = newMemoryRepo(s.ledger, s.stock)
	s.repo.products[boltID] = masterdata.Product{ID: boltID, SKU: "B-1", Kind: masterdata.ProductPhysical, Price: dec("80"), Taxable: true}
	s.repo.products[serviceID] = masterdata.Product{ID: serviceID, SKU: "S-1", Kind: masterdata.ProductService, Price: dec("30")}
	s.repo.partners[supplierID] = masterdata.Partner{ID: supplierID, Name: "Tornillos SAS", Kind: masterdata.PartnerSupplier}
	s.repo.partners[customerID] = masterdata.Partner{ID: customerID, Name: "Acme", Kind: masterdata.PartnerCustomer}

	s.roles = mappings.Defaults()
	resolver, _ := currencytest.Resolver()
	engine := posting.NewEngine(mappings.NewProvider(nil, s.roles), resolver, nil, nil)
	stockSvc := inventory.NewService(s.stock, nil, inventory.ServiceConfig{}, nil)
	s.audit = &auditSpy{}
	s.svc = procurement.NewService(s.repo, engine, stockSvc, s.audit, dec("0.18"), nil)
}

func (s *ProcurementSuite) order(number string, qty, cost string) procurement.PurchaseOrder {
	po, err := s.svc.CreateOrder(s.ctx, procurement.OrderInput{
		Number:     number,
		SupplierID: supplierID,
		Date:       orderDate,
		Lines:      []procurement.OrderLineInput{{ProductID: boltID, Quantity: dec(qty), UnitCost: dec(cost)}},
	})
	s.Require().NoError(err)
	return po
}

func (s *ProcurementSuite) receive(po procurement.PurchaseOrder, number, qty string) (procurement.Receipt, error) {
	return s.svc.ReceiveOrder(s.ctx, procurement.ReceiptInput{
		OrderID:     po.ID,
		Number:      number,
		WarehouseID: warehouseID,
		Date:        orderDate.AddDate(0, 0, 2),
		Lines:       []procurement.ReceiptLineInput{{OrderLineID: po.Lines[0].ID, Quantity: dec(qty)}},
	})
}

func (s *ProcurementSuite) amounts(reference string) map[string]string {
	entry, ok := s.ledger.Entry(reference)
	s.Require().True(ok, reference)
	out := map[string]string{}
	for _, l := range entry.Lines {
		out[l.AccountCode+":"+string(l.Side)] = l.Amount.StringFixed(2)
	}
	return out
}

func (s *ProcurementSuite) TestCreateOrderTotalsWithoutPosting() {
	po := s.order("PO-1", "10", "50")
	s.Equal("500.00", po.Subtotal.StringFixed(2))
	s.Equal("90.00", po.TaxAmount.StringFixed(2))
	s.Equal("590.00", po.Total.StringFixed(2))
	s.Equal(procurement.OrderStatusDraft, po.Status)
	s.Empty(s.ledger.Entries())
	s.Contains(s.audit.actions, "procurement.order.create")
}

func (s *ProcurementSuite) TestCreateOrderRejections() {
	_, err := s.svc.CreateOrder(s.ctx, procurement.OrderInput{
		SupplierID: customerID,
		Lines:      []procurement.OrderLineInput{{ProductID: boltID, Quantity: dec("1"), UnitCost: dec("1")}},
	})
	s.ErrorIs(err, procurement.ErrNotSupplier)

	_, err = s.svc.CreateOrder(s.ctx, procurement.OrderInput{
		SupplierID: supplierID,
		Lines:      []procurement.OrderLineInput{{ProductID: serviceID, Quantity: dec("1"), UnitCost: dec("1")}},
	})
	s.ErrorIs(err, procurement.ErrValidation)

	_, err = s.svc.CreateOrder(s.ctx, procurement.OrderInput{
		SupplierID: supplierID,
		Lines:      []procurement.OrderLineInput{{ProductID: boltID, Quantity: dec("0"), UnitCost: dec("1")}},
	})
	s.ErrorIs(err, procurement.ErrValidation)

	_, err = s.svc.CreateOrder(s.ctx, procurement.OrderInput{SupplierID: supplierID})
	s.ErrorIs(err, procurement.ErrValidation)
	s.Empty(s.repo.orders)
}

func (s *ProcurementSuite) TestReceivePartialThenComplete() {
	po := s.order("PO-2", "10", "50")

	first, err := s.receive(po, "GR-1", "4")
	s.Require().NoError(err)
	s.Equal(procurement.PostingPosted, first.PostingStatus)
	s.Equal("200.00", first.Total.StringFixed(2))
	s.Equal(map[string]string{
		"143505:DEBIT":  "200.00",
		"220505:CREDIT": "200.00",
	}, s.amounts("REC-GR-1"))
	entry, _ := s.ledger.Entry("REC-GR-1")
	s.Require().NotNil(entry.PartnerID)
	s.Equal(supplierID, *entry.PartnerID)
	s.Equal(posting.ModulePurchaseReceipt, entry.SourceModule)

	stock := s.stock.Stock(boltID, warehouseID)
	s.True(stock.Quantity.Equal(dec("4")))
	s.True(stock.AvgCost.Equal(dec("50")))

	got, err := s.svc.GetOrder(s.ctx, po.ID)
	s.Require().NoError(err)
	s.Equal(procurement.OrderStatusPartial, got.Status)
	s.True(got.Lines[0].Pending().Equal(dec("6")))

	_, err = s.receive(po, "GR-2", "6")
	s.Require().NoError(err)
	got, err = s.svc.GetOrder(s.ctx, po.ID)
	s.Require().NoError(err)
	s.Equal(procurement.OrderStatusReceived, got.Status)

	_, err = s.receive(po, "GR-3", "1")
	s.ErrorIs(err, procurement.ErrOrderClosed)

	movements := s.stock.Movements()
	s.Require().Len(movements, 2)
	for _, m := range movements {
		s.Equal(inventory.MovementIn, m.Kind)
		s.Require().NotNil(m.JournalEntryID)
	}
	s.Equal("REC-GR-1-1", movements[0].Code)
}

func (s *ProcurementSuite) TestOverReceiptRollsBack() {
	po := s.order("PO-3", "5", "10")
	_, err := s.receive(po, "GR-4", "6")
	s.ErrorIs(err, procurement.ErrOverReceipt)
	s.Empty(s.repo.receipts)
	s.Empty(s.stock.Movements())
	s.Empty(s.ledger.Entries())
}

func (s *ProcurementSuite) TestMissingPayablesRoleLeavesReceiptUnposted() {
	po := s.order("PO-4", "3", "20")
	delete(s.roles, mappings.RoleAccountsPayable)

	rc, err := s.receive(po, "GR-5", "3")
	s.Require().NoError(err)
	s.Equal(procurement.PostingUnposted, rc.PostingStatus)
	s.Contains(rc.PostingError, "role:accounts-payable")
	s.Nil(rc.JournalEntryID)
	s.Empty(s.ledger.Entries())
	s.True(s.stock.Stock(boltID, warehouseID).Quantity.Equal(dec("3")), "goods are received")

	ids, err := s.svc.ListUnposted(s.ctx)
	s.Require().NoError(err)
	s.Equal([]int64{rc.ID}, ids)

	s.roles[mappings.RoleAccountsPayable] = "220505"
	retried, err := s.svc.RetryPosting(s.ctx, rc.ID, 3)
	s.Require().NoError(err)
	s.Equal(procurement.PostingPosted, retried.PostingStatus)
	s.Empty(retried.PostingError)
	s.Equal(map[string]string{
		"143505:DEBIT":  "60.00",
		"220505:CREDIT": "60.00",
	}, s.amounts("REC-GR-5"))
	s.Require().NotNil(s.stock.Movements()[0].JournalEntryID)
	s.Contains(s.audit.actions, "posting.retry")

	ids, err = s.svc.ListUnposted(s.ctx)
	s.Require().NoError(err)
	s.Empty(ids)
}

func (s *ProcurementSuite) TestForeignCurrencyNeedsRate() {
	po, err := s.svc.CreateOrder(s.ctx, procurement.OrderInput{
		Number:       "PO-5",
		SupplierID:   supplierID,
		Date:         orderDate,
		CurrencyCode: "USD",
		Lines:        []procurement.OrderLineInput{{ProductID: boltID, Quantity: dec("2"), UnitCost: dec("15")}},
	})
	s.Require().NoError(err)

	_, err = s.receive(po, "GR-6", "2")
	s.Require().Error(err)
	s.Empty(s.repo.receipts)
	s.Empty(s.stock.Movements())
	got, _ := s.svc.GetOrder(s.ctx, po.ID)
	s.Equal(procurement.OrderStatusDraft, got.Status)
	s.True(got.Lines[0].ReceivedQty.IsZero())
}
