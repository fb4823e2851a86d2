package posting

import "fmt"

// Source modules stamped on generated entries.
const (
	ModuleSale            = "SALES.INVOICE"
	ModuleCostOfGoods     = "SALES.COGS"
	ModulePayment         = "SALES.PAYMENT"
	ModulePayroll         = "PAYROLL.RUN"
	ModulePurchaseReceipt = "PROCUREMENT.RECEIPT"
)

// SaleReference is the journal reference of an invoice.
func SaleReference(number string) string {
	return "FACT-" + number
}

// CostOfGoodsReference is the journal reference of the n-th costed line of an
// invoice, counted from 1.
func CostOfGoodsReference(number string, n int) string {
	return fmt.Sprintf("FACT-%s-COGS-%d", number, n)
}

// PaymentReference is the journal reference of the seq-th payment of an
// invoice.
func PaymentReference(number string, seq int) string {
	return fmt.Sprintf("PAGO-%s-%d", number, seq)
}

// PayrollReference is the journal reference of an employee's run in a period.
func PayrollReference(nationalID, periodCode string) string {
	return fmt.Sprintf("NOM-%s-%s", nationalID, periodCode)
}

// ReceiptReference is the journal reference of a purchase receipt.
func ReceiptReference(number string) string {
	return "REC-" + number
}
