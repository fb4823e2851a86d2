// Package posting turns business events into balanced journal entries.
package posting

import (
	"github.com/shopspring/decimal"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/accounting/mappings"
)

// ReceiptLine is one received product line of a purchase receipt.
type ReceiptLine struct {
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

func round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

func resolveAll(roles mappings.RoleMap, wanted ...mappings.Role) ([]string, error) {
	codes := make([]string, len(wanted))
	for i, role := range wanted {
		code, err := roles.Resolve(role)
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}
	return codes, nil
}

// DeriveSaleLines debits receivables for total and credits revenue for
// subtotal and tax payable for tax. The tax line is omitted when tax is not
// positive. Lines balance only when total equals subtotal plus tax.
func DeriveSaleLines(subtotal, tax, total decimal.Decimal, roles mappings.RoleMap) ([]accounting.PostingLineInput, error) {
	codes, err := resolveAll(roles, mappings.RoleAccountsReceivable, mappings.RoleSalesRevenue)
	if err != nil {
		return nil, err
	}
	lines := []accounting.PostingLineInput{
		accounting.Debit(codes[0], round2(total)),
		accounting.Credit(codes[1], round2(subtotal)),
	}
	if tax.IsPositive() {
		taxCode, err := roles.Resolve(mappings.RoleTaxPayable)
		if err != nil {
			return nil, err
		}
		lines = append(lines, accounting.Credit(taxCode, round2(tax)))
	}
	return lines, nil
}

// DeriveCostOfGoodsLines moves unitCost × quantity from inventory to cost of
// goods sold. A nil unit cost fails with accounting.ErrMissingCost.
func DeriveCostOfGoodsLines(unitCost *decimal.Decimal, quantity decimal.Decimal, roles mappings.RoleMap) ([]accounting.PostingLineInput, error) {
	if unitCost == nil {
		return nil, accounting.ErrMissingCost
	}
	codes, err := resolveAll(roles, mappings.RoleCostOfGoodsSold, mappings.RoleInventoryAsset)
	if err != nil {
		return nil, err
	}
	amount := round2(unitCost.Mul(quantity))
	return []accounting.PostingLineInput{
		accounting.Debit(codes[0], amount),
		accounting.Credit(codes[1], amount),
	}, nil
}

// DerivePayrollLines debits payroll expense for earnings, credits payroll
// payable for net pay and payroll accrual for deductions. Amounts are taken as
// given; a run whose earnings differ from net plus deductions is left for the
// validator to reject.
func DerivePayrollLines(earnings, deductions, netPay decimal.Decimal, roles mappings.RoleMap) ([]accounting.PostingLineInput, error) {
	codes, err := resolveAll(roles, mappings.RolePayrollExpense, mappings.RolePayrollPayable)
	if err != nil {
		return nil, err
	}
	lines := []accounting.PostingLineInput{
		accounting.Debit(codes[0], round2(earnings)),
		accounting.Credit(codes[1], round2(netPay)),
	}
	if !deductions.IsZero() {
		accrual, err := roles.Resolve(mappings.RolePayrollAccrual)
		if err != nil {
			return nil, err
		}
		lines = append(lines, accounting.Credit(accrual, round2(deductions)))
	}
	return lines, nil
}

// DerivePurchaseReceiptLines debits inventory and credits payables for the
// received value of lines.
func DerivePurchaseReceiptLines(lines []ReceiptLine, roles mappings.RoleMap) ([]accounting.PostingLineInput, error) {
	codes, err := resolveAll(roles, mappings.RoleInventoryAsset, mappings.RoleAccountsPayable)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(round2(line.Quantity.Mul(line.UnitCost)))
	}
	return []accounting.PostingLineInput{
		accounting.Debit(codes[0], total),
		accounting.Credit(codes[1], total),
	}, nil
}

// DerivePaymentLines settles receivables against cash.
func DerivePaymentLines(amount decimal.Decimal, roles mappings.RoleMap) ([]accounting.PostingLineInput, error) {
	codes, err := resolveAll(roles, mappings.RoleCash, mappings.RoleAccountsReceivable)
	if err != nil {
		return nil, err
	}
	amount = round2(amount)
	return []accounting.PostingLineInput{
		accounting.Debit(codes[0], amount),
		accounting.Credit(codes[1], amount),
	}, nil
}
