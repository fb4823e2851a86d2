package posting

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/accounting/mappings"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func byAccount(lines []accounting.PostingLineInput) map[string]string {
	out := make(map[string]string, len(lines))
	for _, line := range lines {
		out[line.AccountCode+":"+string(line.Side)] = line.Amount.StringFixed(2)
	}
	return out
}

func TestDeriveSaleLines(t *testing.T) {
	lines, err := DeriveSaleLines(d("100.00"), d("18.00"), d("118.00"), mappings.Defaults())
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"130505:DEBIT":  "118.00",
		"413505:CREDIT": "100.00",
		"240805:CREDIT": "18.00",
	}, byAccount(lines))
	require.NoError(t, accounting.Validate(lines))

	debit, credit := accounting.Totals(lines)
	require.Equal(t, "118.00", debit.StringFixed(2))
	require.Equal(t, "118.00", credit.StringFixed(2))
}

func TestDeriveSaleLinesWithoutTax(t *testing.T) {
	roles := mappings.Defaults()
	delete(roles, mappings.RoleTaxPayable)

	lines, err := DeriveSaleLines(d("50"), decimal.Zero, d("50"), roles)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	_, err = DeriveSaleLines(d("50"), d("9"), d("59"), roles)
	require.ErrorIs(t, err, accounting.ErrConfiguration)
}

func TestDeriveSaleLinesMismatchedTotal(t *testing.T) {
	lines, err := DeriveSaleLines(d("100"), d("18"), d("200"), mappings.Defaults())
	require.NoError(t, err)

	err = accounting.Validate(lines)
	var balanceErr *accounting.BalanceError
	require.True(t, errors.As(err, &balanceErr))
	require.Equal(t, "200.00", balanceErr.TotalDebit.StringFixed(2))
	require.Equal(t, "118.00", balanceErr.TotalCredit.StringFixed(2))
}

func TestDeriveCostOfGoodsLines(t *testing.T) {
	cost := d("50")
	lines, err := DeriveCostOfGoodsLines(&cost, d("2"), mappings.Defaults())
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"613505:DEBIT":  "100.00",
		"143505:CREDIT": "100.00",
	}, byAccount(lines))

	_, err = DeriveCostOfGoodsLines(nil, d("2"), mappings.Defaults())
	require.ErrorIs(t, err, accounting.ErrMissingCost)

	_, err = DeriveCostOfGoodsLines(nil, d("2"), mappings.RoleMap{})
	require.ErrorIs(t, err, accounting.ErrMissingCost)
}

func TestDeriveCostOfGoodsRoundsToCents(t *testing.T) {
	cost := d("3.3333")
	lines, err := DeriveCostOfGoodsLines(&cost, d("3"), mappings.Defaults())
	require.NoError(t, err)
	require.Equal(t, "10.00", lines[0].Amount.StringFixed(2))
	require.True(t, lines[0].Amount.Equal(lines[1].Amount))
}

func TestDerivePayrollLines(t *testing.T) {
	lines, err := DerivePayrollLines(d("3000000"), d("240000"), d("2760000"), mappings.Defaults())
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"510505:DEBIT":  "3000000.00",
		"250505:CREDIT": "2760000.00",
		"261005:CREDIT": "240000.00",
	}, byAccount(lines))
	require.NoError(t, accounting.Validate(lines))

	lines, err = DerivePayrollLines(d("1000"), decimal.Zero, d("1000"), mappings.Defaults())
	require.NoError(t, err)
	require.Len(t, lines, 2)

	lines, err = DerivePayrollLines(d("1000"), d("80"), d("900"), mappings.Defaults())
	require.NoError(t, err)
	require.ErrorIs(t, accounting.Validate(lines), accounting.ErrUnbalanced)
}

func TestDerivePurchaseReceiptLines(t *testing.T) {
	lines, err := DerivePurchaseReceiptLines([]ReceiptLine{
		{Quantity: d("10"), UnitCost: d("12.345")},
		{Quantity: d("1.5"), UnitCost: d("20")},
	}, mappings.Defaults())
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"143505:DEBIT":  "153.45",
		"220505:CREDIT": "153.45",
	}, byAccount(lines))
}

func TestDerivePaymentLines(t *testing.T) {
	lines, err := DerivePaymentLines(d("59"), mappings.Defaults())
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"110505:DEBIT":  "59.00",
		"130505:CREDIT": "59.00",
	}, byAccount(lines))

	_, err = DerivePaymentLines(d("59"), mappings.RoleMap{mappings.RoleCash: "110505"})
	cfgErr, ok := accounting.IsConfigurationError(err)
	require.True(t, ok)
	require.Equal(t, "role:accounts-receivable", cfgErr.Key)
}
