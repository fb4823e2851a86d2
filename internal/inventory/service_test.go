package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hermes-erp/hermes/internal/inventory"
	"github.com/hermes-erp/hermes/internal/inventory/inventorytest"
)

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestAverageMovingCost(t *testing.T) {
	store := inventorytest.New()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{}, nil)
	ctx := context.Background()

	_, stock, err := svc.Adjust(ctx, inventory.AdjustmentInput{WarehouseID: 1, ProductID: 1, Quantity: qty("10"), UnitCost: ptr("100000")})
	require.NoError(t, err)
	require.Equal(t, "10", stock.Quantity.String())
	require.Equal(t, "100000", stock.AvgCost.String())

	_, stock, err = svc.Adjust(ctx, inventory.AdjustmentInput{WarehouseID: 1, ProductID: 1, Quantity: qty("5"), UnitCost: ptr("120000")})
	require.NoError(t, err)
	require.Equal(t, "15", stock.Quantity.String())
	require.Equal(t, "106666.6667", stock.AvgCost.String())

	movement, stock, err := svc.Adjust(ctx, inventory.AdjustmentInput{WarehouseID: 1, ProductID: 1, Quantity: qty("-8")})
	require.NoError(t, err)
	require.Equal(t, inventory.MovementOut, movement.Kind)
	require.Equal(t, "8", movement.Quantity.String())
	require.Equal(t, "7", stock.Quantity.String())
	require.Equal(t, "106666.6667", stock.AvgCost.String())

	got, err := svc.GetStock(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, got.Quantity.Equal(qty("7")))
}

func TestNegativeStockGuard(t *testing.T) {
	store := inventorytest.New()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{}, nil)
	ctx := context.Background()

	_, _, err := svc.Adjust(ctx, inventory.AdjustmentInput{WarehouseID: 1, ProductID: 1, Quantity: qty("-1")})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.Empty(t, store.Movements())

	permissive := inventory.NewService(store, nil, inventory.ServiceConfig{AllowNegativeStock: true}, nil)
	_, stock, err := permissive.Adjust(ctx, inventory.AdjustmentInput{WarehouseID: 1, ProductID: 1, Quantity: qty("-1")})
	require.NoError(t, err)
	require.Equal(t, "-1", stock.Quantity.String())
}

func TestRecordThenApplyInCallerTransaction(t *testing.T) {
	store := inventorytest.New().Seed(3, 2, "4", "25")
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{}, nil)
	ctx := context.Background()
	ref := int64(77)

	err := store.WithTx(ctx, func(ctx context.Context, tx inventory.StockTx) error {
		m, err := svc.RecordMovement(ctx, tx, inventory.Movement{
			Kind: inventory.MovementOut, ProductID: 3, WarehouseID: 2, Quantity: qty("3"), RefModule: "SALES.INVOICE", RefID: &ref,
		})
		require.NoError(t, err)
		require.NotEmpty(t, m.Code)
		require.Equal(t, "4", store.Stock(3, 2).Quantity.String())

		stock, err := svc.ApplyToStock(ctx, tx, m)
		require.NoError(t, err)
		require.Equal(t, "1", stock.Quantity.String())
		require.Equal(t, "25", stock.AvgCost.String())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"3:2"}, store.Locked)

	movements, err := svc.ListMovements(ctx, inventory.MovementFilter{RefModule: "SALES.INVOICE", RefID: ref})
	require.NoError(t, err)
	require.Len(t, movements, 1)
}

func TestFailedApplyRollsBackMovement(t *testing.T) {
	store := inventorytest.New().Seed(1, 1, "2", "10")
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{}, nil)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.StockTx) error {
		_, _, err := svc.Move(ctx, tx, inventory.Movement{Kind: inventory.MovementOut, ProductID: 1, WarehouseID: 1, Quantity: qty("5")})
		return err
	})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.Empty(t, store.Movements())
	require.Equal(t, "2", store.Stock(1, 1).Quantity.String())
}

func TestMovementValidation(t *testing.T) {
	store := inventorytest.New()
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{}, nil)
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, store, inventory.Movement{Kind: inventory.MovementIn, ProductID: 1, WarehouseID: 1, Quantity: decimal.Zero})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, err = svc.RecordMovement(ctx, store, inventory.Movement{Kind: "MOVE", ProductID: 1, WarehouseID: 1, Quantity: qty("1")})
	require.ErrorIs(t, err, inventory.ErrInvalidMovement)
	_, err = svc.RecordMovement(ctx, store, inventory.Movement{Kind: inventory.MovementIn, ProductID: 1, WarehouseID: 1, Quantity: qty("1"), UnitCost: ptr("-1")})
	require.ErrorIs(t, err, inventory.ErrInvalidUnitCost)
	_, _, err = svc.Adjust(ctx, inventory.AdjustmentInput{WarehouseID: 1, ProductID: 1, Quantity: decimal.Zero})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
}

func TestInboundWithoutCostKeepsAverage(t *testing.T) {
	store := inventorytest.New().Seed(1, 1, "2", "10")
	svc := inventory.NewService(store, nil, inventory.ServiceConfig{}, nil)

	_, stock, err := svc.Adjust(context.Background(), inventory.AdjustmentInput{WarehouseID: 1, ProductID: 1, Quantity: qty("3")})
	require.NoError(t, err)
	require.Equal(t, "5", stock.Quantity.String())
	require.Equal(t, "10", stock.AvgCost.String())
}
