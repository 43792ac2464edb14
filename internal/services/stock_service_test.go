package services

import (
	"context"
	"errors"
	"testing"

	"kitchenops/server/internal/events"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMovement(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	flour := k.ingredient(t, "Flour", "kg", 10, 20)

	in, err := k.stock.RecordMovement(ctx, MovementInput{IngredientID: flour.ID, Quantity: 2500, Unit: "g", PurchasePrice: 0.002})
	require.NoError(t, err)
	assert.Equal(t, 2.5, in.Quantity)
	assert.Equal(t, "kg", in.Unit)
	assert.Equal(t, models.SourceManual, in.SourceType)
	assert.Equal(t, models.DefaultBase, in.Base)
	assert.Equal(t, 5.0, in.CostTotal)

	_, err = k.stock.RecordMovement(ctx, MovementInput{IngredientID: flour.ID, Quantity: 4, Direction: models.DirectionOutbound})
	require.NoError(t, err)

	got, err := k.ingredients.GetIngredient(ctx, flour.ID)
	require.NoError(t, err)
	assert.Equal(t, -1.5, got.Stock, "outbound may overdraw")

	adj, err := k.stock.RecordMovement(ctx, MovementInput{IngredientID: flour.ID, Quantity: 1.5, Direction: models.DirectionAdjustment})
	require.NoError(t, err)
	assert.Equal(t, models.SourceAdjustment, adj.SourceType)
	got, err = k.ingredients.GetIngredient(ctx, flour.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Stock, "adjustments add their quantity")
}

func TestRecordMovement_SignedAdjustment(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	flour := k.ingredient(t, "Flour", "kg", 10, 20)

	_, err := k.stock.RecordMovement(ctx, MovementInput{IngredientID: flour.ID, Quantity: 5})
	require.NoError(t, err)

	adj, err := k.stock.RecordMovement(ctx, MovementInput{IngredientID: flour.ID, Quantity: -2, Direction: models.DirectionAdjustment})
	require.NoError(t, err)
	assert.Equal(t, -2.0, adj.Quantity)
	assert.Equal(t, -2.0, adj.SignedQuantity())

	got, err := k.ingredients.GetIngredient(ctx, flour.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Stock)

	for _, direction := range []models.MovementDirection{"", models.DirectionInbound, models.DirectionOutbound} {
		_, err := k.stock.RecordMovement(ctx, MovementInput{IngredientID: flour.ID, Quantity: -1, Direction: direction})
		assert.True(t, errors.Is(err, ErrValidation), "direction %q", direction)
	}
	got, err = k.ingredients.GetIngredient(ctx, flour.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Stock)
}

func TestRecordMovement_Errors(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()

	_, err := k.stock.RecordMovement(ctx, MovementInput{IngredientID: "x", Quantity: 0})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = k.stock.RecordMovement(ctx, MovementInput{IngredientID: "x", Quantity: 1, Direction: "sideways"})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = k.stock.RecordMovement(ctx, MovementInput{IngredientID: "x", Quantity: 1})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAdjustStock(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	flour := k.ingredient(t, "Flour", "kg", 10, 20)

	got, err := k.stock.AdjustStock(ctx, flour.ID, StockAdjustment{Quantity: 3, Type: "add"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Stock)

	got, err = k.stock.AdjustStock(ctx, flour.ID, StockAdjustment{Quantity: 5, Type: "deduct", Notes: "spoiled"})
	require.NoError(t, err)
	assert.Zero(t, got.Stock, "a deduction stops at zero")

	movements, err := k.stock.ListMovements(ctx, repository.MovementFilter{IngredientID: flour.ID})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, models.DirectionOutbound, movements[0].Direction)
	assert.Equal(t, 3.0, movements[0].Quantity, "records what was actually removed")
	assert.Equal(t, models.DirectionAdjustment, movements[1].Direction)

	got, err = k.stock.AdjustStock(ctx, flour.ID, StockAdjustment{Quantity: 1, Type: "deduct"})
	require.NoError(t, err)
	assert.Zero(t, got.Stock)
	movements, err = k.stock.ListMovements(ctx, repository.MovementFilter{IngredientID: flour.ID})
	require.NoError(t, err)
	assert.Len(t, movements, 2, "nothing to deduct writes no movement")

	_, err = k.stock.AdjustStock(ctx, flour.ID, StockAdjustment{Quantity: 1, Type: "set"})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestGroupedAndLowStock(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	flour := k.ingredient(t, "Flour", "kg", 10, 20)
	salt := k.ingredient(t, "Salt", "kg", 1, 1)

	_, err := k.stock.RecordMovement(ctx, MovementInput{IngredientID: flour.ID, Quantity: 10, PurchasePrice: 2})
	require.NoError(t, err)
	_, err = k.stock.RecordMovement(ctx, MovementInput{IngredientID: flour.ID, Quantity: 4, Direction: models.DirectionOutbound})
	require.NoError(t, err)
	_, err = k.stock.RecordMovement(ctx, MovementInput{IngredientID: salt.ID, Quantity: 1, PurchasePrice: 1})
	require.NoError(t, err)

	groups, err := k.stock.GroupedStock(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Flour", groups[0].IngredientName)
	assert.Equal(t, 6.0, groups[0].TotalQuantity)
	assert.Equal(t, "Salt", groups[1].IngredientName)

	low, err := k.stock.LowStock(ctx, 5)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, salt.ID, low[0].ID)
}

func TestRecordProduction(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	recorded := record(k.bus, events.ProductionRecorded)

	flour := k.ingredient(t, "Flour", "kg", 10, 20)
	butter := k.ingredient(t, "Butter", "kg", 1, 10)
	_, err := k.stock.AdjustStock(ctx, flour.ID, StockAdjustment{Quantity: 5, Type: "add"})
	require.NoError(t, err)
	bread := k.recipe(t, "Bread", 10, line(flour.ID, 4, "kg"), line(butter.ID, 200, "g"), line("gone", 1, "kg"))

	result, err := k.production.RecordProduction(ctx, ProductionInput{
		Date: "2024-05-01", RecipeID: bread.ID, Quantity: 2, Base: "north", Handler: "baker",
	})
	require.NoError(t, err)
	require.Len(t, result.Movements, 2, "lines with missing ingredients are skipped")
	assert.Equal(t, 20.0, result.Production.Cost, "8 kg flour at 2 plus 0.4 kg butter at 10")

	for _, m := range result.Movements {
		assert.Equal(t, models.DirectionOutbound, m.Direction)
		assert.Equal(t, models.SourceProductionOrder, m.SourceType)
		assert.Equal(t, result.Production.ID, m.SourceID)
	}

	gotFlour, err := k.ingredients.GetIngredient(ctx, flour.ID)
	require.NoError(t, err)
	assert.Equal(t, -3.0, gotFlour.Stock)
	gotButter, err := k.ingredients.GetIngredient(ctx, butter.ID)
	require.NoError(t, err)
	assert.InDelta(t, -0.4, gotButter.Stock, 1e-9)

	list, err := k.production.ListProductions(ctx, repository.ProductionFilter{RecipeID: bread.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 20.0, list[0].Cost)
	assert.Len(t, recorded.events, 1)
}

func TestRecordProduction_Errors(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()

	_, err := k.production.RecordProduction(ctx, ProductionInput{Date: "2024-05-01", RecipeID: "r", Quantity: 0, Base: "b", Handler: "h"})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = k.production.RecordProduction(ctx, ProductionInput{Date: "2024-05-01", RecipeID: "r", Quantity: 1, Base: "b", Handler: "h"})
	assert.True(t, errors.Is(err, ErrNotFound))
}
