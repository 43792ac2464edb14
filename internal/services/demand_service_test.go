package services

import (
	"context"
	"errors"
	"testing"

	"kitchenops/server/internal/events"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuyQuantity(t *testing.T) {
	assert.True(t, BuyQuantity(decimal.NewFromInt(1), 80).Equal(decimal.NewFromFloat(1.25)))
	assert.True(t, BuyQuantity(decimal.NewFromInt(3), 100).Equal(decimal.NewFromInt(3)))
	assert.True(t, BuyQuantity(decimal.NewFromInt(3), 0).IsZero(), "zero yield buys nothing")
}

type menuFixture struct {
	flour, butter *models.Ingredient
	bread         *models.Recipe
	menu          *models.Menu
}

func seedMenu(t *testing.T, k *kitchen, mealType string) menuFixture {
	t.Helper()
	ctx := context.Background()
	flour := k.ingredient(t, "Flour", "kg", 10, 20)
	butter, err := k.ingredients.SaveIngredient(ctx, &models.Ingredient{
		Name: "Butter", Supplier: "Dairy Co", PurchaseUnit: "kg", PurchaseQuantity: 1, OriginalPrice: 8, Yield: ptr(80.0),
	})
	require.NoError(t, err)
	bread := k.recipe(t, "Bread", 10, line(flour.ID, 4, "kg"), line(butter.ID, 200, "g"))
	menu, err := k.plans.SaveMenu(ctx, &models.Menu{
		Name: "Bakery", Date: "2024-05-01", Base: "north", MealType: mealType, RecipeIDs: []string{bread.ID},
	})
	require.NoError(t, err)
	return menuFixture{flour: flour, butter: butter, bread: bread, menu: menu}
}

func itemFor(t *testing.T, req models.Requisition, ingredientID string) models.RequisitionItem {
	t.Helper()
	for _, item := range req.Items {
		if item.IngredientID != nil && *item.IngredientID == ingredientID {
			return item
		}
	}
	t.Fatalf("no item for ingredient %s", ingredientID)
	return models.RequisitionItem{}
}

func TestGenerateFromMenus_ScalesAndAppliesYield(t *testing.T) {
	k := newKitchen(t)
	fx := seedMenu(t, k, models.MealLunch)
	generated := record(k.bus, events.RequisitionsGenerated)

	reqs, err := k.demand.GenerateFromMenus(context.Background(), MenuDemandRequest{
		MenuIDs: []string{fx.menu.ID}, PeopleCount: 20,
	})
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	req := reqs[0]
	assert.Equal(t, models.RequisitionOriginMenu, req.Origin)
	assert.Equal(t, models.RequisitionStatusPending, req.Status)
	assert.Equal(t, models.DefaultRequestedBy, req.RequestedBy)
	assert.Equal(t, "Bakery", req.MenuName)
	assert.Equal(t, 2.0, req.PortionFactor)
	require.Len(t, req.Items, 2)

	flour := itemFor(t, req, fx.flour.ID)
	assert.Equal(t, 8.0, flour.Quantity)
	assert.Equal(t, "Metro", flour.Supplier)

	butter := itemFor(t, req, fx.butter.ID)
	assert.Equal(t, 0.5, butter.Quantity, "0.2 kg x 2 at 80% yield")
	assert.Equal(t, "kg", butter.Unit)

	assert.Len(t, generated.events, 1)
}

func TestGenerateFromMenus_DefaultPeopleAndFilter(t *testing.T) {
	k := newKitchen(t)
	fx := seedMenu(t, k, models.MealBreakfast)

	reqs, err := k.demand.GenerateFromMenus(context.Background(), MenuDemandRequest{Date: "2024-05-01", Base: "north"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, 100.0, reqs[0].PeopleCount)
	assert.Equal(t, 40.0, itemFor(t, reqs[0], fx.flour.ID).Quantity)
}

func TestGenerateFromMenus_RegenerationReplacesLines(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	fx := seedMenu(t, k, models.MealLunch)

	first, err := k.demand.GenerateFromMenus(ctx, MenuDemandRequest{MenuIDs: []string{fx.menu.ID}, PeopleCount: 10})
	require.NoError(t, err)
	_, err = k.requisitions.Approve(ctx, first[0].ID, "manager")
	require.NoError(t, err)

	second, err := k.demand.GenerateFromMenus(ctx, MenuDemandRequest{MenuIDs: []string{fx.menu.ID}, PeopleCount: 30})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID, "one requisition per date, base and meal")
	assert.Equal(t, models.RequisitionStatusPending, second[0].Status)
	assert.Equal(t, 12.0, itemFor(t, second[0], fx.flour.ID).Quantity)

	page, err := k.requisitions.ListRequisitions(ctx, repository.RequisitionFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestGenerateFromMenus_SkipsCompletedHeader(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	fx := seedMenu(t, k, models.MealLunch)

	first, err := k.demand.GenerateFromMenus(ctx, MenuDemandRequest{MenuIDs: []string{fx.menu.ID}, PeopleCount: 10})
	require.NoError(t, err)
	actuals := map[string]float64{}
	for _, item := range first[0].Items {
		actuals[item.ID] = item.Quantity
	}
	_, err = k.requisitions.Complete(ctx, first[0].ID, CompleteRequest{ActualQuantities: actuals})
	require.NoError(t, err)

	again, err := k.demand.GenerateFromMenus(ctx, MenuDemandRequest{MenuIDs: []string{fx.menu.ID}, PeopleCount: 50})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, models.RequisitionStatusCompleted, again[0].Status)
	assert.Equal(t, 4.0, itemFor(t, again[0], fx.flour.ID).Quantity, "completed lines are left alone")
}

func TestGenerateFromMenus_UnknownIngredientsWriteNothing(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	ghost := k.recipe(t, "Ghost", 10, line("no-such-ingredient", 1, "kg"))
	menu, err := k.plans.SaveMenu(ctx, &models.Menu{Date: "2024-05-02", Base: "south", MealType: models.MealDinner, RecipeIDs: []string{ghost.ID}})
	require.NoError(t, err)

	reqs, err := k.demand.GenerateFromMenus(ctx, MenuDemandRequest{MenuIDs: []string{menu.ID}})
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestGenerateFromMenus_NeedsSelection(t *testing.T) {
	k := newKitchen(t)
	_, err := k.demand.GenerateFromMenus(context.Background(), MenuDemandRequest{})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = k.demand.GenerateFromMenus(context.Background(), MenuDemandRequest{Date: "01/05/2024"})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSavePlan_GeneratesAndRegenerates(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	fx := seedMenu(t, k, models.MealBreakfast)
	lunch, err := k.plans.SaveMenu(ctx, &models.Menu{
		Name: "Lunch", Date: "2024-05-01", Base: "north", MealType: models.MealLunch, RecipeIDs: []string{fx.bread.ID},
	})
	require.NoError(t, err)

	plan := &models.Plan{
		Date:      "2024-05-01",
		Base:      "north",
		Breakfast: models.MealBlock{MenuID: fx.menu.ID, Qty: 40},
		Lunch:     models.MealBlock{MenuID: lunch.ID, Qty: 60},
		Dinner:    models.MealBlock{MenuID: "missing", Qty: 10},
	}
	result, err := k.plans.SavePlan(ctx, plan)
	require.NoError(t, err)
	require.Len(t, result.Requisitions, 1)

	req := result.Requisitions[0]
	assert.Equal(t, models.RequisitionOriginPlan, req.Origin)
	require.NotNil(t, req.PlanID)
	assert.Equal(t, plan.ID, *req.PlanID)
	assert.Equal(t, 100.0, req.PeopleCount)
	assert.Equal(t, 40.0, itemFor(t, req, fx.flour.ID).Quantity, "4 kg per 10 portions for 100 people")

	plan.Lunch.Qty = 0
	result, err = k.plans.SavePlan(ctx, plan)
	require.NoError(t, err)
	require.Len(t, result.Requisitions, 1)
	assert.NotEqual(t, req.ID, result.Requisitions[0].ID)
	assert.Equal(t, 16.0, itemFor(t, result.Requisitions[0], fx.flour.ID).Quantity)

	page, err := k.requisitions.ListRequisitions(ctx, repository.RequisitionFilter{PlanID: plan.ID}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total, "previous plan requisitions are discarded")

	removed, err := k.plans.DeletePlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	_, err = k.plans.GetPlan(ctx, plan.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSavePlan_KeepsCompletedRequisition(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	fx := seedMenu(t, k, models.MealBreakfast)

	plan := &models.Plan{
		Date:      "2024-05-01",
		Base:      "north",
		Breakfast: models.MealBlock{MenuID: fx.menu.ID, Qty: 40},
	}
	result, err := k.plans.SavePlan(ctx, plan)
	require.NoError(t, err)
	require.Len(t, result.Requisitions, 1)
	req := result.Requisitions[0]

	actual := make(map[string]float64, len(req.Items))
	for _, item := range req.Items {
		actual[item.ID] = item.Quantity
	}
	done, err := k.requisitions.Complete(ctx, req.ID, CompleteRequest{ActualQuantities: actual})
	require.NoError(t, err)
	require.Equal(t, CompletionCompleted, done.Outcome)
	posted := len(movementsFor(t, k, req.ID))
	require.NotZero(t, posted)

	plan.Breakfast.Qty = 80
	result, err = k.plans.SavePlan(ctx, plan)
	require.NoError(t, err)
	assert.Empty(t, result.Requisitions)

	page, err := k.requisitions.ListRequisitions(ctx, repository.RequisitionFilter{PlanID: plan.ID}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	kept := page.Data[0]
	assert.Equal(t, req.ID, kept.ID)
	assert.Equal(t, models.RequisitionStatusCompleted, kept.Status)
	assert.Equal(t, 16.0, itemFor(t, kept, fx.flour.ID).Quantity)
	assert.Len(t, movementsFor(t, k, req.ID), posted)
}

func TestGenerateFromPlan_UnknownPlan(t *testing.T) {
	k := newKitchen(t)
	_, err := k.demand.GenerateFromPlan(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}
