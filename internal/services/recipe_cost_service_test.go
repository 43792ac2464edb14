package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"kitchenops/server/internal/events"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCosts(t *testing.T) {
	recipe := &models.Recipe{
		Portions: 10,
		Ingredients: []models.RecipeIngredient{
			{IngredientID: "flour", Quantity: 4, Unit: "kg"},
			{IngredientID: "butter", Quantity: 200, Unit: "g"},
			{IngredientID: "ghost", Quantity: 1, Unit: "kg"},
		},
	}
	CalculateCosts(recipe, map[string]models.Ingredient{
		"flour":  {ID: "flour", PricePerKg: 2, OriginalUnit: "kg"},
		"butter": {ID: "butter", PricePerKg: 10, OriginalUnit: "kg"},
	})

	assert.Equal(t, 8.0, recipe.Ingredients[0].LineCost)
	assert.Equal(t, 2.0, recipe.Ingredients[1].LineCost)
	assert.Equal(t, 0.0, recipe.Ingredients[2].LineCost)
	assert.Equal(t, 10.0, recipe.TotalCost)
	assert.Equal(t, 1.0, recipe.CostPerPortion)
}

func TestCalculateCosts_NoPortions(t *testing.T) {
	recipe := &models.Recipe{Ingredients: []models.RecipeIngredient{{IngredientID: "a", Quantity: 1}}}
	CalculateCosts(recipe, map[string]models.Ingredient{"a": {ID: "a", PricePerKg: 5, OriginalUnit: "kg"}})
	assert.Equal(t, 5.0, recipe.TotalCost)
	assert.Equal(t, 0.0, recipe.CostPerPortion)
}

func TestScaleLines(t *testing.T) {
	recipe := &models.Recipe{
		Portions: 10,
		Ingredients: []models.RecipeIngredient{
			{IngredientID: "flour", Quantity: 2, Unit: "kg"},
		},
	}
	ScaleLines(recipe, 25)
	assert.Equal(t, 5.0, recipe.Ingredients[0].Quantity)
	assert.Equal(t, 2.0, recipe.Ingredients[0].BaseQuantity)
	assert.Equal(t, 10.0, recipe.BasePortions)
	assert.Equal(t, 25.0, recipe.Portions)

	// scaling again starts from the base quantity, not the last result
	ScaleLines(recipe, 5)
	assert.Equal(t, 1.0, recipe.Ingredients[0].Quantity)
}

func TestScaleLines_AnchorFallsBackToOne(t *testing.T) {
	recipe := &models.Recipe{Ingredients: []models.RecipeIngredient{{IngredientID: "a", Quantity: 0.5}}}
	ScaleLines(recipe, 4)
	assert.Equal(t, 1.0, recipe.BasePortions)
	assert.Equal(t, 2.0, recipe.Ingredients[0].Quantity)
}

func TestSaveRecipe_Costs(t *testing.T) {
	k := newKitchen(t)
	flour := k.ingredient(t, "Flour", "kg", 10, 20)

	bread := k.recipe(t, "Bread", 10, line(flour.ID, 4, "kg"))

	assert.Equal(t, 8.0, bread.TotalCost)
	assert.Equal(t, 0.8, bread.CostPerPortion)
	assert.Equal(t, 10.0, bread.BasePortions)
}

func TestPriceChange_CascadesToRecipes(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	updates := record(k.bus, events.RecipeCostUpdated)

	flour := k.ingredient(t, "Flour", "kg", 10, 20)
	salt := k.ingredient(t, "Salt", "kg", 1, 1)
	var ids []string
	for i := 0; i < 5; i++ {
		r := k.recipe(t, fmt.Sprintf("Bread %d", i), 10, line(flour.ID, 4, "kg"))
		ids = append(ids, r.ID)
	}
	other := k.recipe(t, "Brine", 1, line(salt.ID, 1, "kg"))

	update := *flour
	update.OriginalPrice = 30
	_, err := k.ingredients.SaveIngredient(ctx, &update)
	require.NoError(t, err)

	for _, id := range ids {
		r, err := k.recipes.GetRecipe(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 12.0, r.TotalCost)
		assert.Equal(t, 1.2, r.CostPerPortion)
	}
	untouched, err := k.recipes.GetRecipe(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, untouched.TotalCost)

	require.Len(t, updates.events, 1)
	payload := updates.events[0].Payload.(events.RecipeCostUpdatedPayload)
	assert.ElementsMatch(t, ids, payload.RecipeIDs)
	assert.Zero(t, payload.Failed)
}

// failingRecipeStore refuses to save one recipe, inside transactions too
type failingRecipeStore struct {
	repository.Store
	failID string
}

func (s *failingRecipeStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(&failingRecipeStore{Store: tx, failID: s.failID})
	})
}

func (s *failingRecipeStore) SaveRecipe(ctx context.Context, recipe *models.Recipe) error {
	if s.failID != "" && recipe.ID == s.failID {
		return errors.New("write refused")
	}
	return s.Store.SaveRecipe(ctx, recipe)
}

func TestPriceChange_FailingRecipeIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	bus := events.NewMemoryBus()
	log := quietLogger()
	flaky := &failingRecipeStore{Store: store}
	ingredients := NewIngredientService(store, bus, log)
	recipes := NewRecipeCostService(flaky, bus, log, 2)
	recipes.Subscribe(bus)
	updates := record(bus, events.RecipeCostUpdated)

	flour, err := ingredients.SaveIngredient(ctx, &models.Ingredient{
		Name: "Flour", Supplier: "Metro", PurchaseUnit: "kg", PurchaseQuantity: 10, OriginalPrice: 20,
	})
	require.NoError(t, err)
	var ids []string
	for i := 0; i < 3; i++ {
		r, err := recipes.SaveRecipe(ctx, &models.Recipe{
			Name: fmt.Sprintf("Bread %d", i), Portions: 10, Ingredients: []models.RecipeIngredient{line(flour.ID, 4, "kg")},
		}, Actor{Name: "chef"})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	flaky.failID = ids[1]

	update := *flour
	update.OriginalPrice = 30
	saved, err := ingredients.SaveIngredient(ctx, &update)
	require.NoError(t, err, "a failing recipe never fails the price change")
	assert.Equal(t, 3.0, saved.PricePerKg)

	stored, err := ingredients.GetIngredient(ctx, flour.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, stored.PricePerKg)
	history, err := ingredients.PriceHistory(ctx, flour.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	for _, id := range []string{ids[0], ids[2]} {
		r, err := recipes.GetRecipe(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 12.0, r.TotalCost)
	}
	stale, err := recipes.GetRecipe(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 8.0, stale.TotalCost)

	require.Len(t, updates.events, 1)
	payload := updates.events[0].Payload.(events.RecipeCostUpdatedPayload)
	assert.ElementsMatch(t, []string{ids[0], ids[2]}, payload.RecipeIDs)
	assert.Equal(t, 1, payload.Failed)

	result, err := recipes.RecomputeRecipeCosts(ctx, flour.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1]}, result.Failed)
	assert.ElementsMatch(t, []string{ids[0], ids[2]}, result.Updated)
}

func TestRecomputeRecipeCosts_UpdatesLockedRecipes(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	flour := k.ingredient(t, "Flour", "kg", 10, 20)
	bread := k.recipe(t, "Bread", 10, line(flour.ID, 4, "kg"))
	_, err := k.recipes.SetRecipeLock(ctx, bread.ID, true, "signed off", Actor{Name: "head chef", Privileged: true})
	require.NoError(t, err)

	update := *flour
	update.OriginalPrice = 40
	_, err = k.ingredients.SaveIngredient(ctx, &update)
	require.NoError(t, err)

	got, err := k.recipes.GetRecipe(ctx, bread.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLocked)
	assert.Equal(t, 16.0, got.TotalCost)
}

func TestRecomputeRecipeCosts_NoRecipes(t *testing.T) {
	k := newKitchen(t)
	result, err := k.recipes.RecomputeRecipeCosts(context.Background(), "unused")
	require.NoError(t, err)
	assert.Empty(t, result.Updated)
	assert.Empty(t, result.Failed)
}

func TestScaleRecipe(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	flour := k.ingredient(t, "Flour", "kg", 10, 20)
	bread := k.recipe(t, "Bread", 10, line(flour.ID, 2, "kg"))

	preview, err := k.recipes.ScaleRecipe(ctx, bread.ID, 25, false, Actor{})
	require.NoError(t, err)
	assert.Equal(t, 5.0, preview.Ingredients[0].Quantity)
	assert.Equal(t, 10.0, preview.TotalCost)
	assert.Equal(t, 0.4, preview.CostPerPortion)

	stored, err := k.recipes.GetRecipe(ctx, bread.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, stored.Ingredients[0].Quantity, "preview does not persist")

	_, err = k.recipes.ScaleRecipe(ctx, bread.ID, 25, true, Actor{})
	require.NoError(t, err)
	stored, err = k.recipes.GetRecipe(ctx, bread.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, stored.Ingredients[0].Quantity)
	assert.Equal(t, 2.0, stored.Ingredients[0].BaseQuantity)

	_, err = k.recipes.ScaleRecipe(ctx, bread.ID, 0, false, Actor{})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestRecipeLockPolicy(t *testing.T) {
	k := newKitchen(t)
	ctx := context.Background()
	flour := k.ingredient(t, "Flour", "kg", 10, 20)
	bread := k.recipe(t, "Bread", 10, line(flour.ID, 4, "kg"))

	cook := Actor{Name: "cook"}
	chef := Actor{Name: "chef", Privileged: true}

	_, err := k.recipes.SetRecipeLock(ctx, bread.ID, true, "", cook)
	assert.True(t, errors.Is(err, ErrRecipeLocked), "only privileged callers change the lock")

	locked, err := k.recipes.SetRecipeLock(ctx, bread.ID, true, "final", chef)
	require.NoError(t, err)
	assert.Equal(t, "chef", locked.LockedBy)
	require.NotNil(t, locked.LockedAt)

	edit := *locked
	edit.Name = "Rye bread"
	_, err = k.recipes.SaveRecipe(ctx, &edit, cook)
	assert.True(t, errors.Is(err, ErrRecipeLocked))

	_, err = k.recipes.ScaleRecipe(ctx, bread.ID, 20, true, cook)
	assert.True(t, errors.Is(err, ErrRecipeLocked))
	_, err = k.recipes.ScaleRecipe(ctx, bread.ID, 20, false, cook)
	assert.NoError(t, err, "previews are allowed on locked recipes")

	edit.IsLocked = false
	saved, err := k.recipes.SaveRecipe(ctx, &edit, chef)
	require.NoError(t, err)
	assert.Equal(t, "Rye bread", saved.Name)
	assert.True(t, saved.IsLocked, "lock fields only change through SetRecipeLock")

	unlocked, err := k.recipes.SetRecipeLock(ctx, bread.ID, false, "", chef)
	require.NoError(t, err)
	assert.False(t, unlocked.IsLocked)
	assert.Nil(t, unlocked.LockedAt)
	assert.Empty(t, unlocked.LockedBy)
}

func TestSaveRecipe_Validation(t *testing.T) {
	k := newKitchen(t)
	_, err := k.recipes.SaveRecipe(context.Background(), &models.Recipe{
		Name:        "Soup",
		Ingredients: []models.RecipeIngredient{{Quantity: 1}},
	}, Actor{})
	assert.True(t, errors.Is(err, ErrValidation))
}
