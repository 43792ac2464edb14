package services

import (
	"context"
	"io"
	"testing"

	"kitchenops/server/internal/events"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type kitchen struct {
	store        *repository.MemoryStore
	bus          *events.MemoryBus
	ingredients  *IngredientService
	stock        *StockService
	recipes      *RecipeCostService
	demand       *DemandService
	plans        *PlanService
	requisitions *RequisitionService
	production   *ProductionService
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newKitchen(t *testing.T) *kitchen {
	t.Helper()
	store := repository.NewMemoryStore()
	bus := events.NewMemoryBus()
	log := quietLogger()

	k := &kitchen{store: store, bus: bus}
	k.ingredients = NewIngredientService(store, bus, log)
	k.stock = NewStockService(store, log)
	k.recipes = NewRecipeCostService(store, bus, log, 2)
	k.recipes.Subscribe(bus)
	k.demand = NewDemandService(store, bus, log, 100)
	k.plans = NewPlanService(store, k.demand, log)
	k.requisitions = NewRequisitionService(store, NewLedgerPoster(log), bus, log)
	k.production = NewProductionService(store, bus, log)
	return k
}

func (k *kitchen) ingredient(t *testing.T, name, unit string, qty, price float64) *models.Ingredient {
	t.Helper()
	saved, err := k.ingredients.SaveIngredient(context.Background(), &models.Ingredient{
		Name:             name,
		Supplier:         "Metro",
		PurchaseUnit:     unit,
		PurchaseQuantity: qty,
		OriginalPrice:    price,
	})
	require.NoError(t, err)
	return saved
}

func (k *kitchen) recipe(t *testing.T, name string, portions float64, lines ...models.RecipeIngredient) *models.Recipe {
	t.Helper()
	saved, err := k.recipes.SaveRecipe(context.Background(), &models.Recipe{
		Name:        name,
		Portions:    portions,
		Ingredients: lines,
	}, Actor{Name: "chef"})
	require.NoError(t, err)
	return saved
}

func line(ingredientID string, qty float64, unit string) models.RecipeIngredient {
	return models.RecipeIngredient{IngredientID: ingredientID, Quantity: qty, Unit: unit}
}

func ptr[T any](v T) *T {
	return &v
}

// recorder captures every event of the given types
type recorder struct {
	events []events.Event
}

func record(bus events.Bus, types ...events.Type) *recorder {
	r := &recorder{}
	for _, t := range types {
		bus.Subscribe(t, func(ctx context.Context, event events.Event) error {
			r.events = append(r.events, event)
			return nil
		})
	}
	return r
}

func (r *recorder) ofType(t events.Type) []events.Event {
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
