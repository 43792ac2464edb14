package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"kitchenops/server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract checks behaviour every Store implementation must share.
// Subtests use their own bases so they can run against one database.
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("TransactionRollsBack", func(t *testing.T) {
		var created models.Ingredient
		err := store.Transaction(ctx, func(tx Store) error {
			created = models.Ingredient{Name: "Ghost pepper", OriginalUnit: "kg", PurchaseUnit: "kg"}
			if err := tx.CreateIngredient(ctx, &created); err != nil {
				return err
			}
			return errors.New("abort")
		})
		require.Error(t, err)
		require.NotEmpty(t, created.ID)

		_, err = store.GetIngredient(ctx, created.ID)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("TransactionCommits", func(t *testing.T) {
		flour := models.Ingredient{Name: "Flour " + uuid.NewString(), OriginalUnit: "kg", PurchaseUnit: "kg"}
		err := store.Transaction(ctx, func(tx Store) error {
			if err := tx.CreateIngredient(ctx, &flour); err != nil {
				return err
			}
			return tx.IncrementIngredientStock(ctx, flour.ID, 2.5)
		})
		require.NoError(t, err)

		got, err := store.GetIngredient(ctx, flour.ID)
		require.NoError(t, err)
		assert.InDelta(t, 2.5, got.Stock, 1e-9)

		byName, err := store.FindIngredientByName(ctx, flour.Name)
		require.NoError(t, err)
		assert.Equal(t, flour.ID, byName.ID)
	})

	t.Run("IncrementMissingIngredient", func(t *testing.T) {
		err := store.IncrementIngredientStock(ctx, uuid.NewString(), 1)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("MenuRequisitionKeyIsUnique", func(t *testing.T) {
		base := "contract-" + uuid.NewString()[:8]
		menuReq := func() *models.Requisition {
			return &models.Requisition{
				Date: "2024-05-01", Base: base, MealType: models.MealLunch,
				Origin: models.RequisitionOriginMenu,
				Items:  []models.RequisitionItem{{Item: "Flour", Unit: "kg", Quantity: 1}},
			}
		}
		require.NoError(t, store.CreateRequisition(ctx, menuReq()))
		assert.Error(t, store.CreateRequisition(ctx, menuReq()))

		manual := menuReq()
		manual.Origin = models.RequisitionOriginManual
		assert.NoError(t, store.CreateRequisition(ctx, manual), "manual requisitions share keys freely")

		found, err := store.FindMenuRequisition(ctx, "2024-05-01", base, models.MealLunch)
		require.NoError(t, err)
		assert.Equal(t, models.RequisitionOriginMenu, found.Origin)
		require.Len(t, found.Items, 1)
	})

	t.Run("ReplaceRequisitionSwapsItems", func(t *testing.T) {
		req := &models.Requisition{
			Date: "2024-05-02", Base: "contract-" + uuid.NewString()[:8], Origin: models.RequisitionOriginManual,
			Items: []models.RequisitionItem{{Item: "A", Quantity: 1}, {Item: "B", Quantity: 2}},
		}
		require.NoError(t, store.CreateRequisition(ctx, req))
		oldID := req.Items[0].ID

		req.Items = []models.RequisitionItem{{Item: "C", Quantity: 3}}
		require.NoError(t, store.ReplaceRequisition(ctx, req))

		got, err := store.GetRequisition(ctx, req.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
		assert.Equal(t, "C", got.Items[0].Item)
		assert.NotEqual(t, oldID, got.Items[0].ID)
	})

	t.Run("ApproveSkipsCompleted", func(t *testing.T) {
		base := "contract-" + uuid.NewString()[:8]
		open := &models.Requisition{Date: "2024-05-03", Base: base, Origin: models.RequisitionOriginManual,
			Items: []models.RequisitionItem{{Item: "A", Quantity: 1}, {Item: "B", Quantity: 1}}}
		done := &models.Requisition{Date: "2024-05-03", Base: base, Origin: models.RequisitionOriginManual,
			Status: models.RequisitionStatusCompleted,
			Items:  []models.RequisitionItem{{Item: "C", Quantity: 1, Status: models.RequisitionStatusCompleted}}}
		require.NoError(t, store.CreateRequisition(ctx, open))
		require.NoError(t, store.CreateRequisition(ctx, done))

		headers, items, err := store.ApproveRequisitions(ctx, RequisitionFilter{Base: base})
		require.NoError(t, err)
		assert.Equal(t, int64(1), headers)
		assert.Equal(t, int64(2), items)

		got, err := store.GetRequisition(ctx, open.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequisitionStatusApproved, got.Status)
		for _, item := range got.Items {
			assert.Equal(t, models.RequisitionStatusApproved, item.Status)
		}
		got, err = store.GetRequisition(ctx, done.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequisitionStatusCompleted, got.Status)
	})

	t.Run("ApproveDoesNotRevertConcurrentCompletion", func(t *testing.T) {
		base := "contract-" + uuid.NewString()[:8]
		req := &models.Requisition{Date: "2024-05-04", Base: base, Origin: models.RequisitionOriginManual,
			Status: models.RequisitionStatusApproved,
			Items:  []models.RequisitionItem{{Item: "A", Quantity: 1, Status: models.RequisitionStatusApproved}}}
		require.NoError(t, store.CreateRequisition(ctx, req))

		locked := make(chan struct{})
		release := make(chan struct{})
		completed := make(chan error, 1)
		go func() {
			completed <- store.Transaction(ctx, func(tx Store) error {
				held, err := tx.LockRequisition(ctx, req.ID)
				if err != nil {
					close(locked)
					return err
				}
				close(locked)
				<-release
				held.Status = models.RequisitionStatusCompleted
				for i := range held.Items {
					held.Items[i].Status = models.RequisitionStatusCompleted
				}
				return tx.SaveRequisition(ctx, held)
			})
		}()
		<-locked

		type approveResult struct {
			headers, items int64
			err            error
		}
		approved := make(chan approveResult, 1)
		go func() {
			headers, items, err := store.ApproveRequisitions(ctx, RequisitionFilter{Base: base})
			approved <- approveResult{headers, items, err}
		}()

		// give the bulk approve time to queue behind the completion
		time.Sleep(200 * time.Millisecond)
		close(release)
		require.NoError(t, <-completed)

		res := <-approved
		require.NoError(t, res.err)
		assert.Zero(t, res.headers)
		assert.Zero(t, res.items)

		got, err := store.GetRequisition(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequisitionStatusCompleted, got.Status)
		for _, item := range got.Items {
			assert.Equal(t, models.RequisitionStatusCompleted, item.Status)
		}
	})

	t.Run("MovementsBySource", func(t *testing.T) {
		ingredient := models.Ingredient{Name: "Salt " + uuid.NewString(), OriginalUnit: "kg", PurchaseUnit: "kg"}
		require.NoError(t, store.CreateIngredient(ctx, &ingredient))
		source := uuid.NewString()
		for i := 0; i < 2; i++ {
			require.NoError(t, store.CreateMovement(ctx, &models.StockMovement{
				IngredientID: ingredient.ID, IngredientName: ingredient.Name, Base: models.DefaultBase,
				Quantity: 1, Unit: "kg", Date: "2024-05-04",
				Direction: models.DirectionInbound, SourceType: models.SourceRequisition, SourceID: source,
			}))
		}
		count, err := store.CountMovementsBySource(ctx, models.SourceRequisition, source)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		count, err = store.CountMovementsBySource(ctx, models.SourceProductionOrder, source)
		require.NoError(t, err)
		assert.Zero(t, count)

		list, err := store.ListMovements(ctx, MovementFilter{IngredientID: ingredient.ID, Limit: 1})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("RecipePaging", func(t *testing.T) {
		ingredient := models.Ingredient{Name: "Butter " + uuid.NewString(), OriginalUnit: "kg", PurchaseUnit: "kg"}
		require.NoError(t, store.CreateIngredient(ctx, &ingredient))
		var want []string
		for i := 0; i < 5; i++ {
			recipe := &models.Recipe{Name: "Cake", Portions: 10, Ingredients: []models.RecipeIngredient{
				{IngredientID: ingredient.ID, Quantity: 1, Unit: "kg"},
			}}
			require.NoError(t, store.SaveRecipe(ctx, recipe))
			want = append(want, recipe.ID)
		}

		var got []string
		after := ""
		for {
			ids, err := store.FindRecipeIDsByIngredient(ctx, ingredient.ID, after, 2)
			require.NoError(t, err)
			got = append(got, ids...)
			if len(ids) < 2 {
				break
			}
			after = ids[len(ids)-1]
		}
		assert.ElementsMatch(t, want, got)
	})
}
