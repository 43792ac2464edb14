package repository

import (
	"context"
	"testing"

	"kitchenops/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_NestedTransactionJoinsOuter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.Transaction(ctx, func(tx Store) error {
		return tx.Transaction(ctx, func(inner Store) error {
			return inner.CreateIngredient(ctx, &models.Ingredient{Name: "Rice"})
		})
	})
	require.NoError(t, err)

	list, err := store.ListIngredients(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	req := &models.Requisition{Date: "2024-05-01", Items: []models.RequisitionItem{{Item: "Salt", Quantity: 1}}}
	require.NoError(t, store.CreateRequisition(ctx, req))

	got, err := store.GetRequisition(ctx, req.ID)
	require.NoError(t, err)
	got.Items[0].Quantity = 99
	got.Status = models.RequisitionStatusRejected

	again, err := store.GetRequisition(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Items[0].Quantity)
	assert.Equal(t, models.RequisitionStatusPending, again.Status)
}

func TestMemoryStore_ListRequisitionsNewestDateFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, date := range []string{"2024-05-01", "2024-05-03", "2024-05-02"} {
		require.NoError(t, store.CreateRequisition(ctx, &models.Requisition{Date: date}))
	}

	list, total, err := store.ListRequisitions(ctx, RequisitionFilter{FromDate: "2024-05-02"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-05-03", list[0].Date)
	assert.Equal(t, "2024-05-02", list[1].Date)
}

func TestMemoryStore_DeleteRequisitionsByPlan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	plan := "plan-1"
	require.NoError(t, store.CreateRequisition(ctx, &models.Requisition{Date: "2024-05-01", PlanID: &plan}))
	require.NoError(t, store.CreateRequisition(ctx, &models.Requisition{Date: "2024-05-01"}))

	removed, err := store.DeleteRequisitionsByPlan(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, total, err := store.ListRequisitions(ctx, RequisitionFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
