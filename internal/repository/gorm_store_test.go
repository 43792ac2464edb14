package repository

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"kitchenops/server/internal/database"
	"kitchenops/server/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	var (
		pgContainer *postgres.PostgresContainer
		err         error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Skipf("Skipping integration test due to panic (likely Docker issue): %v", r)
			}
		}()
		pgContainer, err = postgres.Run(ctx,
			"postgres:15-alpine",
			postgres.WithDatabase("kitchen"),
			postgres.WithUsername("kitchen"),
			postgres.WithPassword("kitchen"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
	}()
	if err != nil {
		t.Skipf("Skipping integration test, postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	db, err := database.ConnectPostgres(connStr, database.PostgresOptions{MaxOpenConns: 10}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.ClosePostgres(db) })

	require.NoError(t, models.AutoMigrate(db, log))
	return db
}

func TestGormStore_Integration(t *testing.T) {
	db := startPostgres(t)
	store := NewGormStore(db)

	runStoreContract(t, store)

	t.Run("LockRequisitionSerializesWriters", func(t *testing.T) {
		ctx := context.Background()
		req := &models.Requisition{Date: "2024-06-01", Base: "lock-test", Origin: models.RequisitionOriginManual,
			Items: []models.RequisitionItem{{Item: "Flour", Quantity: 1}}}
		require.NoError(t, store.CreateRequisition(ctx, req))

		// each writer bumps PeopleCount under the row lock; lost updates would show as a lower total
		const writers = 8
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.Transaction(ctx, func(tx Store) error {
					locked, err := tx.LockRequisition(ctx, req.ID)
					if err != nil {
						return err
					}
					locked.PeopleCount++
					return tx.SaveRequisition(ctx, locked)
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := store.GetRequisition(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(writers), got.PeopleCount)
	})

	t.Run("RequisitionStatusCounts", func(t *testing.T) {
		ctx := context.Background()
		counts, err := store.CountRequisitionsByStatus(ctx)
		require.NoError(t, err)
		assert.NotZero(t, counts[models.RequisitionStatusPending]+counts[models.RequisitionStatusApproved])

		_, err = store.ListRequisitionSuppliers(ctx)
		require.NoError(t, err)
	})
}
