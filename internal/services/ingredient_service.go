package services

import (
	"context"
	"fmt"
	"time"

	"kitchenops/server/internal/events"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// IngredientService owns ingredient master data and keeps pricePerKg consistent with the purchase pack
type IngredientService struct {
	store repository.Store
	bus   events.Bus
	log   *logrus.Logger
	now   func() time.Time
}

// NewIngredientService creates a new IngredientService
func NewIngredientService(store repository.Store, bus events.Bus, log *logrus.Logger) *IngredientService {
	return &IngredientService{
		store: store,
		bus:   bus,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ComputePricePerKg derives the price of one kilogram from a purchase pack.
// ok is false when the pack cannot be priced (no quantity or an unknown unit).
func ComputePricePerKg(purchaseUnit string, purchaseQuantity, originalPrice float64) (float64, bool) {
	if purchaseQuantity <= 0 || originalPrice < 0 {
		return 0, false
	}
	if _, known := unitTable[NormalizeUnit(purchaseUnit)]; !known {
		return 0, false
	}
	kg := ToKilograms(purchaseQuantity, purchaseUnit)
	if kg <= 0 {
		return 0, false
	}
	return decimal.NewFromFloat(originalPrice).
		Div(decimal.NewFromFloat(kg)).
		Round(6).
		InexactFloat64(), true
}

func purchasePackChanged(before, after *models.Ingredient) bool {
	return before.PurchaseUnit != after.PurchaseUnit ||
		before.PurchaseQuantity != after.PurchaseQuantity ||
		before.OriginalPrice != after.OriginalPrice
}

// GetIngredient returns an ingredient with its price history
func (s *IngredientService) GetIngredient(ctx context.Context, id string) (*models.Ingredient, error) {
	ingredient, err := s.store.GetIngredient(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListPriceHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	ingredient.PriceHistory = history
	return ingredient, nil
}

// ListIngredients returns every ingredient ordered by name
func (s *IngredientService) ListIngredients(ctx context.Context) ([]models.Ingredient, error) {
	return s.store.ListIngredients(ctx)
}

// SaveIngredient creates or updates an ingredient. A change to purchaseUnit, purchaseQuantity
// or originalPrice recomputes pricePerKg and appends a history entry; on update it also
// publishes IngredientPriceChanged after the write is committed. Stock is owned by the ledger
// and is only taken from input on create.
func (s *IngredientService) SaveIngredient(ctx context.Context, input *models.Ingredient) (*models.Ingredient, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	var (
		saved        models.Ingredient
		oldPrice     float64
		priceChanged bool
		isUpdate     = input.ID != ""
	)

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		saved = *input
		if isUpdate {
			existing, err := tx.GetIngredient(ctx, input.ID)
			if err != nil {
				return err
			}
			oldPrice = existing.PricePerKg
			priceChanged = purchasePackChanged(existing, input)
			saved.Stock = existing.Stock
			saved.CreatedAt = existing.CreatedAt
			if !priceChanged {
				saved.PricePerKg = existing.PricePerKg
			}
		} else {
			priceChanged = true
		}
		if saved.OriginalUnit == "" {
			saved.OriginalUnit = PurchaseBaseUnit(saved.PurchaseUnit)
		}

		if priceChanged {
			if ppk, ok := ComputePricePerKg(saved.PurchaseUnit, saved.PurchaseQuantity, saved.OriginalPrice); ok {
				saved.PricePerKg = ppk
			}
		}
		saved.PriceHistory = nil
		if err := tx.SaveIngredient(ctx, &saved); err != nil {
			return err
		}
		if priceChanged {
			return tx.AppendPriceHistory(ctx, &models.PriceHistoryEntry{
				IngredientID:     saved.ID,
				PricePerKg:       saved.PricePerKg,
				OriginalPrice:    saved.OriginalPrice,
				PurchaseUnit:     saved.PurchaseUnit,
				PurchaseQuantity: saved.PurchaseQuantity,
				RecordedAt:       s.now(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save ingredient: %w", err)
	}

	if isUpdate && priceChanged {
		s.log.WithFields(logrus.Fields{
			"ingredient_id": saved.ID,
			"old_price":     oldPrice,
			"new_price":     saved.PricePerKg,
		}).Info("📢 ingredient price changed")
		// the cascade is best effort; its failures never undo the price change
		if err := s.bus.Publish(ctx, events.New(events.IngredientPriceChanged, events.IngredientPriceChangedPayload{
			IngredientID:  saved.ID,
			Name:          saved.Name,
			OldPricePerKg: oldPrice,
			NewPricePerKg: saved.PricePerKg,
		})); err != nil {
			s.log.WithError(err).WithField("ingredient_id", saved.ID).Warn("⚠️ price change subscribers reported errors")
		}
	}
	return &saved, nil
}

// PurchaseBaseUnit is the consumption unit assumed for a purchase pack unit
func PurchaseBaseUnit(purchaseUnit string) string {
	switch KindOf(purchaseUnit) {
	case KindVolume:
		return "l"
	default:
		return "kg"
	}
}

// PriceHistory returns the price snapshots of an ingredient, oldest first
func (s *IngredientService) PriceHistory(ctx context.Context, id string) ([]models.PriceHistoryEntry, error) {
	if _, err := s.store.GetIngredient(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListPriceHistory(ctx, id)
}
