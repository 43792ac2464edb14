package services

import (
	"context"
	"fmt"

	"kitchenops/server/internal/events"
	"kitchenops/server/internal/metrics"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ProductionInput records Quantity batches of a recipe cooked at a base
type ProductionInput struct {
	Date     string  `json:"date" validate:"required,datetime=2006-01-02"`
	RecipeID string  `json:"recipe_id" validate:"required"`
	Quantity float64 `json:"quantity" validate:"gt=0"`
	Base     string  `json:"base" validate:"required"`
	Handler  string  `json:"handler" validate:"required"`
}

// ProductionResult is the stored batch and the stock it consumed
type ProductionResult struct {
	Production *models.Production     `json:"production"`
	Movements  []models.StockMovement `json:"movements"`
}

// ProductionService books cooked batches against stock
type ProductionService struct {
	store repository.Store
	bus   events.Bus
	log   *logrus.Logger
}

// NewProductionService creates a new ProductionService
func NewProductionService(store repository.Store, bus events.Bus, log *logrus.Logger) *ProductionService {
	return &ProductionService{store: store, bus: bus, log: log}
}

// RecordProduction deducts every recipe line times Quantity from stock as outbound movements
// and stores the batch with its ingredient cost. Lines whose ingredient no longer exists are
// skipped. Stock may go below zero.
func (s *ProductionService) RecordProduction(ctx context.Context, input ProductionInput) (*ProductionResult, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	result := &ProductionResult{Movements: []models.StockMovement{}}
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		recipe, err := tx.GetRecipe(ctx, input.RecipeID)
		if err != nil {
			return err
		}
		production := &models.Production{
			ID:       uuid.New().String(),
			Date:     input.Date,
			RecipeID: recipe.ID,
			Quantity: input.Quantity,
			Base:     input.Base,
			Handler:  input.Handler,
		}
		ids := make([]string, 0, len(recipe.Ingredients))
		for _, line := range recipe.Ingredients {
			ids = append(ids, line.IngredientID)
		}
		found, err := tx.FindIngredientsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[string]models.Ingredient, len(found))
		for _, ingredient := range found {
			byID[ingredient.ID] = ingredient
		}

		batches := decimal.NewFromFloat(input.Quantity)
		total := decimal.Zero
		for _, line := range recipe.Ingredients {
			ingredient, ok := byID[line.IngredientID]
			if !ok {
				s.log.WithFields(logrus.Fields{"recipe_id": recipe.ID, "ingredient_id": line.IngredientID}).
					Warn("⚠️ production line references unknown ingredient, skipped")
				continue
			}
			unit := orDefault(line.Unit, ingredient.OriginalUnit)
			used := decimal.NewFromFloat(line.Quantity).Mul(batches).InexactFloat64()
			if used <= 0 {
				continue
			}

			cost := decimal.NewFromFloat(ingredient.PricePerKg).Mul(decimal.NewFromFloat(ToKilograms(used, unit))).Round(4)
			total = total.Add(cost)

			qty, _ := ConvertQuantity(used, unit, ingredient.OriginalUnit)
			movement := models.StockMovement{
				IngredientID:   ingredient.ID,
				IngredientName: ingredient.Name,
				Base:           input.Base,
				Quantity:       qty,
				Unit:           orDefault(ingredient.OriginalUnit, unit),
				PurchasePrice:  ingredient.PricePerKg,
				CostTotal:      cost.InexactFloat64(),
				Date:           input.Date,
				Notes:          "Production of " + recipe.Name,
				Direction:      models.DirectionOutbound,
				SourceType:     models.SourceProductionOrder,
				SourceID:       production.ID,
			}
			if err := tx.CreateMovement(ctx, &movement); err != nil {
				return err
			}
			if err := tx.IncrementIngredientStock(ctx, ingredient.ID, movement.SignedQuantity()); err != nil {
				return err
			}
			result.Movements = append(result.Movements, movement)
		}

		production.Cost = total.Round(4).InexactFloat64()
		if err := tx.CreateProduction(ctx, production); err != nil {
			return err
		}
		result.Production = production
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record production: %w", err)
	}

	metrics.MovementsCreated.WithLabelValues(string(models.DirectionOutbound)).Add(float64(len(result.Movements)))
	s.log.WithFields(logrus.Fields{
		"production_id": result.Production.ID,
		"recipe_id":     input.RecipeID,
		"movements":     len(result.Movements),
		"cost":          result.Production.Cost,
	}).Info("🍳 production recorded")
	if err := s.bus.Publish(ctx, events.New(events.ProductionRecorded, events.ProductionRecordedPayload{
		ProductionID: result.Production.ID,
		RecipeID:     input.RecipeID,
		Quantity:     input.Quantity,
		Cost:         result.Production.Cost,
	})); err != nil {
		s.log.WithError(err).Warn("⚠️ production subscribers reported errors")
	}
	return result, nil
}

// ListProductions returns production batches matching filter
func (s *ProductionService) ListProductions(ctx context.Context, filter repository.ProductionFilter) ([]models.Production, error) {
	return s.store.ListProductions(ctx, filter)
}
