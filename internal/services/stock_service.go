package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kitchenops/server/internal/metrics"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// StockService records manual ledger entries outside the requisition flow.
// These entries are not idempotent: callers do not retry them automatically.
type StockService struct {
	store repository.Store
	log   *logrus.Logger
}

// NewStockService creates a new StockService
func NewStockService(store repository.Store, log *logrus.Logger) *StockService {
	return &StockService{store: store, log: log}
}

// MovementInput is a manual inventory entry
type MovementInput struct {
	IngredientID  string                   `json:"ingredient_id" validate:"required"`
	Base          string                   `json:"base"`
	Supplier      string                   `json:"supplier"`
	Quantity      float64                  `json:"quantity" validate:"ne=0"`
	Unit          string                   `json:"unit"`
	PurchasePrice float64                  `json:"purchase_price" validate:"gte=0"`
	Date          string                   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes         string                   `json:"notes"`
	Direction     models.MovementDirection `json:"direction" validate:"omitempty,oneof=inbound outbound adjustment"`
}

// StockAdjustment is the add/deduct correction applied straight to an ingredient
type StockAdjustment struct {
	Quantity float64 `json:"quantity" validate:"gt=0"`
	Type     string  `json:"type" validate:"required,oneof=add deduct"`
	Base     string  `json:"base"`
	Notes    string  `json:"notes"`
}

// StockGroup totals the ledger for one ingredient
type StockGroup struct {
	IngredientName string  `json:"ingredient_name"`
	TotalQuantity  float64 `json:"total_quantity"`
	Unit           string  `json:"unit"`
	TotalCost      float64 `json:"total_cost"`
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// RecordMovement writes one manual movement and applies its signed delta to stock.
// Outbound entries may take stock below zero. Only adjustments accept a negative quantity.
func (s *StockService) RecordMovement(ctx context.Context, input MovementInput) (*models.StockMovement, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	if input.Direction == "" {
		input.Direction = models.DirectionInbound
	}
	if input.Quantity < 0 && input.Direction != models.DirectionAdjustment {
		return nil, invalid("quantity must be positive for %s movements", input.Direction)
	}

	var movement models.StockMovement
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		ingredient, err := tx.GetIngredient(ctx, input.IngredientID)
		if err != nil {
			return err
		}
		qty, converted := ConvertQuantity(input.Quantity, input.Unit, ingredient.OriginalUnit)
		if !converted && input.Unit != "" && NormalizeUnit(input.Unit) != NormalizeUnit(ingredient.OriginalUnit) {
			s.log.WithFields(logrus.Fields{"ingredient_id": ingredient.ID, "unit": input.Unit}).
				Warn("⚠️ unit not convertible, quantity recorded as given")
		}

		source := models.SourceManual
		if input.Direction == models.DirectionAdjustment {
			source = models.SourceAdjustment
		}
		movement = models.StockMovement{
			IngredientID:   ingredient.ID,
			IngredientName: ingredient.Name,
			Base:           orDefault(input.Base, models.DefaultBase),
			Supplier:       input.Supplier,
			Quantity:       qty,
			Unit:           ingredient.OriginalUnit,
			PurchasePrice:  input.PurchasePrice,
			CostTotal:      decimal.NewFromFloat(input.Quantity).Mul(decimal.NewFromFloat(input.PurchasePrice)).Round(4).InexactFloat64(),
			Date:           orDefault(input.Date, today()),
			Notes:          input.Notes,
			Direction:      input.Direction,
			SourceType:     source,
		}
		if err := tx.CreateMovement(ctx, &movement); err != nil {
			return err
		}
		return tx.IncrementIngredientStock(ctx, ingredient.ID, movement.SignedQuantity())
	})
	if err != nil {
		return nil, fmt.Errorf("record movement: %w", err)
	}

	metrics.MovementsCreated.WithLabelValues(string(movement.Direction)).Inc()
	s.log.WithFields(logrus.Fields{
		"ingredient_id": movement.IngredientID,
		"direction":     movement.Direction,
		"quantity":      movement.Quantity,
	}).Info("✅ manual movement recorded")
	return &movement, nil
}

// AdjustStock adds to or deducts from an ingredient's stock. A deduction never takes
// stock below zero; the movement records the amount actually removed.
func (s *StockService) AdjustStock(ctx context.Context, ingredientID string, adj StockAdjustment) (*models.Ingredient, error) {
	if err := validateStruct(adj); err != nil {
		return nil, err
	}

	var updated *models.Ingredient
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		ingredient, err := tx.GetIngredient(ctx, ingredientID)
		if err != nil {
			return err
		}

		movement := models.StockMovement{
			IngredientID:   ingredient.ID,
			IngredientName: ingredient.Name,
			Base:           orDefault(adj.Base, models.DefaultBase),
			Unit:           ingredient.OriginalUnit,
			Date:           today(),
			Notes:          adj.Notes,
			SourceType:     models.SourceAdjustment,
			SourceID:       ingredient.ID,
		}
		if adj.Type == "add" {
			movement.Direction = models.DirectionAdjustment
			movement.Quantity = adj.Quantity
		} else {
			movement.Direction = models.DirectionOutbound
			movement.Quantity = adj.Quantity
			if ingredient.Stock < adj.Quantity {
				movement.Quantity = ingredient.Stock
			}
			if movement.Quantity < 0 {
				movement.Quantity = 0
			}
		}

		if movement.Quantity > 0 {
			if err := tx.CreateMovement(ctx, &movement); err != nil {
				return err
			}
			if err := tx.IncrementIngredientStock(ctx, ingredient.ID, movement.SignedQuantity()); err != nil {
				return err
			}
		}
		updated, err = tx.GetIngredient(ctx, ingredient.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}
	return updated, nil
}

// ListMovements returns ledger rows, newest first
func (s *StockService) ListMovements(ctx context.Context, filter repository.MovementFilter) ([]models.StockMovement, error) {
	return s.store.ListMovements(ctx, filter)
}

// GroupedStock totals the signed ledger per ingredient name, largest quantity first
func (s *StockService) GroupedStock(ctx context.Context) ([]StockGroup, error) {
	movements, err := s.store.ListMovements(ctx, repository.MovementFilter{})
	if err != nil {
		return nil, err
	}

	type acc struct {
		qty, cost decimal.Decimal
		unit      string
	}
	totals := make(map[string]*acc)
	var names []string
	for _, mv := range movements {
		a, ok := totals[mv.IngredientName]
		if !ok {
			a = &acc{unit: mv.Unit}
			totals[mv.IngredientName] = a
			names = append(names, mv.IngredientName)
		}
		a.qty = a.qty.Add(decimal.NewFromFloat(mv.SignedQuantity()))
		a.cost = a.cost.Add(decimal.NewFromFloat(mv.CostTotal))
	}

	groups := make([]StockGroup, 0, len(names))
	for _, name := range names {
		a := totals[name]
		groups = append(groups, StockGroup{
			IngredientName: name,
			TotalQuantity:  a.qty.Round(4).InexactFloat64(),
			Unit:           a.unit,
			TotalCost:      a.cost.Round(4).InexactFloat64(),
		})
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].TotalQuantity > groups[j].TotalQuantity })
	return groups, nil
}

// LowStock returns ingredients whose stock is below threshold
func (s *StockService) LowStock(ctx context.Context, threshold float64) ([]models.Ingredient, error) {
	ingredients, err := s.store.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]models.Ingredient, 0)
	for _, ingredient := range ingredients {
		if ingredient.Stock < threshold {
			low = append(low, ingredient)
		}
	}
	return low, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
