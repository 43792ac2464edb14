package services

import (
	"context"
	"fmt"
	"time"

	"kitchenops/server/internal/config"
	"kitchenops/server/internal/events"
	"kitchenops/server/internal/metrics"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"
	"kitchenops/server/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// CascadeFailuresKey is the Redis list holding recent cascade failures
	CascadeFailuresKey = "audit:recipe_cascade_failures"
	// RecipeCostChannel receives a notification after every cascade
	RecipeCostChannel = "recipes:cost_updated"

	cascadeFailuresMaxLen = 1000
)

// Actor identifies the caller of a recipe edit. Authentication happens upstream.
type Actor struct {
	Name       string `json:"name"`
	Privileged bool   `json:"privileged"`
}

// CascadeFailure is written to the audit sink when one recipe fails to recompute
type CascadeFailure struct {
	IngredientID string    `json:"ingredient_id"`
	RecipeID     string    `json:"recipe_id,omitempty"`
	Error        string    `json:"error"`
	At           time.Time `json:"at"`
}

// CascadeResult reports what a price cascade touched
type CascadeResult struct {
	IngredientID string   `json:"ingredient_id"`
	Updated      []string `json:"updated"`
	Failed       []string `json:"failed"`
}

// RecipeCostService derives recipe costs from ingredient prices and owns recipe scaling and locking
type RecipeCostService struct {
	store     repository.Store
	bus       events.Bus
	log       *logrus.Logger
	batchSize int
	redisUtil *utils.RedisClient
}

// NewRecipeCostService creates a new RecipeCostService; batchSize bounds each cascade page
func NewRecipeCostService(store repository.Store, bus events.Bus, log *logrus.Logger, batchSize int) *RecipeCostService {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &RecipeCostService{store: store, bus: bus, log: log, batchSize: batchSize}
}

// SetRedisUtil enables the Redis audit list and cost notifications
func (s *RecipeCostService) SetRedisUtil(redisUtil *utils.RedisClient) {
	s.redisUtil = redisUtil
}

// Subscribe attaches the price cascade to the bus
func (s *RecipeCostService) Subscribe(bus events.Bus) {
	bus.Subscribe(events.IngredientPriceChanged, s.handlePriceChanged)
}

func (s *RecipeCostService) handlePriceChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IngredientPriceChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if _, err := s.RecomputeRecipeCosts(ctx, payload.IngredientID); err != nil {
		s.recordFailure(ctx, CascadeFailure{IngredientID: payload.IngredientID, Error: err.Error(), At: time.Now().UTC()})
	}
	return nil
}

// CalculateCosts fills lineCost, totalCost and costPerPortion from current ingredient prices.
// Lines whose ingredient is missing cost nothing.
func CalculateCosts(recipe *models.Recipe, ingredients map[string]models.Ingredient) {
	total := decimal.Zero
	for i := range recipe.Ingredients {
		line := &recipe.Ingredients[i]
		ingredient, ok := ingredients[line.IngredientID]
		if !ok {
			line.LineCost = 0
			continue
		}
		unit := line.Unit
		if unit == "" {
			unit = ingredient.OriginalUnit
		}
		cost := decimal.NewFromFloat(ingredient.PricePerKg).
			Mul(decimal.NewFromFloat(ToKilograms(line.Quantity, unit))).
			Round(4)
		line.LineCost = cost.InexactFloat64()
		total = total.Add(cost)
	}
	recipe.TotalCost = total.Round(4).InexactFloat64()
	if recipe.Portions > 0 {
		recipe.CostPerPortion = total.Div(decimal.NewFromFloat(recipe.Portions)).Round(4).InexactFloat64()
	} else {
		recipe.CostPerPortion = 0
	}
}

// ScaleLines sets every line's quantity to baseQuantity * targetPortions / basePortions and
// sets portions to the target. Missing base quantities and base portions are back-filled first.
func ScaleLines(recipe *models.Recipe, targetPortions float64) {
	backfillScalingAnchors(recipe)
	factor := decimal.NewFromFloat(targetPortions).Div(decimal.NewFromFloat(recipe.BasePortions))
	for i := range recipe.Ingredients {
		line := &recipe.Ingredients[i]
		line.Quantity = decimal.NewFromFloat(line.BaseQuantity).Mul(factor).Round(4).InexactFloat64()
	}
	recipe.Portions = targetPortions
}

func backfillScalingAnchors(recipe *models.Recipe) {
	if recipe.BasePortions <= 0 {
		recipe.BasePortions = recipe.ScalingAnchor()
	}
	for i := range recipe.Ingredients {
		if recipe.Ingredients[i].BaseQuantity == 0 {
			recipe.Ingredients[i].BaseQuantity = recipe.Ingredients[i].Quantity
		}
	}
}

func (s *RecipeCostService) ingredientsFor(ctx context.Context, store repository.Store, recipe *models.Recipe) (map[string]models.Ingredient, error) {
	ids := make([]string, 0, len(recipe.Ingredients))
	for _, line := range recipe.Ingredients {
		ids = append(ids, line.IngredientID)
	}
	found, err := store.FindIngredientsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Ingredient, len(found))
	for _, ingredient := range found {
		byID[ingredient.ID] = ingredient
	}
	return byID, nil
}

// GetRecipe returns a recipe with its ordered lines
func (s *RecipeCostService) GetRecipe(ctx context.Context, id string) (*models.Recipe, error) {
	return s.store.GetRecipe(ctx, id)
}

// Recompute refreshes one recipe's costs in its own transaction
func (s *RecipeCostService) Recompute(ctx context.Context, recipeID string) (*models.Recipe, error) {
	var recipe *models.Recipe
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		if recipe, err = tx.GetRecipe(ctx, recipeID); err != nil {
			return err
		}
		ingredients, err := s.ingredientsFor(ctx, tx, recipe)
		if err != nil {
			return err
		}
		CalculateCosts(recipe, ingredients)
		return tx.SaveRecipe(ctx, recipe)
	})
	if err != nil {
		return nil, fmt.Errorf("recompute recipe %s: %w", recipeID, err)
	}
	return recipe, nil
}

// RecomputeRecipeCosts recomputes every recipe using an ingredient, one page at a time.
// A recipe that fails is recorded and skipped; only a failure to page through the
// recipes aborts the cascade.
func (s *RecipeCostService) RecomputeRecipeCosts(ctx context.Context, ingredientID string) (*CascadeResult, error) {
	result := &CascadeResult{IngredientID: ingredientID, Updated: []string{}, Failed: []string{}}
	after := ""
	for {
		ids, err := s.store.FindRecipeIDsByIngredient(ctx, ingredientID, after, s.batchSize)
		if err != nil {
			return result, fmt.Errorf("page recipes for ingredient %s: %w", ingredientID, err)
		}
		for _, id := range ids {
			if _, err := s.Recompute(ctx, id); err != nil {
				metrics.RecipeRecomputes.WithLabelValues("failed").Inc()
				result.Failed = append(result.Failed, id)
				s.recordFailure(ctx, CascadeFailure{IngredientID: ingredientID, RecipeID: id, Error: err.Error(), At: time.Now().UTC()})
				continue
			}
			metrics.RecipeRecomputes.WithLabelValues("ok").Inc()
			result.Updated = append(result.Updated, id)
		}
		if len(ids) < s.batchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	s.log.WithFields(logrus.Fields{
		"ingredient_id": ingredientID,
		"updated":       len(result.Updated),
		"failed":        len(result.Failed),
	}).Info("✅ recipe cost cascade finished")

	if s.redisUtil != nil {
		if err := s.redisUtil.Publish(ctx, RecipeCostChannel, result); err != nil {
			s.log.WithError(err).Warn("⚠️ could not publish recipe cost notification")
		}
	}
	if err := s.bus.Publish(ctx, events.New(events.RecipeCostUpdated, events.RecipeCostUpdatedPayload{
		IngredientID: ingredientID,
		RecipeIDs:    result.Updated,
		Failed:       len(result.Failed),
	})); err != nil {
		s.log.WithError(err).Warn("⚠️ recipe cost subscribers reported errors")
	}
	return result, nil
}

// recordFailure is fire-and-forget: it logs and, when Redis is configured, appends to the audit list
func (s *RecipeCostService) recordFailure(ctx context.Context, failure CascadeFailure) {
	config.LogError(s.log, "services", "RecomputeRecipeCosts", "recipe cost cascade", failure, fmt.Errorf("%s", failure.Error))
	if s.redisUtil == nil {
		return
	}
	if err := s.redisUtil.LPush(ctx, CascadeFailuresKey, failure, cascadeFailuresMaxLen); err != nil {
		s.log.WithError(err).Warn("⚠️ could not write cascade failure to Redis")
	}
}

// SaveRecipe creates or updates a recipe and recomputes its costs. Locked recipes accept
// edits only from privileged actors; lock fields are changed through SetRecipeLock.
func (s *RecipeCostService) SaveRecipe(ctx context.Context, input *models.Recipe, actor Actor) (*models.Recipe, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	recipe := *input
	recipe.Ingredients = append([]models.RecipeIngredient(nil), input.Ingredients...)

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if recipe.ID != "" {
			existing, err := tx.GetRecipe(ctx, recipe.ID)
			if err != nil {
				return err
			}
			if existing.IsLocked && !actor.Privileged {
				return fmt.Errorf("%w: %s", ErrRecipeLocked, existing.Name)
			}
			recipe.IsLocked, recipe.LockedAt = existing.IsLocked, existing.LockedAt
			recipe.LockedBy, recipe.LockNote = existing.LockedBy, existing.LockNote
			recipe.CreatedAt = existing.CreatedAt
		} else {
			recipe.IsLocked, recipe.LockedAt, recipe.LockedBy, recipe.LockNote = false, nil, "", ""
		}
		backfillScalingAnchors(&recipe)

		ingredients, err := s.ingredientsFor(ctx, tx, &recipe)
		if err != nil {
			return err
		}
		CalculateCosts(&recipe, ingredients)
		return tx.SaveRecipe(ctx, &recipe)
	})
	if err != nil {
		return nil, fmt.Errorf("save recipe: %w", err)
	}
	return &recipe, nil
}

// ScaleRecipe rescales a recipe to targetPortions. Without persist the scaled recipe is
// only returned; persisting counts as an edit and respects the lock.
func (s *RecipeCostService) ScaleRecipe(ctx context.Context, id string, targetPortions float64, persist bool, actor Actor) (*models.Recipe, error) {
	if targetPortions <= 0 {
		return nil, invalid("target portions must be positive")
	}

	var recipe *models.Recipe
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		if recipe, err = tx.GetRecipe(ctx, id); err != nil {
			return err
		}
		if persist && recipe.IsLocked && !actor.Privileged {
			return fmt.Errorf("%w: %s", ErrRecipeLocked, recipe.Name)
		}
		ScaleLines(recipe, targetPortions)

		ingredients, err := s.ingredientsFor(ctx, tx, recipe)
		if err != nil {
			return err
		}
		CalculateCosts(recipe, ingredients)
		if !persist {
			return nil
		}
		return tx.SaveRecipe(ctx, recipe)
	})
	if err != nil {
		return nil, fmt.Errorf("scale recipe: %w", err)
	}
	return recipe, nil
}

// SetRecipeLock locks or unlocks a recipe; only privileged actors may do this
func (s *RecipeCostService) SetRecipeLock(ctx context.Context, id string, locked bool, note string, actor Actor) (*models.Recipe, error) {
	if !actor.Privileged {
		return nil, fmt.Errorf("%w: changing the lock requires a privileged caller", ErrRecipeLocked)
	}

	var recipe *models.Recipe
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		if recipe, err = tx.GetRecipe(ctx, id); err != nil {
			return err
		}
		recipe.IsLocked = locked
		if locked {
			now := time.Now().UTC()
			recipe.LockedAt, recipe.LockedBy, recipe.LockNote = &now, actor.Name, note
		} else {
			recipe.LockedAt, recipe.LockedBy, recipe.LockNote = nil, "", ""
		}
		return tx.SaveRecipe(ctx, recipe)
	})
	if err != nil {
		return nil, fmt.Errorf("set recipe lock: %w", err)
	}
	return recipe, nil
}
