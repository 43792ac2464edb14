package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kitchenops/server/internal/events"
	"kitchenops/server/internal/metrics"
	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultSupplier is used for generated lines whose ingredient names no supplier
	DefaultSupplier = "Default Supplier"
	// DefaultRequisitionUnit is used for generated lines whose ingredient has no base unit
	DefaultRequisitionUnit = "kg"
)

// MenuDemandRequest selects menus to turn into requisitions. MenuIDs takes precedence
// over the date/base/meal filter.
type MenuDemandRequest struct {
	MenuIDs     []string `json:"menu_ids"`
	Date        string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Base        string   `json:"base"`
	MealType    string   `json:"meal_type" validate:"omitempty,oneof=breakfast lunch snack dinner extra"`
	PeopleCount float64  `json:"people_count" validate:"gte=0"`
}

// DemandService turns menus and plans into aggregated purchase requisitions
type DemandService struct {
	store              repository.Store
	bus                events.Bus
	log                *logrus.Logger
	defaultPeopleCount float64
}

// NewDemandService creates a new DemandService
func NewDemandService(store repository.Store, bus events.Bus, log *logrus.Logger, defaultPeopleCount float64) *DemandService {
	if defaultPeopleCount <= 0 {
		defaultPeopleCount = 100
	}
	return &DemandService{store: store, bus: bus, log: log, defaultPeopleCount: defaultPeopleCount}
}

// servedMenu is one menu to be cooked for target people
type servedMenu struct {
	menu   models.Menu
	target float64
}

// demandAggregator sums buy-side quantities per ingredient, keeping first-seen order
type demandAggregator struct {
	order []string
	qty   map[string]decimal.Decimal
}

func newDemandAggregator() *demandAggregator {
	return &demandAggregator{qty: make(map[string]decimal.Decimal)}
}

func (a *demandAggregator) add(ingredientID string, qty decimal.Decimal) {
	if _, seen := a.qty[ingredientID]; !seen {
		a.order = append(a.order, ingredientID)
	}
	a.qty[ingredientID] = a.qty[ingredientID].Add(qty)
}

// BuyQuantity converts a scaled recipe quantity into what has to be purchased given a yield
// percentage. A zero yield yields zero rather than dividing by zero.
func BuyQuantity(scaled decimal.Decimal, yieldPercent float64) decimal.Decimal {
	if yieldPercent <= 0 {
		return decimal.Zero
	}
	return scaled.Div(decimal.NewFromFloat(yieldPercent).Div(decimal.NewFromInt(100)))
}

func demandAnchor(recipe *models.Recipe) float64 {
	if recipe.BasePortions > 0 {
		return recipe.BasePortions
	}
	return models.DefaultBasePortions
}

// buildItems expands menus into recipes and ingredient lines and returns aggregated lines.
// Ingredient metadata comes from a single batched lookup; unknown ingredients are dropped.
func (s *DemandService) buildItems(ctx context.Context, tx repository.Store, served []servedMenu) ([]models.RequisitionItem, error) {
	var recipeIDs []string
	for _, sm := range served {
		recipeIDs = append(recipeIDs, sm.menu.RecipeIDs...)
	}
	recipes, err := tx.FindRecipesByIDs(ctx, recipeIDs)
	if err != nil {
		return nil, err
	}
	recipeByID := make(map[string]*models.Recipe, len(recipes))
	var ingredientIDs []string
	for i := range recipes {
		recipeByID[recipes[i].ID] = &recipes[i]
		for _, line := range recipes[i].Ingredients {
			ingredientIDs = append(ingredientIDs, line.IngredientID)
		}
	}

	ingredients, err := tx.FindIngredientsByIDs(ctx, ingredientIDs)
	if err != nil {
		return nil, err
	}
	ingredientByID := make(map[string]models.Ingredient, len(ingredients))
	for _, ingredient := range ingredients {
		ingredientByID[ingredient.ID] = ingredient
	}

	agg := newDemandAggregator()
	dropped := 0
	for _, sm := range served {
		for _, recipeID := range sm.menu.RecipeIDs {
			recipe, ok := recipeByID[recipeID]
			if !ok {
				s.log.WithFields(logrus.Fields{"menu_id": sm.menu.ID, "recipe_id": recipeID}).Warn("⚠️ menu references unknown recipe")
				continue
			}
			factor := decimal.NewFromFloat(sm.target).Div(decimal.NewFromFloat(demandAnchor(recipe)))
			for _, line := range recipe.Ingredients {
				ingredient, ok := ingredientByID[line.IngredientID]
				if !ok {
					dropped++
					continue
				}
				base := line.BaseQuantity
				if base == 0 {
					base = line.Quantity
				}
				inBaseUnit, _ := ConvertQuantity(base, line.Unit, ingredient.OriginalUnit)
				scaled := decimal.NewFromFloat(inBaseUnit).Mul(factor)
				agg.add(ingredient.ID, BuyQuantity(scaled, ingredient.YieldPercent()))
			}
		}
	}
	if dropped > 0 {
		s.log.WithField("lines", dropped).Warn("⚠️ recipe lines with unknown ingredients were dropped from demand")
	}

	items := make([]models.RequisitionItem, 0, len(agg.order))
	for _, id := range agg.order {
		ingredient := ingredientByID[id]
		ingredientID := ingredient.ID
		items = append(items, models.RequisitionItem{
			IngredientID: &ingredientID,
			Item:         ingredient.Name,
			Unit:         orDefault(ingredient.OriginalUnit, DefaultRequisitionUnit),
			Quantity:     agg.qty[id].Round(4).InexactFloat64(),
			Supplier:     orDefault(ingredient.Supplier, DefaultSupplier),
			Status:       models.RequisitionStatusPending,
		})
	}
	return items, nil
}

type menuKey struct {
	date, base, mealType string
}

// GenerateFromMenus upserts one requisition per (date, base, meal type) for the selected
// menus. An existing header for the key has its lines replaced and returns to pending;
// a completed one is left untouched.
func (s *DemandService) GenerateFromMenus(ctx context.Context, req MenuDemandRequest) ([]models.Requisition, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if len(req.MenuIDs) == 0 && req.Date == "" {
		return nil, invalid("menu ids or a date are required")
	}
	target := req.PeopleCount
	if target <= 0 {
		target = s.defaultPeopleCount
	}

	var result []models.Requisition
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		filter := repository.MenuFilter{IDs: req.MenuIDs}
		if len(req.MenuIDs) == 0 {
			filter = repository.MenuFilter{Date: req.Date, Base: req.Base, MealType: req.MealType}
		}
		menus, err := tx.FindMenus(ctx, filter)
		if err != nil {
			return err
		}

		var keys []menuKey
		grouped := make(map[menuKey][]servedMenu)
		for _, menu := range menus {
			key := menuKey{menu.Date, menu.Base, menu.MealType}
			if _, ok := grouped[key]; !ok {
				keys = append(keys, key)
			}
			grouped[key] = append(grouped[key], servedMenu{menu: menu, target: target})
		}

		for _, key := range keys {
			served := grouped[key]
			items, err := s.buildItems(ctx, tx, served)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				s.log.WithFields(logrus.Fields{"date": key.date, "base": key.base, "meal_type": key.mealType}).
					Warn("⚠️ no demand for menu key, requisition not written")
				continue
			}

			var names, menuIDs []string
			for _, sm := range served {
				menuIDs = append(menuIDs, sm.menu.ID)
				if sm.menu.Name != "" {
					names = append(names, sm.menu.Name)
				}
			}

			header, err := tx.FindMenuRequisition(ctx, key.date, key.base, key.mealType)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				header = &models.Requisition{}
			case err != nil:
				return err
			case header.Status == models.RequisitionStatusCompleted:
				s.log.WithField("requisition_id", header.ID).Warn("⚠️ requisition already completed, regeneration skipped")
				result = append(result, *header)
				continue
			}

			header.Date, header.Base, header.MealType = key.date, key.base, key.mealType
			header.Origin = models.RequisitionOriginMenu
			header.MenuName = strings.Join(names, ", ")
			header.PeopleCount = target
			header.PortionFactor = decimal.NewFromFloat(target).Div(decimal.NewFromFloat(models.DefaultBasePortions)).Round(4).InexactFloat64()
			header.Status = models.RequisitionStatusPending
			header.RequestedBy = models.DefaultRequestedBy
			header.LinkedMenuIDs = menuIDs
			header.Items = items

			if header.ID == "" {
				err = tx.CreateRequisition(ctx, header)
			} else {
				err = tx.ReplaceRequisition(ctx, header)
			}
			if err != nil {
				return err
			}
			result = append(result, *header)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate demand from menus: %w", err)
	}

	s.published(ctx, result, "")
	return result, nil
}

// GenerateFromPlan discards the plan's previous requisitions and writes a fresh one for its (date, base).
// Nothing changes once the plan's requisition is completed.
func (s *DemandService) GenerateFromPlan(ctx context.Context, planID string) ([]models.Requisition, error) {
	var result []models.Requisition
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		plan, err := tx.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		result, err = s.regeneratePlan(ctx, tx, plan)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("generate demand from plan: %w", err)
	}
	s.published(ctx, result, planID)
	return result, nil
}

// regeneratePlan runs inside the caller's transaction. A plan whose requisition has already
// been completed keeps it; its stock is posted and regenerating would post the demand twice.
func (s *DemandService) regeneratePlan(ctx context.Context, tx repository.Store, plan *models.Plan) ([]models.Requisition, error) {
	completed, total, err := tx.ListRequisitions(ctx, repository.RequisitionFilter{
		PlanID: plan.ID,
		Status: models.RequisitionStatusCompleted,
	}, 0, 1)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		s.log.WithFields(logrus.Fields{"plan_id": plan.ID, "requisition_id": completed[0].ID}).
			Warn("⚠️ plan requisition already completed, regeneration skipped")
		return []models.Requisition{}, nil
	}

	removed, err := tx.DeleteRequisitionsByPlan(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		s.log.WithFields(logrus.Fields{"plan_id": plan.ID, "removed": removed}).Info("🗑️ previous plan requisitions discarded")
	}

	var (
		served  []servedMenu
		names   []string
		menuIDs []string
		people  float64
	)
	for _, block := range plan.Blocks() {
		if block.MenuID == "" || block.Qty <= 0 {
			continue
		}
		menu, err := tx.GetMenu(ctx, block.MenuID)
		if errors.Is(err, repository.ErrNotFound) {
			s.log.WithFields(logrus.Fields{"plan_id": plan.ID, "menu_id": block.MenuID}).Warn("⚠️ plan block references unknown menu")
			continue
		}
		if err != nil {
			return nil, err
		}
		served = append(served, servedMenu{menu: *menu, target: block.Qty})
		menuIDs = append(menuIDs, menu.ID)
		names = append(names, block.MealType+": "+orDefault(menu.Name, menu.ID))
		people += block.Qty
	}
	if len(served) == 0 {
		return []models.Requisition{}, nil
	}

	items, err := s.buildItems(ctx, tx, served)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []models.Requisition{}, nil
	}

	planID := plan.ID
	req := models.Requisition{
		Date:          plan.Date,
		Base:          plan.Base,
		Origin:        models.RequisitionOriginPlan,
		PlanID:        &planID,
		MenuName:      strings.Join(names, "; "),
		PeopleCount:   people,
		PortionFactor: decimal.NewFromFloat(people).Div(decimal.NewFromFloat(models.DefaultBasePortions)).Round(4).InexactFloat64(),
		Status:        models.RequisitionStatusPending,
		RequestedBy:   models.DefaultRequestedBy,
		LinkedMenuIDs: menuIDs,
		Items:         items,
	}
	if err := tx.CreateRequisition(ctx, &req); err != nil {
		return nil, err
	}
	return []models.Requisition{req}, nil
}

func (s *DemandService) published(ctx context.Context, reqs []models.Requisition, planID string) {
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, req.ID)
	}
	metrics.RequisitionTransitions.WithLabelValues("generate").Add(float64(len(ids)))
	s.log.WithFields(logrus.Fields{"requisitions": len(ids), "plan_id": planID}).Info("✅ demand generated")
	if err := s.bus.Publish(ctx, events.New(events.RequisitionsGenerated, events.RequisitionsGeneratedPayload{
		RequisitionIDs: ids,
		PlanID:         planID,
	})); err != nil {
		s.log.WithError(err).Warn("⚠️ generation subscribers reported errors")
	}
}
