package services

import (
	"context"
	"errors"
	"strings"

	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PostingOutcome tells whether a posting wrote anything
type PostingOutcome string

const (
	OutcomePosted        PostingOutcome = "posted"
	OutcomeAlreadyPosted PostingOutcome = "already_posted"
)

// DefaultMaterializedUnit is the base unit of an ingredient created from a line without a unit
const DefaultMaterializedUnit = "unit"

// PostingResult describes one ledger posting
type PostingResult struct {
	Outcome      PostingOutcome         `json:"outcome"`
	Movements    []models.StockMovement `json:"movements"`
	Materialized []string               `json:"materialized,omitempty"`
}

// LedgerPoster writes the inbound movements of a completed requisition, at most once per requisition
type LedgerPoster struct {
	log *logrus.Logger
}

// NewLedgerPoster creates a new LedgerPoster
func NewLedgerPoster(log *logrus.Logger) *LedgerPoster {
	return &LedgerPoster{log: log}
}

// Post must run inside the transaction that completes req. It resolves or creates the
// ingredient of every received line, converts the received quantity to the ingredient's
// base unit, writes one inbound movement per line and raises stock. Lines whose actual
// quantity is not positive are skipped. Any error leaves the caller to roll back.
// Resolved ingredient ids are written back onto req's items.
func (p *LedgerPoster) Post(ctx context.Context, tx repository.Store, req *models.Requisition) (*PostingResult, error) {
	existing, err := tx.CountMovementsBySource(ctx, models.SourceRequisition, req.ID)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return &PostingResult{Outcome: OutcomeAlreadyPosted}, nil
	}

	result := &PostingResult{Outcome: OutcomePosted, Movements: []models.StockMovement{}}
	r := &ingredientResolver{tx: tx, byID: make(map[string]*models.Ingredient), byName: make(map[string]*models.Ingredient)}

	for i := range req.Items {
		item := &req.Items[i]
		if item.ActualQuantity == nil || *item.ActualQuantity <= 0 {
			continue
		}
		received := *item.ActualQuantity

		ingredient, created, err := r.resolve(ctx, item)
		if err != nil {
			return nil, err
		}
		if created {
			result.Materialized = append(result.Materialized, ingredient.ID)
			p.log.WithFields(logrus.Fields{
				"requisition_id": req.ID,
				"ingredient_id":  ingredient.ID,
				"name":           ingredient.Name,
			}).Info("🆕 ingredient materialized from requisition line")
		}

		qty, converted := ConvertQuantity(received, item.Unit, ingredient.OriginalUnit)
		if !converted && item.Unit != "" && NormalizeUnit(item.Unit) != NormalizeUnit(ingredient.OriginalUnit) {
			p.log.WithFields(logrus.Fields{
				"requisition_id": req.ID,
				"from":           item.Unit,
				"to":             ingredient.OriginalUnit,
			}).Warn("⚠️ unit conversion unknown, quantity posted unchanged")
		}
		if qty <= 0 {
			continue
		}

		costTotal := decimal.NewFromFloat(item.LineTotal)
		if item.LineTotal <= 0 {
			costTotal = decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromFloat(received))
		}

		movement := models.StockMovement{
			IngredientID:   ingredient.ID,
			IngredientName: ingredient.Name,
			Base:           orDefault(req.Base, models.DefaultBase),
			Supplier:       item.Supplier,
			Quantity:       qty,
			Unit:           ingredient.OriginalUnit,
			PurchasePrice:  item.UnitPrice,
			CostTotal:      costTotal.Round(4).InexactFloat64(),
			Date:           req.Date,
			Notes:          "Requisition " + req.ID,
			Direction:      models.DirectionInbound,
			SourceType:     models.SourceRequisition,
			SourceID:       req.ID,
		}
		if err := tx.CreateMovement(ctx, &movement); err != nil {
			return nil, err
		}
		if err := tx.IncrementIngredientStock(ctx, ingredient.ID, qty); err != nil {
			return nil, err
		}
		ingredient.Stock += qty

		id := ingredient.ID
		item.IngredientID = &id
		result.Movements = append(result.Movements, movement)
	}
	return result, nil
}

// ingredientResolver caches ingredients seen during one posting so repeated names
// resolve to the same record
type ingredientResolver struct {
	tx     repository.Store
	byID   map[string]*models.Ingredient
	byName map[string]*models.Ingredient
}

func (r *ingredientResolver) remember(ingredient *models.Ingredient) *models.Ingredient {
	r.byID[ingredient.ID] = ingredient
	r.byName[ingredient.Name+"\x00"+ingredient.Supplier] = ingredient
	if _, ok := r.byName[ingredient.Name]; !ok {
		r.byName[ingredient.Name] = ingredient
	}
	return ingredient
}

// resolve looks the line up by id, then by (name, supplier), then by name, and creates
// a new ingredient when nothing matches. A line with neither a resolvable id nor a name fails.
func (r *ingredientResolver) resolve(ctx context.Context, item *models.RequisitionItem) (*models.Ingredient, bool, error) {
	if item.IngredientID != nil && *item.IngredientID != "" {
		id := *item.IngredientID
		if cached, ok := r.byID[id]; ok {
			return cached, false, nil
		}
		found, err := r.tx.GetIngredient(ctx, id)
		if err == nil {
			return r.remember(found), false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, err
		}
	}

	name := strings.TrimSpace(item.Item)
	if name == "" {
		return nil, false, invalid("requisition line %s has no resolvable ingredient and no name", item.ID)
	}

	if cached, ok := r.byName[name+"\x00"+item.Supplier]; ok {
		return cached, false, nil
	}
	found, err := r.tx.FindIngredientByNameAndSupplier(ctx, name, item.Supplier)
	if err == nil {
		return r.remember(found), false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	if cached, ok := r.byName[name]; ok {
		return cached, false, nil
	}
	found, err = r.tx.FindIngredientByName(ctx, name)
	if err == nil {
		return r.remember(found), false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	unit := NormalizeUnit(item.Unit)
	if unit == "" {
		unit = DefaultMaterializedUnit
	}
	created := &models.Ingredient{
		Name:         name,
		Supplier:     item.Supplier,
		OriginalUnit: unit,
		Stock:        0,
	}
	if err := r.tx.CreateIngredient(ctx, created); err != nil {
		return nil, false, err
	}
	return r.remember(created), true, nil
}
