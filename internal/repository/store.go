package repository

import (
	"context"
	"errors"

	"kitchenops/server/internal/models"
)

// ErrNotFound is returned when a lookup by id or key matches nothing
var ErrNotFound = errors.New("record not found")

// RequisitionFilter selects requisition headers. Empty fields match everything.
// Supplier matches headers with at least one item from that supplier.
type RequisitionFilter struct {
	Status   models.RequisitionStatus `form:"status" json:"status"`
	Supplier string                   `form:"supplier" json:"supplier"`
	PlanID   string                   `form:"plan" json:"plan"`
	Base     string                   `form:"base" json:"base"`
	MealType string                   `form:"mealType" json:"mealType"`
	Date     string                   `form:"date" json:"date"`
	FromDate string                   `form:"fromDate" json:"fromDate"`
	ToDate   string                   `form:"toDate" json:"toDate"`
}

// MenuFilter selects menus. IDs, when set, restricts the result to those menus.
type MenuFilter struct {
	IDs      []string
	Date     string
	Base     string
	MealType string
}

// MovementFilter selects ledger rows
type MovementFilter struct {
	IngredientID string
	Base         string
	Direction    models.MovementDirection
	SourceType   models.MovementSource
	SourceID     string
	FromDate     string
	ToDate       string
	Limit        int
}

// ProductionFilter selects production records
type ProductionFilter struct {
	RecipeID string
	Base     string
	Date     string
}

// Store is the read-store and transactional writer used by the kitchen core.
// Methods called on the Store handed to Transaction's callback run inside that transaction.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	GetIngredient(ctx context.Context, id string) (*models.Ingredient, error)
	FindIngredientsByIDs(ctx context.Context, ids []string) ([]models.Ingredient, error)
	FindIngredientByNameAndSupplier(ctx context.Context, name, supplier string) (*models.Ingredient, error)
	FindIngredientByName(ctx context.Context, name string) (*models.Ingredient, error)
	ListIngredients(ctx context.Context) ([]models.Ingredient, error)
	CreateIngredient(ctx context.Context, ingredient *models.Ingredient) error
	SaveIngredient(ctx context.Context, ingredient *models.Ingredient) error
	IncrementIngredientStock(ctx context.Context, id string, delta float64) error
	AppendPriceHistory(ctx context.Context, entry *models.PriceHistoryEntry) error
	ListPriceHistory(ctx context.Context, ingredientID string) ([]models.PriceHistoryEntry, error)

	GetRecipe(ctx context.Context, id string) (*models.Recipe, error)
	FindRecipesByIDs(ctx context.Context, ids []string) ([]models.Recipe, error)
	// FindRecipeIDsByIngredient pages through recipes using an ingredient, ordered by id, starting after afterID
	FindRecipeIDsByIngredient(ctx context.Context, ingredientID, afterID string, limit int) ([]string, error)
	SaveRecipe(ctx context.Context, recipe *models.Recipe) error

	GetMenu(ctx context.Context, id string) (*models.Menu, error)
	FindMenus(ctx context.Context, filter MenuFilter) ([]models.Menu, error)
	SaveMenu(ctx context.Context, menu *models.Menu) error

	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	SavePlan(ctx context.Context, plan *models.Plan) error
	DeletePlan(ctx context.Context, id string) error

	GetRequisition(ctx context.Context, id string) (*models.Requisition, error)
	// LockRequisition loads a requisition and holds an exclusive row lock until the transaction ends
	LockRequisition(ctx context.Context, id string) (*models.Requisition, error)
	ListRequisitions(ctx context.Context, filter RequisitionFilter, offset, limit int) ([]models.Requisition, int64, error)
	FindMenuRequisition(ctx context.Context, date, base, mealType string) (*models.Requisition, error)
	CreateRequisition(ctx context.Context, req *models.Requisition) error
	// SaveRequisition updates the header and every item it carries
	SaveRequisition(ctx context.Context, req *models.Requisition) error
	// ReplaceRequisition overwrites the header and swaps the whole item set
	ReplaceRequisition(ctx context.Context, req *models.Requisition) error
	DeleteRequisition(ctx context.Context, id string) error
	DeleteRequisitionsByPlan(ctx context.Context, planID string) (int64, error)
	// ApproveRequisitions approves every non-completed header matching the filter along with its items
	ApproveRequisitions(ctx context.Context, filter RequisitionFilter) (headers int64, items int64, err error)
	CountRequisitionsByStatus(ctx context.Context) (map[models.RequisitionStatus]int64, error)
	ListRequisitionSuppliers(ctx context.Context) ([]string, error)

	CountMovementsBySource(ctx context.Context, sourceType models.MovementSource, sourceID string) (int64, error)
	CreateMovement(ctx context.Context, movement *models.StockMovement) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]models.StockMovement, error)

	CreateProduction(ctx context.Context, production *models.Production) error
	ListProductions(ctx context.Context, filter ProductionFilter) ([]models.Production, error)
}
