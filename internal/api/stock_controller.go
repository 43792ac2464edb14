package api

import (
	"net/http"
	"strconv"

	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"
	"kitchenops/server/internal/services"

	"github.com/gin-gonic/gin"
)

const defaultLowStockThreshold = 5

// StockController exposes ingredient master data and the stock ledger
type StockController struct {
	ingredientService *services.IngredientService
	stockService      *services.StockService
}

// NewStockController creates a new StockController
func NewStockController(ingredientService *services.IngredientService, stockService *services.StockService) *StockController {
	return &StockController{
		ingredientService: ingredientService,
		stockService:      stockService,
	}
}

// GetIngredients lists ingredients
// GET /api/v1/ingredients
func (sc *StockController) GetIngredients(c *gin.Context) {
	ingredients, err := sc.ingredientService.ListIngredients(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to list ingredients", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": ingredients,
		"count": len(ingredients),
	})
}

// GetIngredient returns one ingredient with its price history
// GET /api/v1/ingredients/:id
func (sc *StockController) GetIngredient(c *gin.Context) {
	ingredient, err := sc.ingredientService.GetIngredient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Ingredient not found", err)
		return
	}
	c.JSON(http.StatusOK, ingredient)
}

// CreateIngredient creates an ingredient
// POST /api/v1/ingredients
func (sc *StockController) CreateIngredient(c *gin.Context) {
	var ingredient models.Ingredient
	if err := c.ShouldBindJSON(&ingredient); err != nil {
		badRequest(c, err)
		return
	}
	ingredient.ID = ""
	saved, err := sc.ingredientService.SaveIngredient(c.Request.Context(), &ingredient)
	if err != nil {
		respondError(c, "Failed to create ingredient", err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// UpdateIngredient updates an ingredient; a pack price change cascades to recipes
// PUT /api/v1/ingredients/:id
func (sc *StockController) UpdateIngredient(c *gin.Context) {
	var ingredient models.Ingredient
	if err := c.ShouldBindJSON(&ingredient); err != nil {
		badRequest(c, err)
		return
	}
	ingredient.ID = c.Param("id")
	saved, err := sc.ingredientService.SaveIngredient(c.Request.Context(), &ingredient)
	if err != nil {
		respondError(c, "Failed to update ingredient", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GetPriceHistory returns an ingredient's price snapshots
// GET /api/v1/ingredients/:id/price-history
func (sc *StockController) GetPriceHistory(c *gin.Context) {
	history, err := sc.ingredientService.PriceHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to load price history", err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// AdjustStock adds to or deducts from an ingredient's stock
// PATCH /api/v1/ingredients/:id/stock
func (sc *StockController) AdjustStock(c *gin.Context) {
	var adj services.StockAdjustment
	if err := c.ShouldBindJSON(&adj); err != nil {
		badRequest(c, err)
		return
	}
	ingredient, err := sc.stockService.AdjustStock(c.Request.Context(), c.Param("id"), adj)
	if err != nil {
		respondError(c, "Failed to adjust stock", err)
		return
	}
	c.JSON(http.StatusOK, ingredient)
}

// GetLowStock lists ingredients below a threshold
// GET /api/v1/ingredients/low-stock?threshold=5
func (sc *StockController) GetLowStock(c *gin.Context) {
	threshold, err := strconv.ParseFloat(c.DefaultQuery("threshold", "5"), 64)
	if err != nil {
		threshold = defaultLowStockThreshold
	}
	items, err := sc.stockService.LowStock(c.Request.Context(), threshold)
	if err != nil {
		respondError(c, "Failed to load low stock", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":     items,
		"count":     len(items),
		"threshold": threshold,
	})
}

// RecordMovement writes a manual inventory entry
// POST /api/v1/inventory/movements
func (sc *StockController) RecordMovement(c *gin.Context) {
	var input services.MovementInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	movement, err := sc.stockService.RecordMovement(c.Request.Context(), input)
	if err != nil {
		respondError(c, "Failed to record movement", err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

// GetMovements lists ledger rows
// GET /api/v1/inventory/movements?ingredient_id=x&source_type=Requisition&limit=100
func (sc *StockController) GetMovements(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	filter := repository.MovementFilter{
		IngredientID: c.Query("ingredient_id"),
		Base:         c.Query("base"),
		Direction:    models.MovementDirection(c.Query("direction")),
		SourceType:   models.MovementSource(c.Query("source_type")),
		SourceID:     c.Query("source_id"),
		FromDate:     c.Query("from_date"),
		ToDate:       c.Query("to_date"),
		Limit:        limit,
	}
	movements, err := sc.stockService.ListMovements(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "Failed to list movements", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": movements,
		"count": len(movements),
	})
}

// GetGroupedStock totals the ledger per ingredient
// GET /api/v1/inventory/stock
func (sc *StockController) GetGroupedStock(c *gin.Context) {
	groups, err := sc.stockService.GroupedStock(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to load stock", err)
		return
	}
	c.JSON(http.StatusOK, groups)
}
