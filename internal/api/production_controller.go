package api

import (
	"net/http"

	"kitchenops/server/internal/repository"
	"kitchenops/server/internal/services"

	"github.com/gin-gonic/gin"
)

// ProductionController exposes cooked batches
type ProductionController struct {
	productionService *services.ProductionService
}

// NewProductionController creates a new ProductionController
func NewProductionController(productionService *services.ProductionService) *ProductionController {
	return &ProductionController{productionService: productionService}
}

// GetProductions lists production batches
// GET /api/v1/productions?recipe=x&base=y&date=2024-05-01
func (pc *ProductionController) GetProductions(c *gin.Context) {
	filter := repository.ProductionFilter{
		RecipeID: c.Query("recipe"),
		Base:     c.Query("base"),
		Date:     c.Query("date"),
	}
	productions, err := pc.productionService.ListProductions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "Failed to list productions", err)
		return
	}
	c.JSON(http.StatusOK, productions)
}

// CreateProduction records a batch and deducts its ingredients
// POST /api/v1/productions
func (pc *ProductionController) CreateProduction(c *gin.Context) {
	var input services.ProductionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	result, err := pc.productionService.RecordProduction(c.Request.Context(), input)
	if err != nil {
		respondError(c, "Failed to record production", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
