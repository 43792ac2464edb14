package api

import (
	"net/http"

	"kitchenops/server/internal/models"
	"kitchenops/server/internal/services"

	"github.com/gin-gonic/gin"
)

// RecipeController exposes recipe costing, scaling and locking
type RecipeController struct {
	recipeService *services.RecipeCostService
}

// NewRecipeController creates a new RecipeController
func NewRecipeController(recipeService *services.RecipeCostService) *RecipeController {
	return &RecipeController{
		recipeService: recipeService,
	}
}

// GetRecipe returns a recipe with its lines
// GET /api/v1/recipes/:id
func (rc *RecipeController) GetRecipe(c *gin.Context) {
	recipe, err := rc.recipeService.GetRecipe(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Recipe not found", err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// CreateRecipe creates a recipe and computes its cost
// POST /api/v1/recipes
func (rc *RecipeController) CreateRecipe(c *gin.Context) {
	var recipe models.Recipe
	if err := c.ShouldBindJSON(&recipe); err != nil {
		badRequest(c, err)
		return
	}
	recipe.ID = ""
	saved, err := rc.recipeService.SaveRecipe(c.Request.Context(), &recipe, actorFrom(c))
	if err != nil {
		respondError(c, "Failed to create recipe", err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

// UpdateRecipe updates a recipe; locked recipes need an admin caller
// PUT /api/v1/recipes/:id
func (rc *RecipeController) UpdateRecipe(c *gin.Context) {
	var recipe models.Recipe
	if err := c.ShouldBindJSON(&recipe); err != nil {
		badRequest(c, err)
		return
	}
	recipe.ID = c.Param("id")
	saved, err := rc.recipeService.SaveRecipe(c.Request.Context(), &recipe, actorFrom(c))
	if err != nil {
		respondError(c, "Failed to update recipe", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// ScaleRecipe rescales a recipe, persisting only when asked
// POST /api/v1/recipes/:id/scale
func (rc *RecipeController) ScaleRecipe(c *gin.Context) {
	var body struct {
		TargetPortions float64 `json:"target_portions" binding:"required"`
		Persist        bool    `json:"persist"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	recipe, err := rc.recipeService.ScaleRecipe(c.Request.Context(), c.Param("id"), body.TargetPortions, body.Persist, actorFrom(c))
	if err != nil {
		respondError(c, "Failed to scale recipe", err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// SetLock locks or unlocks a recipe
// PUT /api/v1/recipes/:id/lock
func (rc *RecipeController) SetLock(c *gin.Context) {
	var body struct {
		Locked bool   `json:"locked"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	recipe, err := rc.recipeService.SetRecipeLock(c.Request.Context(), c.Param("id"), body.Locked, body.Note, actorFrom(c))
	if err != nil {
		respondError(c, "Failed to change recipe lock", err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}

// Recompute refreshes a recipe's cost from current prices
// POST /api/v1/recipes/:id/recompute
func (rc *RecipeController) Recompute(c *gin.Context) {
	recipe, err := rc.recipeService.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to recompute recipe", err)
		return
	}
	c.JSON(http.StatusOK, recipe)
}
