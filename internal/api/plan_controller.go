package api

import (
	"net/http"
	"strings"

	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"
	"kitchenops/server/internal/services"

	"github.com/gin-gonic/gin"
)

// PlanController exposes menus and daily plans
type PlanController struct {
	planService *services.PlanService
}

// NewPlanController creates a new PlanController
func NewPlanController(planService *services.PlanService) *PlanController {
	return &PlanController{planService: planService}
}

// GetMenus lists menus
// GET /api/v1/menus?date=2024-05-01&base=north&meal_type=lunch&ids=a,b
func (pc *PlanController) GetMenus(c *gin.Context) {
	filter := repository.MenuFilter{
		Date:     c.Query("date"),
		Base:     c.Query("base"),
		MealType: c.Query("meal_type"),
	}
	if ids := c.Query("ids"); ids != "" {
		filter.IDs = strings.Split(ids, ",")
	}
	menus, err := pc.planService.ListMenus(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "Failed to list menus", err)
		return
	}
	c.JSON(http.StatusOK, menus)
}

// SaveMenu creates or updates a menu
// POST /api/v1/menus
// PUT /api/v1/menus/:id
func (pc *PlanController) SaveMenu(c *gin.Context) {
	var menu models.Menu
	if err := c.ShouldBindJSON(&menu); err != nil {
		badRequest(c, err)
		return
	}
	menu.ID = c.Param("id")
	saved, err := pc.planService.SaveMenu(c.Request.Context(), &menu)
	if err != nil {
		respondError(c, "Failed to save menu", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GetPlan returns a plan
// GET /api/v1/plans/:id
func (pc *PlanController) GetPlan(c *gin.Context) {
	plan, err := pc.planService.GetPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Plan not found", err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// SavePlan creates or updates a plan and regenerates its requisitions
// POST /api/v1/plans
// PUT /api/v1/plans/:id
func (pc *PlanController) SavePlan(c *gin.Context) {
	var plan models.Plan
	if err := c.ShouldBindJSON(&plan); err != nil {
		badRequest(c, err)
		return
	}
	plan.ID = c.Param("id")
	result, err := pc.planService.SavePlan(c.Request.Context(), &plan)
	if err != nil {
		respondError(c, "Failed to save plan", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeletePlan deletes a plan together with its requisitions
// DELETE /api/v1/plans/:id
func (pc *PlanController) DeletePlan(c *gin.Context) {
	removed, err := pc.planService.DeletePlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to delete plan", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":              "Plan deleted",
		"requisitions_removed": removed,
	})
}
