package api

import (
	"net/http"
	"strconv"
	"strings"

	"kitchenops/server/internal/models"
	"kitchenops/server/internal/repository"
	"kitchenops/server/internal/services"

	"github.com/gin-gonic/gin"
)

// RequisitionController exposes demand generation and requisition transitions
type RequisitionController struct {
	requisitionService *services.RequisitionService
	demandService      *services.DemandService
}

// NewRequisitionController creates a new RequisitionController
func NewRequisitionController(requisitionService *services.RequisitionService, demandService *services.DemandService) *RequisitionController {
	return &RequisitionController{
		requisitionService: requisitionService,
		demandService:      demandService,
	}
}

// requisitionLineRequest accepts the canonical line shape
type requisitionLineRequest struct {
	IngredientID *string `json:"ingredient_id"`
	Item         string  `json:"item"`
	Unit         string  `json:"unit"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	LineTotal    float64 `json:"line_total"`
	Supplier     string  `json:"supplier"`
}

// requisitionRequest accepts both the items array and the older single-line payload
// where item, quantity, unit and supplier sit on the header itself
type requisitionRequest struct {
	Date        string                   `json:"date"`
	Base        string                   `json:"base"`
	MealType    string                   `json:"meal_type"`
	MenuName    string                   `json:"menu_name"`
	RequestedBy string                   `json:"requested_by"`
	Notes       string                   `json:"notes"`
	Items       []requisitionLineRequest `json:"items"`

	IngredientID *string `json:"ingredient_id"`
	Item         string  `json:"item"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	Supplier     string  `json:"supplier"`
	UnitPrice    float64 `json:"unit_price"`
}

// toRequisition normalizes the payload into one canonical requisition
func (r requisitionRequest) toRequisition() *models.Requisition {
	lines := r.Items
	if len(lines) == 0 && (strings.TrimSpace(r.Item) != "" || r.IngredientID != nil) {
		lines = []requisitionLineRequest{{
			IngredientID: r.IngredientID,
			Item:         r.Item,
			Unit:         r.Unit,
			Quantity:     r.Quantity,
			UnitPrice:    r.UnitPrice,
			Supplier:     r.Supplier,
		}}
	}
	req := &models.Requisition{
		Date:        r.Date,
		Base:        r.Base,
		MealType:    r.MealType,
		MenuName:    r.MenuName,
		RequestedBy: r.RequestedBy,
		Notes:       r.Notes,
	}
	for _, line := range lines {
		req.Items = append(req.Items, models.RequisitionItem{
			IngredientID: line.IngredientID,
			Item:         line.Item,
			Unit:         line.Unit,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			LineTotal:    line.LineTotal,
			Supplier:     line.Supplier,
		})
	}
	return req
}

// GenerateFromMenus builds or refreshes requisitions for menus
// POST /api/v1/requisitions/generate
func (rc *RequisitionController) GenerateFromMenus(c *gin.Context) {
	var req services.MenuDemandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reqs, err := rc.demandService.GenerateFromMenus(c.Request.Context(), req)
	if err != nil {
		respondError(c, "Failed to generate requisitions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requisitions": reqs,
		"count":        len(reqs),
	})
}

// GenerateFromPlan regenerates the requisitions of a plan
// POST /api/v1/plans/:id/generate
func (rc *RequisitionController) GenerateFromPlan(c *gin.Context) {
	reqs, err := rc.demandService.GenerateFromPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to generate plan requisitions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requisitions": reqs,
		"count":        len(reqs),
	})
}

// GetRequisitions lists requisitions page by page
// GET /api/v1/requisitions?status=pending&supplier=x&page=1&limit=50
func (rc *RequisitionController) GetRequisitions(c *gin.Context) {
	var filter repository.RequisitionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	result, err := rc.requisitionService.ListRequisitions(c.Request.Context(), filter, page, limit)
	if err != nil {
		respondError(c, "Failed to list requisitions", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetStats returns requisition counts by status
// GET /api/v1/requisitions/stats
func (rc *RequisitionController) GetStats(c *gin.Context) {
	stats, err := rc.requisitionService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to load requisition stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetRequisition returns one requisition
// GET /api/v1/requisitions/:id
func (rc *RequisitionController) GetRequisition(c *gin.Context) {
	req, err := rc.requisitionService.GetRequisition(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Requisition not found", err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// CreateRequisition stores a manual requisition
// POST /api/v1/requisitions
func (rc *RequisitionController) CreateRequisition(c *gin.Context) {
	var body requisitionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := rc.requisitionService.CreateRequisition(c.Request.Context(), body.toRequisition())
	if err != nil {
		respondError(c, "Failed to create requisition", err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// DeleteRequisition removes a requisition
// DELETE /api/v1/requisitions/:id
func (rc *RequisitionController) DeleteRequisition(c *gin.Context) {
	if err := rc.requisitionService.DeleteRequisition(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "Failed to delete requisition", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Requisition deleted"})
}

// ApproveRequisition approves a requisition and all its items
// PUT /api/v1/requisitions/:id/approve
func (rc *RequisitionController) ApproveRequisition(c *gin.Context) {
	actor := actorFrom(c)
	req, err := rc.requisitionService.Approve(c.Request.Context(), c.Param("id"), actor.Name)
	if err != nil {
		respondError(c, "Failed to approve requisition", err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// BulkApprove approves every requisition matching the filter
// POST /api/v1/requisitions/bulk-approve
func (rc *RequisitionController) BulkApprove(c *gin.Context) {
	var filter repository.RequisitionFilter
	if err := c.ShouldBindJSON(&filter); err != nil {
		badRequest(c, err)
		return
	}
	result, err := rc.requisitionService.BulkApprove(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "Failed to bulk approve requisitions", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RejectRequisition rejects a requisition with a reason
// PUT /api/v1/requisitions/:id/reject
func (rc *RequisitionController) RejectRequisition(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	actor := actorFrom(c)
	req, err := rc.requisitionService.Reject(c.Request.Context(), c.Param("id"), body.Reason, actor.Name)
	if err != nil {
		respondError(c, "Failed to reject requisition", err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// CompleteRequisition records received quantities and posts stock once every item is in
// PUT /api/v1/requisitions/:id/complete
func (rc *RequisitionController) CompleteRequisition(c *gin.Context) {
	var body services.CompleteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if body.CompletedBy == "" {
		body.CompletedBy = actorFrom(c).Name
	}
	result, err := rc.requisitionService.Complete(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		respondError(c, "Failed to complete requisition", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
