package api

import (
	"net/http"
	"time"

	"kitchenops/server/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Controllers groups every HTTP controller served by the router
type Controllers struct {
	Requisitions *RequisitionController
	Stock        *StockController
	Recipes      *RecipeController
	Plans        *PlanController
	Productions  *ProductionController
	Feed         *KitchenFeed
}

// NewRouter builds the gin engine with middleware and all API routes
func NewRouter(ctrl Controllers, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "Kitchen Ops Server",
			"version": "1.0.0",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(requestLogger(log))
	r.Use(metrics.Middleware())
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor, X-Actor-Role")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	apiGroup := r.Group("/api/v1")

	requisitionGroup := apiGroup.Group("/requisitions")
	{
		requisitionGroup.GET("", ctrl.Requisitions.GetRequisitions)
		requisitionGroup.GET("/stats", ctrl.Requisitions.GetStats)
		requisitionGroup.POST("", ctrl.Requisitions.CreateRequisition)
		requisitionGroup.POST("/generate", ctrl.Requisitions.GenerateFromMenus)
		requisitionGroup.POST("/bulk-approve", ctrl.Requisitions.BulkApprove)
		requisitionGroup.GET("/:id", ctrl.Requisitions.GetRequisition)
		requisitionGroup.DELETE("/:id", ctrl.Requisitions.DeleteRequisition)
		requisitionGroup.PUT("/:id/approve", ctrl.Requisitions.ApproveRequisition)
		requisitionGroup.PUT("/:id/reject", ctrl.Requisitions.RejectRequisition)
		requisitionGroup.PUT("/:id/complete", ctrl.Requisitions.CompleteRequisition)
	}

	ingredientGroup := apiGroup.Group("/ingredients")
	{
		ingredientGroup.GET("", ctrl.Stock.GetIngredients)
		ingredientGroup.GET("/low-stock", ctrl.Stock.GetLowStock)
		ingredientGroup.POST("", ctrl.Stock.CreateIngredient)
		ingredientGroup.GET("/:id", ctrl.Stock.GetIngredient)
		ingredientGroup.PUT("/:id", ctrl.Stock.UpdateIngredient)
		ingredientGroup.GET("/:id/price-history", ctrl.Stock.GetPriceHistory)
		ingredientGroup.PATCH("/:id/stock", ctrl.Stock.AdjustStock)
	}

	inventoryGroup := apiGroup.Group("/inventory")
	{
		inventoryGroup.GET("/stock", ctrl.Stock.GetGroupedStock)
		inventoryGroup.GET("/movements", ctrl.Stock.GetMovements)
		inventoryGroup.POST("/movements", ctrl.Stock.RecordMovement)
	}

	recipeGroup := apiGroup.Group("/recipes")
	{
		recipeGroup.POST("", ctrl.Recipes.CreateRecipe)
		recipeGroup.GET("/:id", ctrl.Recipes.GetRecipe)
		recipeGroup.PUT("/:id", ctrl.Recipes.UpdateRecipe)
		recipeGroup.POST("/:id/scale", ctrl.Recipes.ScaleRecipe)
		recipeGroup.PUT("/:id/lock", ctrl.Recipes.SetLock)
		recipeGroup.POST("/:id/recompute", ctrl.Recipes.Recompute)
	}

	menuGroup := apiGroup.Group("/menus")
	{
		menuGroup.GET("", ctrl.Plans.GetMenus)
		menuGroup.POST("", ctrl.Plans.SaveMenu)
		menuGroup.PUT("/:id", ctrl.Plans.SaveMenu)
	}

	planGroup := apiGroup.Group("/plans")
	{
		planGroup.POST("", ctrl.Plans.SavePlan)
		planGroup.GET("/:id", ctrl.Plans.GetPlan)
		planGroup.PUT("/:id", ctrl.Plans.SavePlan)
		planGroup.DELETE("/:id", ctrl.Plans.DeletePlan)
		planGroup.POST("/:id/generate", ctrl.Requisitions.GenerateFromPlan)
	}

	productionGroup := apiGroup.Group("/productions")
	{
		productionGroup.GET("", ctrl.Productions.GetProductions)
		productionGroup.POST("", ctrl.Productions.CreateProduction)
	}

	if ctrl.Feed != nil {
		apiGroup.GET("/ws/kitchen", ctrl.Feed.ServeWS)
	}
	return r
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("🌐 request served")
	}
}
