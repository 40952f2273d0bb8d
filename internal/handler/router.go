package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/flicky/agrichain-api/internal/metrics"
	"github.com/flicky/agrichain-api/internal/middleware"
	"github.com/flicky/agrichain-api/internal/model"
	"github.com/flicky/agrichain-api/internal/service"
)

type Services struct {
	Identity *service.IdentityService
	Products *service.ProductService
	Workflow *service.WorkflowService
	Journeys *service.JourneyService
}

// NewRouter mounts the API under /api/v1 plus the health endpoints. The caller
// adds /metrics when a registry is exposed.
func NewRouter(svc Services, health *HealthHandler, m *metrics.Metrics) *gin.Engine {
	authH := NewAuthHandler(svc.Identity)
	productH := NewProductHandler(svc.Products)
	workflowH := NewWorkflowHandler(svc.Workflow)
	journeyH := NewJourneyHandler(svc.Journeys)
	requireAuth := middleware.AuthMiddleware(svc.Identity)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), m.Middleware())

	if health != nil {
		router.GET("/healthz", health.Healthz)
		router.GET("/readyz", health.Readyz)
	}

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)
		auth.POST("/logout", requireAuth, authH.Logout)
		auth.GET("/me", requireAuth, authH.Me)

		products := v1.Group("/products")
		products.GET("/lookup/:code", productH.GetByCode)

		farmer := products.Group("", requireAuth, middleware.RequireRole(model.RoleFarmer))
		farmer.POST("", productH.Create)
		farmer.GET("", productH.ListMine)

		workflow := v1.Group("/workflow", requireAuth)
		custody := workflow.Group("", middleware.RequireRole(model.RoleTransporter, model.RoleRetailer))
		custody.POST("/scan", workflowH.Scan)
		custody.GET("/history", workflowH.History)

		workflow.POST("/transport", middleware.RequireRole(model.RoleTransporter), workflowH.RequestTransport)
		workflow.GET("/transports", middleware.RequireRole(model.RoleTransporter), workflowH.Transports)
		workflow.POST("/retail", middleware.RequireRole(model.RoleRetailer), workflowH.RequestRetail)
		workflow.GET("/retails", middleware.RequireRole(model.RoleRetailer), workflowH.Retails)
		workflow.POST("/products/:id/sale", middleware.RequireRole(model.RoleRetailer), workflowH.RecordSale)

		approvers := workflow.Group("", middleware.RequireRole(model.RoleFarmer, model.RoleTransporter))
		approvers.GET("/inbox", workflowH.Inbox)
		approvers.POST("/requests/:id/approve", workflowH.Approve)
		approvers.POST("/requests/:id/reject", workflowH.Reject)

		v1.GET("/journey/:code", journeyH.Lookup)
	}
	return router
}
