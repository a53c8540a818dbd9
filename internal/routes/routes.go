package routes

import (
	"github.com/gin-gonic/gin"

	handler "bank-reconciliation-backend/internal/handlers"
)

func RegisterRoutes(r *gin.Engine, reconHandler *handler.ReconciliationHandler) {
	api := r.Group("/api")

	api.GET("/health", reconHandler.Health)

	// Tenant-scoped pipeline and listings
	tenants := api.Group("/tenants/:tenantId")
	tenants.POST("/bank-sync", reconHandler.BankSync)
	tenants.POST("/reconciliation", reconHandler.Reconcile)
	tenants.GET("/suggestions", reconHandler.ListSuggestions)
	tenants.GET("/payables/reconciled", reconHandler.ListReconciledPayables)
	tenants.GET("/sync-runs", reconHandler.ListSyncRuns)
	tenants.GET("/match-runs", reconHandler.ListMatchRuns)

	// Review queue
	suggestions := api.Group("/suggestions")
	suggestions.POST("/:id/accept", reconHandler.AcceptSuggestion)
	suggestions.POST("/:id/reject", reconHandler.RejectSuggestion)

	payables := api.Group("/payables")
	{
		payables.PATCH("/:id", reconHandler.UpdatePayable)
	}
}
