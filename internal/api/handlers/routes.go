// Package handlers exposes the ledger over HTTP with Gin.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/wms-platform/lot-ledger/internal/application"
	"github.com/wms-platform/lot-ledger/pkg/logging"
)

// Services groups the application services the routes dispatch to
type Services struct {
	Items     *application.ItemService
	Movements *application.MovementService
	Reports   *application.ReportService
}

// RegisterRoutes mounts the item, movement and report routes under api.
// Middleware such as owner scoping and idempotency is applied by the caller.
func RegisterRoutes(api *gin.RouterGroup, services Services, logger *logging.Logger) {
	items := api.Group("/items")
	{
		items.POST("", createItemHandler(services.Items, logger))
		items.GET("", listItemsHandler(services.Items, logger))
		items.GET("/:id", getItemHandler(services.Items, logger))
		items.PATCH("/:id", updateItemHandler(services.Items, logger))
		items.DELETE("/:id", deactivateItemHandler(services.Items, logger))
	}

	movements := api.Group("/movements")
	{
		movements.POST("", recordMovementHandler(services.Movements, logger))
		movements.GET("", listMovementsHandler(services.Movements, logger))
		movements.GET("/entries", listEntriesHandler(services.Movements, logger))
		movements.GET("/entries/by-expiration", listEntriesByExpirationHandler(services.Movements, logger))
		movements.GET("/:id", getMovementHandler(services.Movements, logger))
		movements.PATCH("/:id", updateMovementHandler(services.Movements, logger))
		movements.DELETE("/:id", deactivateMovementHandler(services.Movements, logger))
	}

	reports := api.Group("/reports")
	{
		reports.GET("/current-stock", currentStockHandler(services.Reports, logger))
		reports.GET("/movement-history", movementHistoryHandler(services.Reports, logger))
		reports.GET("/expiring-stock", expiringStockHandler(services.Reports, logger))
	}
}
