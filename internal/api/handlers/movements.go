package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/lot-ledger/internal/application"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/middleware"
)

type recordMovementRequest struct {
	ItemID         string     `json:"itemId" binding:"required"`
	Type           string     `json:"type" binding:"required,movement_type"`
	Quantity       int64      `json:"quantity" binding:"required,gt=0,lte=1000000000000"`
	UnitCost       string     `json:"unitCost" binding:"omitempty,decimal"`
	BatchCode      string     `json:"batchCode" binding:"omitempty,batch_code"`
	Description    string     `json:"description" binding:"max=500"`
	ExpirationDate *time.Time `json:"expirationDate"`
}

type updateMovementRequest struct {
	Description    *string    `json:"description" binding:"omitempty,max=500"`
	ExpirationDate *time.Time `json:"expirationDate"`
}

func recordMovementHandler(service *application.MovementService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req recordMovementRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		unitCost, ok := parseDecimal(responder, "unitCost", req.UnitCost)
		if !ok {
			return
		}

		movementType := strings.ToUpper(strings.TrimSpace(req.Type))
		middleware.AddSpanAttributes(c, map[string]any{
			"ledger.item_id":       req.ItemID,
			"ledger.movement_type": movementType,
			"ledger.quantity":      req.Quantity,
		})

		result, err := service.RecordMovement(c.Request.Context(), application.RecordMovementCommand{
			OwnerID:        middleware.GetOwnerID(c),
			ItemID:         req.ItemID,
			Type:           movementType,
			Quantity:       req.Quantity,
			UnitCost:       unitCost,
			BatchCode:      strings.TrimSpace(req.BatchCode),
			Description:    req.Description,
			ExpirationDate: req.ExpirationDate,
		})
		if err != nil {
			middleware.SetSpanError(c, err)
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": result})
	}
}

func listMovementsHandler(service *application.MovementService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		movements, err := service.ListMovements(c.Request.Context(), middleware.GetOwnerID(c))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": movements})
	}
}

func listEntriesHandler(service *application.MovementService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := service.ListEntries(c.Request.Context(), middleware.GetOwnerID(c))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": entries})
	}
}

func listEntriesByExpirationHandler(service *application.MovementService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := service.ListEntriesByExpiration(c.Request.Context(), middleware.GetOwnerID(c))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": entries})
	}
}

func getMovementHandler(service *application.MovementService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		movement, err := service.GetMovement(c.Request.Context(), middleware.GetOwnerID(c), c.Param("id"))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": movement})
	}
}

func updateMovementHandler(service *application.MovementService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req updateMovementRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		movement, err := service.UpdateMovement(c.Request.Context(), application.UpdateMovementCommand{
			OwnerID:        middleware.GetOwnerID(c),
			MovementID:     c.Param("id"),
			Description:    req.Description,
			ExpirationDate: req.ExpirationDate,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": movement})
	}
}

func deactivateMovementHandler(service *application.MovementService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.DeactivateMovement(c.Request.Context(), middleware.GetOwnerID(c), c.Param("id")); err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
