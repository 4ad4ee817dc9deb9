package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/lot-ledger/internal/application"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/middleware"
)

type createItemRequest struct {
	Name         string `json:"name" binding:"required,max=200"`
	SKU          string `json:"sku" binding:"required,max=64"`
	ProfitMargin string `json:"profitMargin" binding:"omitempty,decimal"`
}

type updateItemRequest struct {
	Name         *string `json:"name" binding:"omitempty,min=1,max=200"`
	SKU          *string `json:"sku" binding:"omitempty,min=1,max=64"`
	ProfitMargin *string `json:"profitMargin" binding:"omitempty,decimal"`
}

func createItemHandler(service *application.ItemService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req createItemRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		margin, ok := parseDecimal(responder, "profitMargin", req.ProfitMargin)
		if !ok {
			return
		}

		item, err := service.CreateItem(c.Request.Context(), application.CreateItemCommand{
			OwnerID:      middleware.GetOwnerID(c),
			Name:         req.Name,
			SKU:          req.SKU,
			ProfitMargin: margin,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"data": item})
	}
}

func listItemsHandler(service *application.ItemService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := service.ListItems(c.Request.Context(), middleware.GetOwnerID(c))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": items})
	}
}

func getItemHandler(service *application.ItemService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		item, err := service.GetItem(c.Request.Context(), middleware.GetOwnerID(c), c.Param("id"))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": item})
	}
}

func updateItemHandler(service *application.ItemService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req updateItemRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		cmd := application.UpdateItemCommand{
			OwnerID: middleware.GetOwnerID(c),
			ItemID:  c.Param("id"),
			Name:    req.Name,
			SKU:     req.SKU,
		}
		if req.ProfitMargin != nil {
			margin, ok := parseDecimal(responder, "profitMargin", *req.ProfitMargin)
			if !ok {
				return
			}
			cmd.ProfitMargin = &margin
		}

		item, err := service.UpdateItem(c.Request.Context(), cmd)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": item})
	}
}

func deactivateItemHandler(service *application.ItemService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.DeactivateItem(c.Request.Context(), middleware.GetOwnerID(c), c.Param("id")); err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// parseDecimal reads an optional decimal field; an empty value is zero
func parseDecimal(responder *middleware.ErrorResponder, field, value string) (decimal.Decimal, bool) {
	if value == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		responder.RespondValidationError("validation failed", map[string]string{field: "must be a decimal number"})
		return decimal.Decimal{}, false
	}
	return d, true
}
