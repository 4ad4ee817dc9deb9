package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/lot-ledger/internal/application"
	"github.com/wms-platform/lot-ledger/pkg/api"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/middleware"
)

type currentStockQuery struct {
	ItemID      *string `form:"itemId"`
	ItemName    *string `form:"itemName"`
	MinQuantity *int64  `form:"minQuantity" binding:"omitempty,gte=0"`
	MaxQuantity *int64  `form:"maxQuantity" binding:"omitempty,gte=0"`
}

type movementHistoryQuery struct {
	StartDate string  `form:"startDate" binding:"required"`
	EndDate   string  `form:"endDate" binding:"required"`
	ItemID    *string `form:"itemId"`
	Type      *string `form:"type"`
	BatchCode *string `form:"batchCode"`
}

type expiringStockQuery struct {
	Status              string  `form:"status"`
	DaysUntilExpiration *int    `form:"daysUntilExpiration" binding:"omitempty,gte=0,lte=3650"`
	ItemID              *string `form:"itemId"`
}

func currentStockHandler(service *application.ReportService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var q currentStockQuery
		if appErr := api.BindQueryAndValidate(c, &q); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		page, err := service.CurrentStock(c.Request.Context(), application.CurrentStockQuery{
			OwnerID:  middleware.GetOwnerID(c),
			Page:     api.ParsePagination(c),
			ItemID:   q.ItemID,
			ItemName: q.ItemName,
			MinQty:   q.MinQuantity,
			MaxQty:   q.MaxQuantity,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func movementHistoryHandler(service *application.ReportService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var q movementHistoryQuery
		if appErr := api.BindQueryAndValidate(c, &q); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		start, err := parseDate(q.StartDate, false)
		if err != nil {
			responder.RespondValidationError("validation failed", map[string]string{"startDate": dateFormatMessage})
			return
		}
		end, err := parseDate(q.EndDate, true)
		if err != nil {
			responder.RespondValidationError("validation failed", map[string]string{"endDate": dateFormatMessage})
			return
		}

		page, err := service.MovementHistory(c.Request.Context(), application.MovementHistoryQuery{
			OwnerID:   middleware.GetOwnerID(c),
			Page:      api.ParsePagination(c),
			StartDate: start,
			EndDate:   end,
			ItemID:    q.ItemID,
			Type:      q.Type,
			BatchCode: q.BatchCode,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func expiringStockHandler(service *application.ReportService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var q expiringStockQuery
		if appErr := api.BindQueryAndValidate(c, &q); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		page, err := service.ExpiringStock(c.Request.Context(), application.ExpiringStockQuery{
			OwnerID:             middleware.GetOwnerID(c),
			Page:                api.ParsePagination(c),
			Status:              q.Status,
			DaysUntilExpiration: q.DaysUntilExpiration,
			ItemID:              q.ItemID,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

const dateFormatMessage = "must be an RFC 3339 timestamp or a YYYY-MM-DD date"

// parseDate accepts a timestamp or a calendar date in UTC. A date used as
// the end of a range covers the whole day.
func parseDate(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
