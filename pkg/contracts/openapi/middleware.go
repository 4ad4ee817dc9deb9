package openapi

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wms-platform/lot-ledger/pkg/errors"
	"github.com/wms-platform/lot-ledger/pkg/middleware"
)

// RequestValidator rejects requests that do not match the contract with a
// VALIDATION_ERROR response. Undocumented routes pass through untouched.
func RequestValidator(v *Validator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := v.ValidateRequest(c.Request.Context(), c.Request)
		if err == nil || errors.Is(err, ErrRouteNotFound) {
			c.Next()
			return
		}

		logger.Debug("Request rejected by contract",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		middleware.AbortWithAppError(c, apperrors.ErrValidation(err.Error()))
	}
}
