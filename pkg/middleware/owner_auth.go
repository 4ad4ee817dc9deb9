package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/wms-platform/lot-ledger/pkg/errors"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/tenant"
)

const (
	// HeaderOwnerID carries the owner every item and movement is scoped to
	HeaderOwnerID = "X-Owner-ID"

	ContextKeyOwnerID = "ownerId"
)

// OwnerAuthConfig holds configuration for the owner scoping middleware
type OwnerAuthConfig struct {
	// Required rejects requests without an owner header
	Required bool

	// DefaultOwnerID is used when the header is missing and Required is false
	DefaultOwnerID string
}

// DefaultOwnerAuthConfig returns a configuration that falls back to the default owner
func DefaultOwnerAuthConfig() *OwnerAuthConfig {
	return &OwnerAuthConfig{
		Required:       false,
		DefaultOwnerID: tenant.DefaultOwnerID,
	}
}

// OwnerAuth extracts the owner from the request and stores it in both the Go
// and the Gin context
func OwnerAuth(config *OwnerAuthConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultOwnerAuthConfig()
	}

	return func(c *gin.Context) {
		ownerID := c.GetHeader(HeaderOwnerID)
		if ownerID == "" {
			if config.Required {
				AbortWithAppError(c, errors.ErrUnauthorized("owner context is required"))
				return
			}
			ownerID = config.DefaultOwnerID
		}

		ctx := tenant.ToContext(c.Request.Context(), &tenant.Context{OwnerID: ownerID})
		ctx = logging.ContextWithOwnerID(ctx, ownerID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(ContextKeyOwnerID, ownerID)

		c.Next()
	}
}

// GetOwnerID returns the owner resolved by OwnerAuth
func GetOwnerID(c *gin.Context) string {
	return c.GetString(ContextKeyOwnerID)
}
