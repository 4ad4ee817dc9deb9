package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/wms-platform/lot-ledger/pkg/logging"
)

func newSetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	Setup(router, DefaultConfig(logging.NewNop()))
	router.POST("/movements", func(c *gin.Context) { c.Status(http.StatusCreated) })
	return router
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		contentType    string
		body           string
		expectedStatus int
	}{
		{"json body", http.MethodPost, "application/json", `{"type":"SALE"}`, http.StatusCreated},
		{"non json body", http.MethodPost, "text/plain", "SALE 3", http.StatusUnsupportedMediaType},
		{"preflight", http.MethodOptions, "", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/movements", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			newSetupRouter().ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
		})
	}
}
