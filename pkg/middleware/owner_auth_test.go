package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/lot-ledger/pkg/errors"
	"github.com/wms-platform/lot-ledger/pkg/tenant"
)

func newTestRouter(config *OwnerAuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), OwnerAuth(config))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"gin": GetOwnerID(c),
			"ctx": tenant.OwnerID(c.Request.Context()),
		})
	})
	return router
}

func TestOwnerAuth(t *testing.T) {
	tests := []struct {
		name           string
		config         *OwnerAuthConfig
		header         string
		expectedStatus int
		expectedOwner  string
	}{
		{name: "header present", config: DefaultOwnerAuthConfig(), header: "owner-1", expectedStatus: http.StatusOK, expectedOwner: "owner-1"},
		{name: "default owner", config: DefaultOwnerAuthConfig(), expectedStatus: http.StatusOK, expectedOwner: tenant.DefaultOwnerID},
		{name: "required and missing", config: &OwnerAuthConfig{Required: true}, expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.config)
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set(HeaderOwnerID, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				var resp APIErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, errors.CodeUnauthorized, resp.Code)
				return
			}

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedOwner, body["gin"])
			assert.Equal(t, tt.expectedOwner, body["ctx"])
		})
	}
}

func TestErrorResponder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"app error", errors.ErrInsufficientStock(), http.StatusUnprocessableEntity, errors.CodeInsufficientStock},
		{"retryable conflict", errors.ErrTransactionConflict(), http.StatusConflict, errors.CodeTransactionConflict},
		{"plain error", io.ErrUnexpectedEOF, http.StatusInternalServerError, errors.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(RequestID())
			router.GET("/fail", func(c *gin.Context) {
				NewErrorResponder(c, logger).RespondWithError(tt.err)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp APIErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedCode, resp.Code)
			assert.NotEmpty(t, resp.RequestID)
			assert.Equal(t, "/fail", resp.Path)
		})
	}
}
