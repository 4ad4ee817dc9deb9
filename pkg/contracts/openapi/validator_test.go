package openapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/lot-ledger/docs"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidatorFromBytes(docs.OpenAPI)
	require.NoError(t, err)
	return v
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestValidateRequest(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name    string
		req     *http.Request
		wantErr bool
	}{
		{
			name: "entry movement",
			req:  jsonRequest(http.MethodPost, "/api/v1/movements", `{"itemId":"i-1","type":"ENTRY","quantity":10,"unitCost":"2.5","batchCode":"L1"}`),
		},
		{
			name: "sale without batch",
			req:  jsonRequest(http.MethodPost, "/api/v1/movements", `{"itemId":"i-1","type":"SALE","quantity":3}`),
		},
		{
			name:    "unknown movement type",
			req:     jsonRequest(http.MethodPost, "/api/v1/movements", `{"itemId":"i-1","type":"RETURN","quantity":3}`),
			wantErr: true,
		},
		{
			name:    "zero quantity",
			req:     jsonRequest(http.MethodPost, "/api/v1/movements", `{"itemId":"i-1","type":"SALE","quantity":0}`),
			wantErr: true,
		},
		{
			name:    "negative cost",
			req:     jsonRequest(http.MethodPost, "/api/v1/movements", `{"itemId":"i-1","type":"ENTRY","quantity":1,"unitCost":"-1","batchCode":"L1"}`),
			wantErr: true,
		},
		{
			name: "history report",
			req:  httptest.NewRequest(http.MethodGet, "/api/v1/reports/movement-history?startDate=2026-01-01&endDate=2026-02-01&type=SALE", nil),
		},
		{
			name:    "history report without range",
			req:     httptest.NewRequest(http.MethodGet, "/api/v1/reports/movement-history", nil),
			wantErr: true,
		},
		{
			name:    "page size above limit",
			req:     httptest.NewRequest(http.MethodGet, "/api/v1/reports/current-stock?pageSize=500", nil),
			wantErr: true,
		},
		{
			name: "entries route is not an id",
			req:  httptest.NewRequest(http.MethodGet, "/api/v1/movements/entries", nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRequest(context.Background(), tt.req)
			if tt.wantErr {
				assert.Error(t, err)
				assert.NotErrorIs(t, err, ErrRouteNotFound)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateRequestRestoresBody(t *testing.T) {
	v := newTestValidator(t)
	body := `{"name":"Shampoo","sku":"SH-001"}`
	req := jsonRequest(http.MethodPost, "/api/v1/items", body)

	require.NoError(t, v.ValidateRequest(context.Background(), req))

	read, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(read))
}

func TestGetOperationID(t *testing.T) {
	v := newTestValidator(t)

	id, err := v.GetOperationID(httptest.NewRequest(http.MethodDelete, "/api/v1/items/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, "deactivateItem", id)

	_, err = v.GetOperationID(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.ErrorIs(t, err, ErrRouteNotFound)

	assert.Contains(t, v.GetPaths(), "/api/v1/reports/expiring-stock")
}

func TestRequestValidatorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := newTestValidator(t)

	router := gin.New()
	router.Use(RequestValidator(v, slog.New(slog.NewTextHandler(io.Discard, nil))))
	router.POST("/api/v1/items", func(c *gin.Context) { c.Status(http.StatusCreated) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/items", `{"name":"Shampoo"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/items", `{"name":"Shampoo","sku":"SH-001"}`))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
