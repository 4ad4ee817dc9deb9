package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/lot-ledger/internal/application"
	"github.com/wms-platform/lot-ledger/internal/infrastructure/memory"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/metrics"
	"github.com/wms-platform/lot-ledger/pkg/middleware"
)

const testOwner = "owner-http"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.InitValidator()

	logger := logging.NewNop()
	store := memory.NewStore()
	ledger := application.NewLedgerService(store.Scope(), logger, metrics.NewNop())

	router := gin.New()
	router.Use(middleware.RequestID())
	v1 := router.Group("/api/v1", middleware.OwnerAuth(middleware.DefaultOwnerAuthConfig()))
	RegisterRoutes(v1, Services{
		Items:     application.NewItemService(store, logger),
		Movements: application.NewMovementService(ledger, store, logger),
		Reports:   application.NewReportService(store, logger),
	}, logger)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderOwnerID, testOwner)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	return envelope.Data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Code
}

func createItem(t *testing.T, router *gin.Engine, name, sku string) application.ItemDTO {
	t.Helper()
	w := do(t, router, http.MethodPost, "/api/v1/items", gin.H{"name": name, "sku": sku, "profitMargin": "0.25"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeData[application.ItemDTO](t, w)
}

func TestItemLifecycle(t *testing.T) {
	router := newTestRouter(t)

	item := createItem(t, router, "Olive oil", "OIL-1")
	assert.Equal(t, testOwner, item.OwnerID)
	assert.Equal(t, "0.0000", item.UnitCost)

	w := do(t, router, http.MethodPost, "/api/v1/items", gin.H{"name": "Other", "sku": "OIL-1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_SKU", errorCode(t, w))

	w = do(t, router, http.MethodPatch, "/api/v1/items/"+item.ID, gin.H{"name": "Extra virgin olive oil"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Extra virgin olive oil", decodeData[application.ItemDTO](t, w).Name)

	w = do(t, router, http.MethodGet, "/api/v1/items", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData[[]application.ItemDTO](t, w), 1)

	w = do(t, router, http.MethodDelete, "/api/v1/items/"+item.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/items/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ITEM_NOT_FOUND", errorCode(t, w))
}

func TestCreateItemValidation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body gin.H
	}{
		{name: "missing name", body: gin.H{"sku": "A"}},
		{name: "missing sku", body: gin.H{"name": "A"}},
		{name: "negative margin", body: gin.H{"name": "A", "sku": "A", "profitMargin": "-1"}},
		{name: "non numeric margin", body: gin.H{"name": "A", "sku": "A", "profitMargin": "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/v1/items", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
		})
	}
}

func TestRecordMovements(t *testing.T) {
	router := newTestRouter(t)
	item := createItem(t, router, "Rice", "RICE-1")

	record := func(body gin.H) *httptest.ResponseRecorder {
		body["itemId"] = item.ID
		return do(t, router, http.MethodPost, "/api/v1/movements", body)
	}

	w := record(gin.H{"type": "ENTRY", "quantity": 10, "unitCost": "4", "batchCode": "R-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decodeData[application.MovementResultDTO](t, w)
	assert.Equal(t, int64(10), entry.Item.OnHandQty)
	assert.Equal(t, "4.0000", entry.Item.UnitCost)

	w = record(gin.H{"type": "entry", "quantity": 5, "unitCost": "7", "batchCode": "R-2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "5.0000", decodeData[application.MovementResultDTO](t, w).Item.UnitCost)

	w = record(gin.H{"type": "ENTRY", "quantity": 1, "unitCost": "1", "batchCode": "R-1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_BATCH", errorCode(t, w))

	w = record(gin.H{"type": "SALE", "quantity": 12, "unitCost": "9.50"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sale := decodeData[application.MovementResultDTO](t, w)
	assert.Equal(t, "R-1,R-2", sale.Movement.BatchCode)
	require.Len(t, sale.LotsUsed, 2)
	assert.Equal(t, int64(3), sale.Item.OnHandQty)

	w = record(gin.H{"type": "SALE", "quantity": 4, "unitCost": "9.50"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", errorCode(t, w))

	w = record(gin.H{"type": "EXIT", "quantity": 4, "batchCode": "R-2"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "EXCEEDS_LOT_STOCK", errorCode(t, w))

	w = record(gin.H{"type": "EXPIRATION", "quantity": 1, "batchCode": "NOPE"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "BATCH_NOT_FOUND", errorCode(t, w))

	w = do(t, router, http.MethodGet, "/api/v1/movements/entries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decodeData[[]application.MovementDTO](t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, "R-2", entries[0].BatchCode)

	w = do(t, router, http.MethodGet, "/api/v1/movements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData[[]application.MovementDTO](t, w), 3)
}

func TestRecordMovementValidation(t *testing.T) {
	router := newTestRouter(t)
	item := createItem(t, router, "Salt", "SALT-1")

	tests := []struct {
		name string
		body gin.H
	}{
		{name: "unknown type", body: gin.H{"itemId": item.ID, "type": "TRANSFER", "quantity": 1}},
		{name: "zero quantity", body: gin.H{"itemId": item.ID, "type": "ENTRY", "quantity": 0, "batchCode": "S"}},
		{name: "quantity over limit", body: gin.H{"itemId": item.ID, "type": "ENTRY", "quantity": int64(1_000_000_000_001), "batchCode": "S"}},
		{name: "missing item", body: gin.H{"type": "SALE", "quantity": 1}},
		{name: "bad batch code", body: gin.H{"itemId": item.ID, "type": "ENTRY", "quantity": 1, "batchCode": "has space"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/v1/movements", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w := do(t, router, http.MethodPost, "/api/v1/movements", gin.H{"itemId": "missing", "type": "SALE", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ITEM_NOT_FOUND", errorCode(t, w))
}

func TestUpdateAndDeactivateMovement(t *testing.T) {
	router := newTestRouter(t)
	item := createItem(t, router, "Milk", "MILK-1")

	w := do(t, router, http.MethodPost, "/api/v1/movements",
		gin.H{"itemId": item.ID, "type": "ENTRY", "quantity": 2, "unitCost": "1.10", "batchCode": "M-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	movementID := decodeData[application.MovementResultDTO](t, w).Movement.ID

	exp := time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)
	w = do(t, router, http.MethodPatch, "/api/v1/movements/"+movementID,
		gin.H{"description": "cold room", "expirationDate": exp.Format(time.RFC3339)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeData[application.MovementDTO](t, w)
	assert.Equal(t, "cold room", updated.Description)
	require.NotNil(t, updated.ExpirationDate)
	assert.True(t, exp.Equal(*updated.ExpirationDate))

	w = do(t, router, http.MethodGet, "/api/v1/movements/entries/by-expiration", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData[[]application.MovementDTO](t, w), 1)

	w = do(t, router, http.MethodDelete, "/api/v1/movements/"+movementID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/api/v1/movements/"+movementID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "MOVEMENT_NOT_FOUND", errorCode(t, w))
}

func TestReports(t *testing.T) {
	router := newTestRouter(t)
	item := createItem(t, router, "Beans", "BEAN-1")
	createItem(t, router, "Lentils", "LEN-1")

	soon := time.Now().UTC().Add(48 * time.Hour)
	w := do(t, router, http.MethodPost, "/api/v1/movements", gin.H{
		"itemId": item.ID, "type": "ENTRY", "quantity": 8, "unitCost": "2.5",
		"batchCode": "B-1", "expirationDate": soon.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	t.Run("current stock", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/reports/current-stock?minQuantity=1", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var page struct {
			Data  []application.CurrentStockRowDTO `json:"data"`
			Total int64                            `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.Equal(t, int64(1), page.Total)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "20.0000", page.Data[0].CurrentTotalValue)
	})

	t.Run("current stock rejects inverted range", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/reports/current-stock?minQuantity=5&maxQuantity=1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("movement history by calendar date", func(t *testing.T) {
		today := time.Now().UTC().Format(time.DateOnly)
		w := do(t, router, http.MethodGet, "/api/v1/reports/movement-history?startDate="+today+"&endDate="+today, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var page struct {
			Data []application.MovementHistoryRowDTO `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		require.Len(t, page.Data, 1)
		assert.Equal(t, "Beans", page.Data[0].ProductName)
	})

	t.Run("movement history requires dates", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/reports/movement-history", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, router, http.MethodGet, "/api/v1/reports/movement-history?startDate=yesterday&endDate=2030-01-01", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("expiring soon", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/reports/expiring-stock?status=expiring-soon&daysUntilExpiration=5", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var page struct {
			Data []application.ExpiringStockRowDTO `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.Len(t, page.Data, 1)
	})

	t.Run("expiring rejects unknown status", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/reports/expiring-stock?status=later", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestParseDate(t *testing.T) {
	start, err := parseDate("2026-03-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)

	end, err := parseDate("2026-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 23, 59, 59, 999999999, time.UTC), end)

	ts, err := parseDate("2026-03-01T10:00:00+02:00", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), ts)

	_, err = parseDate("03/01/2026", false)
	assert.Error(t, err)
}
