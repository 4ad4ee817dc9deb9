package idempotency

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// mockKeyRepository is a mock implementation of KeyRepository for testing
type mockKeyRepository struct {
	acquireLockFunc func(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error)
	stored          map[string]int
	released        []string
}

func (m *mockKeyRepository) AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	if m.acquireLockFunc != nil {
		return m.acquireLockFunc(ctx, key)
	}
	now := time.Now()
	key.LockedAt = &now
	return key, true, nil
}

func (m *mockKeyRepository) ReleaseLock(_ context.Context, keyID string) error {
	m.released = append(m.released, keyID)
	return nil
}

func (m *mockKeyRepository) StoreResponse(_ context.Context, keyID string, responseCode int, _ []byte, _ map[string]string) error {
	if m.stored == nil {
		m.stored = map[string]int{}
	}
	m.stored[keyID] = responseCode
	return nil
}

func (m *mockKeyRepository) Clean(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newRouter(config *Config, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(config))
	router.POST("/api/v1/movements", func(c *gin.Context) {
		c.JSON(status, gin.H{"data": "done"})
	})
	router.GET("/api/v1/movements", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": []string{}})
	})
	return router
}

func post(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/movements", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func completedKey(fingerprint string, body []byte) func(context.Context, *IdempotencyKey) (*IdempotencyKey, bool, error) {
	return func(_ context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
		completedAt := time.Now().UTC()
		return &IdempotencyKey{
			ID:                 "existing",
			Key:                key.Key,
			RequestFingerprint: fingerprint,
			ResponseCode:       http.StatusCreated,
			ResponseBody:       body,
			CompletedAt:        &completedAt,
		}, false, nil
	}
}

func TestMiddleware_NoKey(t *testing.T) {
	config := DefaultConfig("test-service", &mockKeyRepository{})

	if w := post(newRouter(config, http.StatusCreated), "", `{}`); w.Code != http.StatusCreated {
		t.Errorf("optional mode: expected 201, got %d", w.Code)
	}

	config.RequireKey = true
	if w := post(newRouter(config, http.StatusCreated), "", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("required mode: expected 400, got %d", w.Code)
	}
}

func TestMiddleware_InvalidKey(t *testing.T) {
	config := DefaultConfig("test-service", &mockKeyRepository{})

	if w := post(newRouter(config, http.StatusCreated), "invalid key with spaces", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestMiddleware_NewRequestStoresResponse(t *testing.T) {
	repo := &mockKeyRepository{}
	config := DefaultConfig("test-service", repo)
	config.Metrics = NewMetrics(prometheus.NewRegistry())
	config.OwnerIDExtractor = func(*gin.Context) string { return "owner-1" }

	var seenOwner string
	repo.acquireLockFunc = func(_ context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
		seenOwner = key.OwnerID
		return key, true, nil
	}

	w := post(newRouter(config, http.StatusCreated), "key-1", `{"quantity":5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	if seenOwner != "owner-1" {
		t.Errorf("expected key scoped to owner-1, got %q", seenOwner)
	}
	if len(repo.stored) != 1 {
		t.Errorf("expected the response to be stored, got %v", repo.stored)
	}
}

func TestMiddleware_CachedResponse(t *testing.T) {
	body := `{"quantity":5}`
	cached := []byte(`{"data":"cached"}`)
	fp := ComputeFingerprint(http.MethodPost, "/api/v1/movements", []byte(body))
	config := DefaultConfig("test-service", &mockKeyRepository{acquireLockFunc: completedKey(fp, cached)})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(config))
	router.POST("/api/v1/movements", func(c *gin.Context) {
		t.Error("Handler should not be called for cached response")
	})

	w := post(router, "key-1", body)
	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}
	if w.Body.String() != string(cached) {
		t.Errorf("Expected cached response, got %s", w.Body.String())
	}
	if w.Header().Get(HeaderIdempotentReplayed) != "true" {
		t.Errorf("expected replay header")
	}
}

func TestMiddleware_ParameterMismatch(t *testing.T) {
	fp := ComputeFingerprint(http.MethodPost, "/api/v1/movements", []byte(`{"quantity":5}`))
	config := DefaultConfig("test-service", &mockKeyRepository{acquireLockFunc: completedKey(fp, nil)})

	if w := post(newRouter(config, http.StatusCreated), "key-1", `{"quantity":6}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status 422, got %d", w.Code)
	}
}

func TestMiddleware_ConcurrentRequest(t *testing.T) {
	body := `{"quantity":5}`
	fp := ComputeFingerprint(http.MethodPost, "/api/v1/movements", []byte(body))
	repo := &mockKeyRepository{
		acquireLockFunc: func(_ context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
			lockedAt := time.Now().UTC()
			return &IdempotencyKey{ID: "other", Key: key.Key, RequestFingerprint: fp, LockedAt: &lockedAt}, false, nil
		},
	}
	config := DefaultConfig("test-service", repo)

	if w := post(newRouter(config, http.StatusCreated), "key-1", body); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestMiddleware_ReleasesKeyOnRetryableFailure(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusServiceUnavailable} {
		repo := &mockKeyRepository{}
		config := DefaultConfig("test-service", repo)

		w := post(newRouter(config, status), "key-1", `{}`)
		if w.Code != status {
			t.Fatalf("expected handler status %d, got %d", status, w.Code)
		}
		if len(repo.released) != 1 || len(repo.stored) != 0 {
			t.Errorf("status %d: expected key released and nothing stored, got released=%v stored=%v", status, repo.released, repo.stored)
		}
	}
}

func TestMiddleware_StorageFailure(t *testing.T) {
	repo := &mockKeyRepository{
		acquireLockFunc: func(context.Context, *IdempotencyKey) (*IdempotencyKey, bool, error) {
			return nil, false, errors.New("database connection failed")
		},
	}
	config := DefaultConfig("test-service", repo)

	if w := post(newRouter(config, http.StatusCreated), "key-1", `{}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestMiddleware_SkipGETRequest(t *testing.T) {
	repo := &mockKeyRepository{
		acquireLockFunc: func(context.Context, *IdempotencyKey) (*IdempotencyKey, bool, error) {
			t.Error("AcquireLock should not be called for GET request")
			return nil, false, errors.New("should not be called")
		},
	}
	router := newRouter(DefaultConfig("test-service", repo), http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/movements", nil)
	req.Header.Set(HeaderIdempotencyKey, "key-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}
