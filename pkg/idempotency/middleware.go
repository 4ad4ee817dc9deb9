package idempotency

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// HeaderIdempotencyKey is the HTTP header name for the idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderIdempotentReplayed marks a response served from the cache
	HeaderIdempotentReplayed = "Idempotent-Replayed"
)

// responseWriter wraps gin.ResponseWriter to capture response data
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

// Middleware returns a Gin middleware for idempotency
func Middleware(config *Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.OnlyMutating && !isMutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if config.RequireKey {
				abort(c, http.StatusBadRequest, "IDEMPOTENCY_KEY_REQUIRED", "Idempotency-Key header is required for this operation")
				return
			}
			c.Next()
			return
		}

		if err := ValidateKeyWithMaxLength(key, config.MaxKeyLength); err != nil {
			abort(c, http.StatusBadRequest, "IDEMPOTENCY_KEY_INVALID", fmt.Sprintf("invalid idempotency key: %v", err))
			return
		}

		var ownerID string
		if config.OwnerIDExtractor != nil {
			ownerID = config.OwnerIDExtractor(c)
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		processIdempotency(c, config, key, ownerID, ComputeFingerprint(c.Request.Method, c.FullPath(), requestBody))
	}
}

func processIdempotency(c *gin.Context, config *Config, key, ownerID, fingerprint string) {
	ctx := c.Request.Context()
	log := config.logger().With("key", key, "ownerId", ownerID, "path", c.FullPath())
	labels := []string{config.ServiceName, c.FullPath(), c.Request.Method}
	now := time.Now().UTC()

	candidate := &IdempotencyKey{
		ID:                 uuid.NewString(),
		Key:                key,
		OwnerID:            ownerID,
		ServiceID:          config.ServiceName,
		RequestPath:        c.Request.URL.Path,
		RequestMethod:      c.Request.Method,
		RequestFingerprint: fingerprint,
		CreatedAt:          now,
		ExpiresAt:          now.Add(config.RetentionPeriod),
	}

	stored, isNew, err := config.Repository.AcquireLock(ctx, candidate)
	if err != nil {
		log.Error("Failed to acquire idempotency lock", "error", err)
		config.Metrics.inc(storageErrors, config.ServiceName, "acquire_lock")
		abort(c, http.StatusServiceUnavailable, "IDEMPOTENCY_STORAGE_UNAVAILABLE", "idempotency storage is temporarily unavailable")
		return
	}

	if !isNew && stored.RequestFingerprint != fingerprint {
		log.Warn("Idempotency parameter mismatch")
		config.Metrics.inc(parameterMismatches, labels...)
		abort(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_PARAMETER_MISMATCH", "request parameters differ from the original request with this idempotency key")
		return
	}

	if stored.IsCompleted() {
		log.Info("Idempotency cache hit", "statusCode", stored.ResponseCode)
		config.Metrics.inc(hits, labels...)

		for k, v := range stored.ResponseHeaders {
			c.Header(k, v)
		}
		c.Header(HeaderIdempotentReplayed, "true")
		c.Data(stored.ResponseCode, "application/json; charset=utf-8", stored.ResponseBody)
		c.Abort()
		return
	}

	if !isNew && stored.IsLocked() {
		if lockAge := time.Since(*stored.LockedAt); lockAge < config.LockTimeout {
			log.Warn("Concurrent idempotency request", "lockAge", lockAge)
			config.Metrics.inc(concurrentRequests, labels...)
			abort(c, http.StatusConflict, "IDEMPOTENCY_CONCURRENT_REQUEST", "a request with this idempotency key is currently being processed")
			return
		}
		log.Info("Stale idempotency lock, reprocessing")
	}

	config.Metrics.inc(misses, labels...)

	writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
	c.Writer = writer

	c.Next()

	status := writer.Status()

	// Conflicts and server errors are not final: forget the key so the client
	// can retry the same request.
	if status == http.StatusConflict || status >= http.StatusInternalServerError {
		if err := config.Repository.ReleaseLock(ctx, stored.ID); err != nil {
			log.Error("Failed to release idempotency key", "error", err)
			config.Metrics.inc(storageErrors, config.ServiceName, "release_lock")
			return
		}
		config.Metrics.inc(released, labels...)
		return
	}

	responseBody := writer.body.Bytes()
	if len(responseBody) > config.MaxResponseSize {
		log.Warn("Response too large to cache", "size", len(responseBody), "maxSize", config.MaxResponseSize)
		responseBody = []byte(fmt.Sprintf(`{"code":"RESPONSE_NOT_CACHED","message":"response too large to cache","size":%d}`, len(responseBody)))
	}

	if err := config.Repository.StoreResponse(ctx, stored.ID, status, responseBody, extractResponseHeaders(c)); err != nil {
		log.Error("Failed to store idempotency response", "error", err)
		config.Metrics.inc(storageErrors, config.ServiceName, "store_response")
	}
}

func isMutatingMethod(method string) bool {
	return method == http.MethodPost ||
		method == http.MethodPut ||
		method == http.MethodPatch ||
		method == http.MethodDelete
}

func extractResponseHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string)
	for k, v := range c.Writer.Header() {
		if len(v) > 0 && k != "Content-Length" {
			headers[k] = v[0]
		}
	}
	return headers
}
