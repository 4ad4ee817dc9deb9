package idempotency

import (
	"context"
	"time"
)

// KeyRepository manages idempotency keys for REST APIs.
// AcquireLock must be atomic per (owner, key).
type KeyRepository interface {
	// AcquireLock inserts key if absent and locks it. It returns the stored key
	// and whether this call created it.
	AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error)

	// ReleaseLock forgets a key so the request can be retried with it
	ReleaseLock(ctx context.Context, keyID string) error

	// StoreResponse marks the key completed and caches the response
	StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error

	// Clean removes keys that expired before the given time
	Clean(ctx context.Context, before time.Time) (int64, error)
}
