package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wms-platform/lot-ledger/pkg/idempotency"
)

// IdempotencyKeyRepository implements idempotency.KeyRepository on the
// idempotency_keys table
type IdempotencyKeyRepository struct {
	pool *pgxpool.Pool
}

var _ idempotency.KeyRepository = (*IdempotencyKeyRepository)(nil)

// NewIdempotencyKeyRepository creates a Postgres-backed key repository
func NewIdempotencyKeyRepository(pool *pgxpool.Pool) *IdempotencyKeyRepository {
	return &IdempotencyKeyRepository{pool: pool}
}

const idempotencyColumns = `id, key, owner_id, service_id, request_path, request_method, request_fingerprint,
	locked_at, response_code, response_body, response_headers, created_at, completed_at, expires_at`

// AcquireLock inserts the key unless (service, owner, key) already exists.
// An existing unfinished key whose lock went stale is locked again.
func (r *IdempotencyKeyRepository) AcquireLock(ctx context.Context, key *idempotency.IdempotencyKey) (*idempotency.IdempotencyKey, bool, error) {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (id, key, owner_id, service_id, request_path, request_method,
			request_fingerprint, locked_at, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (service_id, owner_id, key) DO NOTHING`,
		key.ID, key.Key, key.OwnerID, key.ServiceID, key.RequestPath, key.RequestMethod,
		key.RequestFingerprint, now, key.CreatedAt.UTC(), key.ExpiresAt.UTC())
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 1 {
		created := *key
		created.LockedAt = &now
		return &created, true, nil
	}

	stored, err := r.find(ctx, key.ServiceID, key.OwnerID, key.Key)
	if err != nil {
		return nil, false, err
	}
	if stored.IsLocked() && now.Sub(*stored.LockedAt) >= idempotency.DefaultLockTimeout {
		if _, err := r.pool.Exec(ctx,
			`UPDATE idempotency_keys SET locked_at = $2 WHERE id = $1 AND completed_at IS NULL`,
			stored.ID, now); err != nil {
			return nil, false, err
		}
	}
	return stored, false, nil
}

func (r *IdempotencyKeyRepository) find(ctx context.Context, serviceID, ownerID, key string) (*idempotency.IdempotencyKey, error) {
	var (
		k            idempotency.IdempotencyKey
		responseCode *int
	)
	err := r.pool.QueryRow(ctx, `SELECT `+idempotencyColumns+` FROM idempotency_keys
		WHERE service_id = $1 AND owner_id = $2 AND key = $3`, serviceID, ownerID, key).
		Scan(&k.ID, &k.Key, &k.OwnerID, &k.ServiceID, &k.RequestPath, &k.RequestMethod,
			&k.RequestFingerprint, &k.LockedAt, &responseCode, &k.ResponseBody, &k.ResponseHeaders,
			&k.CreatedAt, &k.CompletedAt, &k.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// deleted by ReleaseLock between the insert and the read
		return nil, errors.New("idempotency key released concurrently")
	}
	if err != nil {
		return nil, err
	}
	if responseCode != nil {
		k.ResponseCode = *responseCode
	}
	return &k, nil
}

// ReleaseLock deletes the key so a retry starts fresh
func (r *IdempotencyKeyRepository) ReleaseLock(ctx context.Context, keyID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE id = $1`, keyID)
	return err
}

// StoreResponse stores the final response for a completed request
func (r *IdempotencyKeyRepository) StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error {
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE idempotency_keys
		SET response_code = $2, response_body = $3, response_headers = $4, completed_at = $5, locked_at = NULL
		WHERE id = $1`,
		keyID, responseCode, responseBody, headers, time.Now().UTC())
	return err
}

// Clean removes keys that expired before the given time
func (r *IdempotencyKeyRepository) Clean(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
