package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// releaseScript deletes a key only while it still holds the given claim.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps records as JSON values whose Redis expiry mirrors the record TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a store on client. Keys are written as prefix+key.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns the record or nil when the key is absent.
func (r *RedisStore) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	var rec models.IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return &rec, nil
}

// Put overwrites the record and sets its expiry.
func (r *RedisStore) Put(ctx context.Context, record models.IdempotencyRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+record.IdempotencyKey, payload, expiry(record)).Err(); err != nil {
		return fmt.Errorf("failed to put idempotency record: %w", err)
	}
	return nil
}

// Claim uses SET NX; expired records are already gone from Redis.
func (r *RedisStore) Claim(ctx context.Context, record models.IdempotencyRecord) (bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.prefix+record.IdempotencyKey, payload, expiry(record)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency record: %w", err)
	}
	return ok, nil
}

// Release removes the claim if nothing replaced it.
func (r *RedisStore) Release(ctx context.Context, record models.IdempotencyRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + record.IdempotencyKey}, string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency record: %w", err)
	}
	return nil
}

func expiry(record models.IdempotencyRecord) time.Duration {
	d := time.Until(time.Unix(record.TTL, 0))
	if d < time.Second {
		return time.Second
	}
	return d
}
