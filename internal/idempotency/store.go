package idempotency

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"github.com/cyderes/wod-ingestion-service/internal/config"
	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// ErrMalformedRecord is returned by stores that read a record they cannot decode.
var ErrMalformedRecord = errors.New("malformed idempotency record")

// Store persists idempotency records. Get returns nil, nil when no record
// exists. Put overwrites.
type Store interface {
	Get(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	Put(ctx context.Context, record models.IdempotencyRecord) error
}

// Claimer is implemented by stores that can write a record atomically only
// when no live record exists, closing the gap between lookup and write.
type Claimer interface {
	// Claim writes record unless a record with the same key exists and has
	// not expired. It reports whether the write happened.
	Claim(ctx context.Context, record models.IdempotencyRecord) (bool, error)
	// Release removes a pending claim so the operation can be retried.
	Release(ctx context.Context, record models.IdempotencyRecord) error
}

// NewStore creates the idempotency store selected by configuration. An empty
// backend returns a nil Store; guards then skip checks and log a warning.
func NewStore(ctx context.Context, cfg config.IdempotencyConfig) (Store, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryStore(), nil
	case "dynamodb":
		awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
		if cfg.Endpoint != "" {
			awsConfig.Endpoint = aws.String(cfg.Endpoint)
		}
		sess, err := session.NewSession(awsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		store := NewDynamoDBStore(dynamodb.New(sess), cfg.TableName)
		if cfg.CreateTable {
			if err := store.EnsureTable(ctx); err != nil {
				return nil, fmt.Errorf("failed to ensure idempotency table exists: %w", err)
			}
		}
		return store, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return NewRedisStore(redis.NewClient(opts), cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported idempotency backend: %s", cfg.Backend)
	}
}
