// Package objectstore stores raw post dumps and weekly session archives.
package objectstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/cyderes/wod-ingestion-service/internal/config"
)

// Object is a blob to write.
type Object struct {
	Key         string
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// ObjectStore interface defines the contract for object storage
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, obj Object) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// NewObjectStore creates a new object store instance based on configuration
func NewObjectStore(cfg config.ObjectStoreConfig) (ObjectStore, error) {
	switch cfg.Type {
	case "s3":
		awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
		if cfg.Endpoint != "" {
			awsConfig.Endpoint = aws.String(cfg.Endpoint)
			awsConfig.S3ForcePathStyle = aws.Bool(true)
		}
		sess, err := session.NewSession(awsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		return NewS3Store(s3.New(sess), cfg.Bucket), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported object store type: %s", cfg.Type)
	}
}
