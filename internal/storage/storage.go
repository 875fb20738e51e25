package storage

import (
	"context"
	"fmt"

	"github.com/cyderes/wod-ingestion-service/internal/config"
	"github.com/cyderes/wod-ingestion-service/internal/models"
)

const statusID = "ingestion_status"

// Storage interface defines the contract for session record storage
type Storage interface {
	// PutSession writes one record under its (date, session) key, replacing any previous version.
	PutSession(ctx context.Context, record models.DateRecord) error
	UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error
	GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error)
	Close() error
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "dynamodb":
		return NewDynamoDBStorage(cfg)
	case "mongodb":
		return NewMongoDBStorage(cfg)
	case "postgresql":
		return NewPostgreSQLStorage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func neverRun() *models.IngestionStatus {
	return &models.IngestionStatus{Status: "never_run"}
}
