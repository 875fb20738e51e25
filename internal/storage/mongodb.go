package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cyderes/wod-ingestion-service/internal/config"
	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// MongoDBStorage implements Storage interface using MongoDB
type MongoDBStorage struct {
	client   *mongo.Client
	sessions *mongo.Collection
	status   *mongo.Collection
}

// sessionDocument stores a record under its composite key
type sessionDocument struct {
	ID                string `bson:"_id"`
	models.DateRecord `bson:",inline"`
}

type statusDocument struct {
	ID                     string `bson:"_id"`
	models.IngestionStatus `bson:",inline"`
}

// NewMongoDBStorage connects to MongoDB and returns a storage instance
func NewMongoDBStorage(cfg config.StorageConfig) (*MongoDBStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	storage := newMongoDBStorage(client.Database(cfg.MongoDatabase), cfg.TableName)
	storage.client = client
	return storage, nil
}

func newMongoDBStorage(db *mongo.Database, collection string) *MongoDBStorage {
	return &MongoDBStorage{
		sessions: db.Collection(collection),
		status:   db.Collection(statusID),
	}
}

// PutSession upserts the record keyed by date#session
func (m *MongoDBStorage) PutSession(ctx context.Context, record models.DateRecord) error {
	doc := sessionDocument{ID: record.Key(), DateRecord: record}

	_, err := m.sessions.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", record.Key(), err)
	}
	return nil
}

// UpdateIngestionStatus upserts the single status document
func (m *MongoDBStorage) UpdateIngestionStatus(ctx context.Context, status models.IngestionStatus) error {
	doc := statusDocument{ID: statusID, IngestionStatus: status}

	_, err := m.status.ReplaceOne(ctx, bson.M{"_id": statusID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store ingestion status: %w", err)
	}
	return nil
}

// GetIngestionStatus retrieves the current ingestion status
func (m *MongoDBStorage) GetIngestionStatus(ctx context.Context) (*models.IngestionStatus, error) {
	var doc statusDocument
	err := m.status.FindOne(ctx, bson.M{"_id": statusID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return neverRun(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion status: %w", err)
	}
	return &doc.IngestionStatus, nil
}

// Close disconnects the client
func (m *MongoDBStorage) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
