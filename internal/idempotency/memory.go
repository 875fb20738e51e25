package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// MemoryStore keeps records in process. Used for local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.IdempotencyRecord
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.IdempotencyRecord),
		now:     time.Now,
	}
}

// Get returns the stored record, expired or not.
func (m *MemoryStore) Get(_ context.Context, key string) (*models.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Put overwrites the record for its key.
func (m *MemoryStore) Put(_ context.Context, record models.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.IdempotencyKey] = record
	return nil
}

// Claim stores record unless a live record exists for the key.
func (m *MemoryStore) Claim(_ context.Context, record models.IdempotencyRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[record.IdempotencyKey]; ok && !existing.Expired(m.now()) {
		return false, nil
	}
	m.records[record.IdempotencyKey] = record
	return true, nil
}

// Release deletes the record if it is still this attempt's pending claim.
func (m *MemoryStore) Release(_ context.Context, record models.IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[record.IdempotencyKey]
	if ok && existing.Status == models.StatusPending && existing.CreatedAt.Equal(record.CreatedAt) {
		delete(m.records, record.IdempotencyKey)
	}
	return nil
}
