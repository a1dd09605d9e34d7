package store

import (
	"context"
	"sync"

	"github.com/benbakir04-create/teachers-report/backend/internal/models"
)

// MemoryStore is a process-local Store. It backs the no-cache mode used
// when durable storage is unavailable, and serves as a test double.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[models.Collection]map[string]models.Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[models.Collection]map[string]models.Record),
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, collection models.Collection, rec models.Record) error {
	if err := checkRecord(collection, rec); err != nil {
		return err
	}
	rec = rec.Clone()
	rec.Collection = collection

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]models.Record)
		s.collections[collection] = c
	}
	c[rec.ID] = rec
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, collection models.Collection, id string) (models.Record, error) {
	if err := checkCollection(collection); err != nil {
		return models.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.collections[collection][id]
	if !ok {
		return models.Record{}, notFound(collection, id)
	}
	return rec.Clone(), nil
}

// GetAll implements Store.
func (s *MemoryStore) GetAll(_ context.Context, collection models.Collection) ([]models.Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]models.Record, 0, len(s.collections[collection]))
	for _, rec := range s.collections[collection] {
		records = append(records, rec.Clone())
	}
	return records, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, collection models.Collection, id string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, collection models.Collection) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection]), nil
}
