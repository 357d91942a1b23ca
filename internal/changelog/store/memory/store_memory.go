package memory

import (
	"context"
	"fmt"
	"sync"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
	"policysync/pkg/platform/sentinel"
)

// InMemoryStore keeps the replica in process memory. Records are stored as
// their encoded envelopes so callers never share mutable state with the store.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   map[string][]byte
	watermark string
}

var _ ports.Backend = (*InMemoryStore)(nil)

func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]byte)}
}

func (s *InMemoryStore) Get(_ context.Context, name string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.records[name]
	if !ok {
		return nil, fmt.Errorf("domain %q: %w", name, sentinel.ErrNotFound)
	}
	return models.UnmarshalRecord(b)
}

func (s *InMemoryStore) Save(_ context.Context, name string, record models.Record) error {
	b, err := models.MarshalRecord(record)
	if err != nil {
		return fmt.Errorf("encode domain %q: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[name] = b
	return nil
}

func (s *InMemoryStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
	return nil
}

func (s *InMemoryStore) ListNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	return names, nil
}

func (s *InMemoryStore) Watermark(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark, nil
}

func (s *InMemoryStore) SetWatermark(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermark = value
	return nil
}
