package store

import (
	"sort"
	"sync"

	"github.com/emoseum/journey/internal/models"
)

// InMemoryStore is a simple in-memory store for journey records, used in
// tests and local development.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.JourneyRecord // keyed by primary ID
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.JourneyRecord)}
}

func (s *InMemoryStore) AddRecord(rec models.JourneyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *InMemoryStore) GetRecordByID(id string) (*models.JourneyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *InMemoryStore) GetRecordByKey(key string) (*models.JourneyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.RecordKey == key {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) UpdateTitle(id, title, guidedQuestion string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return 0, nil
	}
	rec.Title = title
	rec.GuidedQuestion = guidedQuestion
	s.records[id] = rec
	return 1, nil
}

func (s *InMemoryStore) UpdateReview(id string, review models.ReviewMessage, tokens int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return 0, nil
	}
	rec.ReviewMessage = review
	rec.ReviewTokens = tokens
	s.records[id] = rec
	return 1, nil
}

func (s *InMemoryStore) ListOwnerRecords(ownerID string, q ListQuery) ([]models.JourneyRecord, error) {
	q = q.normalized()

	s.mu.RLock()
	var matched []models.JourneyRecord
	for _, rec := range s.records {
		if rec.OwnerID != ownerID {
			continue
		}
		if q.DateFrom != nil && rec.CreatedAt.Before(*q.DateFrom) {
			continue
		}
		if q.DateTo != nil && rec.CreatedAt.After(*q.DateTo) {
			continue
		}
		matched = append(matched, rec)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if q.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[q.Offset:]
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (s *InMemoryStore) CountRecords() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func (s *InMemoryStore) CountGeneratedRecords() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.records {
		if rec.PromptGenerated && rec.ReviewGenerated {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
