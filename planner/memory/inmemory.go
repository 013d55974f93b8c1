package memory

import (
	"context"
	"sort"
	"sync"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
)

// InMemoryStore is a MemoryStore for development and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]contractx.MemoryRecord
}

var _ contractx.MemoryStore = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]contractx.MemoryRecord)}
}

func key(userID, sessionID string) string {
	return userID + "/" + sessionID
}

func (s *InMemoryStore) Load(_ context.Context, userID, sessionID string) (*contractx.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key(userID, sessionID)]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *InMemoryStore) LoadUser(_ context.Context, userID string, limit int) ([]contractx.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contractx.MemoryRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, rec *contractx.MemoryRecord) error {
	if rec == nil {
		return contractx.ErrMemoryWrite
	}
	s.mu.Lock()
	s.records[key(rec.UserID, rec.SessionID)] = *rec
	s.mu.Unlock()
	return nil
}
