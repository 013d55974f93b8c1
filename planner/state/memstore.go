package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store for development and tests. It round-trips
// states through JSON so callers get the same copy semantics as the Redis
// store.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]byte)}
}

func (m *MemStore) Load(_ context.Context, sessionID string) (*SessionState, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	m.mu.RLock()
	raw, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}

	var st SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	st.EnsureMaps()
	return &st, nil
}

func (m *MemStore) Save(_ context.Context, st *SessionState) error {
	if st == nil {
		return ErrNilSessionState
	}
	if err := st.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	m.mu.Lock()
	m.sessions[st.SessionID] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}
