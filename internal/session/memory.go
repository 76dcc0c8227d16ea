// ABOUTME: In-memory session store for tests and single-process deployments
// ABOUTME: Thread-safe map keyed by session ID

package session

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore is a Store backed by an in-process map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get returns a copy of the stored session, so callers can mutate it
// without racing other requests for the same session.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *sess
	cp.Values = maps.Clone(sess.Values)
	return &cp, nil
}

// Put inserts or replaces a session.
func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	cp := *s
	cp.Values = maps.Clone(s.Values)

	m.mu.Lock()
	m.sessions[s.ID] = &cp
	m.mu.Unlock()
	return nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// DeleteExpired removes sessions that expired before now.
func (m *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	for id, sess := range m.sessions {
		if now.After(sess.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}
