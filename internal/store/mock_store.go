// ABOUTME: In-memory UserStore for tests and zero-config deployments
// ABOUTME: Thread-safe map-backed implementation mirroring SQLiteStore semantics

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory UserStore.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*User            // keyed by username
	profiles map[string]map[string]bool  // username -> profile set
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		profiles: make(map[string]map[string]bool),
	}
}

// CreateUser inserts a new user.
func (m *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.Username]; ok {
		return ErrUsernameExists
	}
	cp := *u
	m.users[u.Username] = &cp
	return nil
}

// GetUserByUsername returns a user, or ErrUserNotFound.
func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// ListUsers returns all users ordered by username.
func (m *MemoryStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// GrantProfile adds a profile to a user.
func (m *MemoryStore) GrantProfile(ctx context.Context, username, profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.profiles[username] == nil {
		m.profiles[username] = make(map[string]bool)
	}
	m.profiles[username][profile] = true
	return nil
}

// RevokeProfile removes a profile from a user.
func (m *MemoryStore) RevokeProfile(ctx context.Context, username, profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.profiles[username], profile)
	return nil
}

// ListProfiles returns the user's profiles ordered by name.
func (m *MemoryStore) ListProfiles(ctx context.Context, username string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var profiles []string
	for p := range m.profiles[username] {
		profiles = append(profiles, p)
	}
	sort.Strings(profiles)
	return profiles, nil
}

// HasProfile reports whether the user holds the named profile.
func (m *MemoryStore) HasProfile(ctx context.Context, username, profile string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profiles[username][profile], nil
}

// TouchLastLogin stamps the user's last successful authentication.
func (m *MemoryStore) TouchLastLogin(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[username]
	if !ok {
		return ErrUserNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}
