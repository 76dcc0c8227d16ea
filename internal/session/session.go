// ABOUTME: Cookie-backed session management for the access gate
// ABOUTME: Sessions are created lazily on first authentication and expire server-side

package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session does not exist in the store.
var ErrNotFound = errors.New("session not found")

const (
	// DefaultCookieName is the name of the session ID cookie.
	DefaultCookieName = "gatehouse_session"

	// DefaultTTL is the default server-side session lifetime.
	DefaultTTL = 24 * time.Hour
)

// usernameKey is the single well-known session key. A session carrying it
// is authenticated.
const usernameKey = "username"

// Session is a request-scoped key/value mapping persisted between requests
// through a Store. The zero value is not usable; obtain sessions from a Manager.
type Session struct {
	ID        string
	Values    map[string]string
	CreatedAt time.Time
	ExpiresAt time.Time

	// fresh marks a session that has not been committed to the store yet.
	fresh bool
}

// Get returns the value stored under key, or "" if absent.
func (s *Session) Get(key string) string {
	return s.Values[key]
}

// Set stores a value under key.
func (s *Session) Set(key, value string) {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[key] = value
}

// Username returns the authenticated username, or "" for an anonymous session.
func (s *Session) Username() string {
	if s == nil {
		return ""
	}
	return s.Values[usernameKey]
}

// SetUsername marks the session as authenticated for the given user.
func (s *Session) SetUsername(username string) {
	s.Set(usernameKey, username)
}

// Authenticated reports whether the session carries a username.
func (s *Session) Authenticated() bool {
	return s.Username() != ""
}

// Clear removes every value from the session, including the username.
func (s *Session) Clear() {
	s.Values = make(map[string]string)
}

// Store persists sessions between requests. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the session with the given ID, or ErrNotFound.
	// Expiry is enforced by the Manager, not the store.
	Get(ctx context.Context, id string) (*Session, error)

	// Put inserts or replaces a session.
	Put(ctx context.Context, s *Session) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes all sessions that expired before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Manager ties sessions to an HTTP cookie and a backing store.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	logger     *slog.Logger
}

// NewManager creates a session manager over the given store.
// Empty cookieName or zero ttl fall back to the package defaults.
func NewManager(store Store, cookieName string, ttl time.Duration) *Manager {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:      store,
		cookieName: cookieName,
		ttl:        ttl,
		logger:     slog.Default().With("component", "session"),
	}
}

// Lookup returns the valid session referenced by the request's cookie,
// or nil if there is none. An expired session is deleted and treated as absent.
func (m *Manager) Lookup(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	sess, err := m.store.Get(ctx, cookie.Value)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if time.Now().After(sess.ExpiresAt) {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			m.logger.Warn("failed to delete expired session", "id", sess.ID, "error", err)
		}
		return nil, nil
	}

	return sess, nil
}

// Start returns the request's existing session, or a new uncommitted one.
// A fresh session is not persisted and sets no cookie until Commit is called,
// so failed authentication attempts leave no trace.
func (m *Manager) Start(ctx context.Context, r *http.Request) (*Session, error) {
	sess, err := m.Lookup(ctx, r)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		Values:    make(map[string]string),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		fresh:     true,
	}, nil
}

// Commit persists the session and, for a fresh session, sets its cookie.
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if err := m.store.Put(ctx, sess); err != nil {
		return err
	}

	if sess.fresh {
		http.SetCookie(w, &http.Cookie{
			Name:     m.cookieName,
			Value:    sess.ID,
			Path:     "/",
			Expires:  sess.ExpiresAt,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		sess.fresh = false
	}

	return nil
}

// Destroy deletes the session from the store and expires its cookie.
// A nil session still clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess != nil && !sess.fresh {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			return err
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	return nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cookieName
}
