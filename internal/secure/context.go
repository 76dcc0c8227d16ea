// ABOUTME: Request-context plumbing for the authenticated session
// ABOUTME: Handlers behind the gate read the session with FromContext

package secure

import (
	"context"

	"github.com/me/gatehouse/internal/session"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const sessionContextKey contextKey = "gatehouse_session"

// WithSession returns a context carrying the authenticated session.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// FromContext returns the authenticated session, or nil if the request did
// not pass through the gate.
func FromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionContextKey).(*session.Session)
	return sess
}
