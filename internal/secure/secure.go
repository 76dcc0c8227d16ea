// ABOUTME: Extension-point interfaces the application implements to back the gate
// ABOUTME: Provides inert/permissive default implementations for both

package secure

import (
	"context"
	"net/http"

	"github.com/me/gatehouse/internal/session"
)

// CredentialVerifier is the application-side authentication backend. The gate
// never assumes a specific backing store; implementations may hit a database
// or remote service, and any error they return is propagated to the caller
// unchanged rather than converted into a deny.
type CredentialVerifier interface {
	// Authenticate checks a username/password pair. On success the
	// implementation records the username on the session.
	Authenticate(ctx context.Context, sess *session.Session, username, password string) (bool, error)

	// TrustAuthentication establishes a session for a username asserted by
	// a trusted external authority, without a password.
	TrustAuthentication(ctx context.Context, sess *session.Session, username string) (bool, error)

	// Check reports whether the session's user holds the named profile.
	Check(ctx context.Context, sess *session.Session, profile string) (bool, error)

	// ConnectedUsername returns the current user, or "" if none.
	ConnectedUsername(sess *session.Session) string

	// IsConnected reports whether a user is currently authenticated.
	IsConnected(sess *session.Session) bool

	// OnAuthenticated is called after a successful authentication.
	OnAuthenticated(ctx context.Context, sess *session.Session) error

	// OnDisconnect is called before a sign-off begins.
	OnDisconnect(ctx context.Context, sess *session.Session) error

	// OnDisconnected is called after a completed sign-off.
	OnDisconnected(ctx context.Context) error

	// OnCheckFailed decides the user-visible consequence of a failed
	// profile check. It returns true to halt request processing.
	OnCheckFailed(w http.ResponseWriter, r *http.Request, profile string) bool
}

// TrustDelegate is implemented by an external identity authority that can
// assert an already-established identity, bypassing interactive login.
type TrustDelegate interface {
	// TrustPhaseDone reports whether the authority has completed its
	// handshake for this request.
	TrustPhaseDone(r *http.Request) (bool, error)

	// TrustedUser returns the pre-authenticated username for this request,
	// or "" if the authority vouches for no one.
	TrustedUser(r *http.Request) (string, error)

	// OnDisconnected notifies the authority that the session ended.
	OnDisconnected(ctx context.Context, r *http.Request) error
}

// DefaultVerifier is a maximally permissive CredentialVerifier: any
// username/password pair authenticates and every profile check passes.
// It exists for unconfigured deployments and as an embeddable base for
// real implementations that only override a subset of the hooks.
type DefaultVerifier struct{}

// Authenticate accepts any pair and records the username on the session.
func (DefaultVerifier) Authenticate(ctx context.Context, sess *session.Session, username, password string) (bool, error) {
	sess.SetUsername(username)
	return true, nil
}

// TrustAuthentication accepts any trusted username.
func (d DefaultVerifier) TrustAuthentication(ctx context.Context, sess *session.Session, username string) (bool, error) {
	return d.Authenticate(ctx, sess, username, "")
}

// Check allows every profile.
func (DefaultVerifier) Check(ctx context.Context, sess *session.Session, profile string) (bool, error) {
	return true, nil
}

// ConnectedUsername returns the session's username.
func (DefaultVerifier) ConnectedUsername(sess *session.Session) string {
	return sess.Username()
}

// IsConnected reports whether the session carries a username.
func (DefaultVerifier) IsConnected(sess *session.Session) bool {
	return sess.Authenticated()
}

// OnAuthenticated is a no-op.
func (DefaultVerifier) OnAuthenticated(ctx context.Context, sess *session.Session) error {
	return nil
}

// OnDisconnect is a no-op.
func (DefaultVerifier) OnDisconnect(ctx context.Context, sess *session.Session) error {
	return nil
}

// OnDisconnected is a no-op.
func (DefaultVerifier) OnDisconnected(ctx context.Context) error {
	return nil
}

// OnCheckFailed responds with 403 Forbidden and halts processing.
func (DefaultVerifier) OnCheckFailed(w http.ResponseWriter, r *http.Request, profile string) bool {
	http.Error(w, "forbidden", http.StatusForbidden)
	return true
}

// NoTrust is the inert TrustDelegate: the trust phase never completes and
// no user is ever vouched for.
type NoTrust struct{}

// TrustPhaseDone always reports false.
func (NoTrust) TrustPhaseDone(r *http.Request) (bool, error) { return false, nil }

// TrustedUser always returns no user.
func (NoTrust) TrustedUser(r *http.Request) (string, error) { return "", nil }

// OnDisconnected is a no-op.
func (NoTrust) OnDisconnected(ctx context.Context, r *http.Request) error { return nil }
