// ABOUTME: CredentialVerifier backed by the user store with bcrypt password hashes
// ABOUTME: Profile checks read the user_profiles table; unknown users get a timing-safe dummy compare

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/me/gatehouse/internal/secure"
	"github.com/me/gatehouse/internal/session"
)

// dummyHash keeps password comparison timing constant when the user does not
// exist, so response timing cannot enumerate valid usernames.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Verifier is a CredentialVerifier over a UserStore.
type Verifier struct {
	secure.DefaultVerifier

	users  UserStore
	logger *slog.Logger
}

// NewVerifier creates a store-backed credential verifier.
func NewVerifier(users UserStore) *Verifier {
	return &Verifier{
		users:  users,
		logger: slog.Default().With("component", "verifier"),
	}
}

// Authenticate checks the password against the stored bcrypt hash and
// records the username on the session when it matches.
func (v *Verifier) Authenticate(ctx context.Context, sess *session.Session, username, password string) (bool, error) {
	user, err := v.users.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if user.PasswordHash == "" {
		// Trust-only account; no interactive login.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return false, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return false, nil
	}

	sess.SetUsername(username)
	return true, nil
}

// TrustAuthentication accepts a username vouched for by the trust authority,
// provided the account exists.
func (v *Verifier) TrustAuthentication(ctx context.Context, sess *session.Session, username string) (bool, error) {
	_, err := v.users.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		v.logger.Warn("trusted user has no account", "username", username)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	sess.SetUsername(username)
	return true, nil
}

// Check reports whether the session's user holds the named profile.
func (v *Verifier) Check(ctx context.Context, sess *session.Session, profile string) (bool, error) {
	username := sess.Username()
	if username == "" {
		return false, nil
	}
	return v.users.HasProfile(ctx, username, profile)
}

// OnAuthenticated stamps the user's last login time.
func (v *Verifier) OnAuthenticated(ctx context.Context, sess *session.Session) error {
	username := sess.Username()
	if username == "" {
		return nil
	}
	if err := v.users.TouchLastLogin(ctx, username); err != nil {
		return fmt.Errorf("recording login time: %w", err)
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for User.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
