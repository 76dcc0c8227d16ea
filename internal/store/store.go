// ABOUTME: Store interface and data types for gatehouse persistence
// ABOUTME: Defines User and the UserStore interface backing the credential verifier

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user doesn't exist.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// User represents an account that can authenticate interactively or through
// trust delegation.
type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt hash, empty if trust-only
	DisplayName  string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// UserStore persists users and their authorization profiles.
type UserStore interface {
	// CreateUser inserts a new user. Returns ErrUsernameExists on conflict.
	CreateUser(ctx context.Context, u *User) error

	// GetUserByUsername returns a user, or ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers returns all users ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)

	// GrantProfile adds a profile to a user. Granting twice is not an error.
	GrantProfile(ctx context.Context, username, profile string) error

	// RevokeProfile removes a profile from a user.
	RevokeProfile(ctx context.Context, username, profile string) error

	// ListProfiles returns the user's profiles ordered by name.
	ListProfiles(ctx context.Context, username string) ([]string, error)

	// HasProfile reports whether the user holds the named profile.
	HasProfile(ctx context.Context, username, profile string) (bool, error)

	// TouchLastLogin stamps the user's last successful authentication.
	TouchLastLogin(ctx context.Context, username string) error
}
