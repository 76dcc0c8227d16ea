// ABOUTME: SQLite implementation of UserStore and session.Store using modernc.org/sqlite
// ABOUTME: Provides user/profile/session persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/me/gatehouse/internal/session"
)

// SQLiteStore implements UserStore and session.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			last_login_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS user_profiles (
			username TEXT NOT NULL,
			profile TEXT NOT NULL,
			granted_at DATETIME NOT NULL,
			PRIMARY KEY (username, profile)
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at
			ON sessions(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, display_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.DisplayName, u.CreatedAt.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUserByUsername returns the user with the given username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, display_name, created_at, last_login_at FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DisplayName, &u.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

// ListUsers returns all users ordered by username.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, password_hash, display_name, created_at, last_login_at FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		var lastLogin sql.NullTime
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DisplayName, &u.CreatedAt, &lastLogin); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		if lastLogin.Valid {
			u.LastLoginAt = &lastLogin.Time
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// GrantProfile adds a profile to a user.
func (s *SQLiteStore) GrantProfile(ctx context.Context, username, profile string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_profiles (username, profile, granted_at) VALUES (?, ?, ?)`,
		username, profile, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("granting profile: %w", err)
	}
	return nil
}

// RevokeProfile removes a profile from a user.
func (s *SQLiteStore) RevokeProfile(ctx context.Context, username, profile string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_profiles WHERE username = ? AND profile = ?`, username, profile)
	if err != nil {
		return fmt.Errorf("revoking profile: %w", err)
	}
	return nil
}

// ListProfiles returns the user's profiles ordered by name.
func (s *SQLiteStore) ListProfiles(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile FROM user_profiles WHERE username = ? ORDER BY profile`, username)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	var profiles []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// HasProfile reports whether the user holds the named profile.
func (s *SQLiteStore) HasProfile(ctx context.Context, username, profile string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM user_profiles WHERE username = ? AND profile = ?`,
		username, profile).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying profile: %w", err)
	}
	return n > 0, nil
}

// TouchLastLogin stamps the user's last successful authentication.
func (s *SQLiteStore) TouchLastLogin(ctx context.Context, username string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE username = ?`, time.Now().UTC(), username)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// Get returns the session with the given ID. Implements session.Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*session.Session, error) {
	var data string
	sess := &session.Session{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT data, created_at, expires_at FROM sessions WHERE id = ?`,
		id).Scan(&data, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &sess.Values); err != nil {
		return nil, fmt.Errorf("decoding session data: %w", err)
	}
	return sess, nil
}

// Put inserts or replaces a session. Implements session.Store.
func (s *SQLiteStore) Put(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess.Values)
	if err != nil {
		return fmt.Errorf("encoding session data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, data, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, string(data), sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// Delete removes a session. Implements session.Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before now. Implements session.Store.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}
