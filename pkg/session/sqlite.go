// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-gateway.
//
// go-webauthn-gateway is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

// SQLiteConfig contains configuration for the SQLite session store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// TTL is the session lifetime measured from creation.
	// Default: 24 hours.
	TTL time.Duration

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite session store configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "data/gateway.db",
		TTL:         24 * time.Hour,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteStore implements Store on a SQLite database. WAL mode is enabled so
// concurrent requests for different sessions do not block each other; the
// row-level primary key gives per-id atomicity with last-writer-wins saves.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the session database and initializes the
// schema. The same database file may be shared with the credential store.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "session.sqlite")

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("session store initialized",
		"path", config.Path,
		"ttl", config.TTL.String(),
	)

	return s, nil
}

// NewSQLiteStoreWithDB wraps an already-open database handle. The caller
// retains ownership of the handle; Close is a no-op for the handle itself.
func NewSQLiteStoreWithDB(db *sql.DB, ttl time.Duration) (*SQLiteStore, error) {
	s := &SQLiteStore{
		db:     db,
		config: &SQLiteConfig{TTL: ttl, BusyTimeout: 5 * time.Second},
		logger: slog.Default().With("component", "session.sqlite"),
	}
	if s.config.TTL <= 0 {
		s.config.TTL = 24 * time.Hour
	}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := s.db.Exec(sessionSchema); err != nil {
		return fmt.Errorf("create session schema: %w", err)
	}
	return nil
}

// Create allocates a fresh session row with a random id and empty data.
func (s *SQLiteStore) Create(ctx context.Context) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        id,
		ExpiresAt: time.Now().Add(s.config.TTL).UTC(),
	}

	data, err := json.Marshal(sess.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, data, expires_at) VALUES (?, ?, ?)",
		sess.ID, string(data), sess.ExpiresAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return sess, nil
}

// Load retrieves a session by id, purging it lazily if expired.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Session, error) {
	var (
		data      string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT data, expires_at FROM sessions WHERE id = ?", id).
		Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	sess := &Session{
		ID:        id,
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
	}
	if sess.Expired(time.Now()) {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
			s.logger.Warn("failed to purge expired session", "error", err)
		}
		return nil, ErrNotFound
	}

	if err := json.Unmarshal([]byte(data), &sess.Data); err != nil {
		// A row we cannot decode is as good as missing.
		s.logger.Error("corrupt session row", "id", id, "error", err)
		return nil, ErrNotFound
	}

	return sess, nil
}

// Save persists mutated session data without extending the expiry.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET data = ? WHERE id = ?", string(data), sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the session row.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes all expired session rows.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// newSessionID generates an unguessable 256-bit session identifier.
func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
