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

package credential

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const credentialSchema = `
CREATE TABLE IF NOT EXISTS users (
	id       TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS credentials (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	passkey      TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	last_used_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_credentials_user_id ON credentials(user_id);
`

// SQLiteStore implements Store on a SQLite database. The credentials table's
// primary key on the credential id is the authoritative duplicate guard; two
// concurrent registrations of the same credential id cannot both commit.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the credential database and initializes
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open credential database: %w", err)
	}
	s := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "credential.sqlite"),
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreWithDB wraps an already-open database handle. The caller
// retains ownership of the handle.
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "credential.sqlite"),
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
	if _, err := s.db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.Exec(credentialSchema); err != nil {
		return fmt.Errorf("create credential schema: %w", err)
	}
	return nil
}

// GetUserWithCredentials fetches or lazily provisions the user row for a
// username and attaches all owned credentials.
func (s *SQLiteStore) GetUserWithCredentials(ctx context.Context, username string) (*User, error) {
	user := &User{Username: username}

	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM users WHERE username = ?", username).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		user.ID = uuid.New()
		// Another request may provision the same username concurrently; the
		// UNIQUE constraint resolves the race, so re-read on conflict.
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO users (id, username) VALUES (?, ?)", user.ID.String(), username)
		if err != nil {
			if !isUniqueViolation(err) {
				return nil, fmt.Errorf("insert user: %w", err)
			}
			if err := s.db.QueryRowContext(ctx,
				"SELECT id FROM users WHERE username = ?", username).Scan(&id); err != nil {
				return nil, fmt.Errorf("select user: %w", err)
			}
			user.ID, err = uuid.Parse(id)
			if err != nil {
				return nil, fmt.Errorf("parse user id: %w", err)
			}
		} else {
			s.logger.Info("provisioned new user", "username", username)
		}
	case err != nil:
		return nil, fmt.Errorf("select user: %w", err)
	default:
		user.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse user id: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT name, passkey, created_at, last_used_at FROM credentials WHERE user_id = ? ORDER BY created_at",
		user.ID.String())
	if err != nil {
		return nil, fmt.Errorf("select credentials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cred       Credential
			passkey    string
			createdAt  int64
			lastUsedAt int64
		)
		if err := rows.Scan(&cred.Name, &passkey, &createdAt, &lastUsedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		if err := json.Unmarshal([]byte(passkey), &cred.Passkey); err != nil {
			return nil, fmt.Errorf("decode passkey: %w", err)
		}
		cred.CreatedAt = time.Unix(createdAt, 0).UTC()
		if lastUsedAt > 0 {
			cred.LastUsedAt = time.Unix(lastUsedAt, 0).UTC()
		}
		user.Credentials = append(user.Credentials, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan credentials: %w", err)
	}

	return user, nil
}

// AddCredential appends a newly registered credential for the user.
func (s *SQLiteStore) AddCredential(ctx context.Context, username, name string, passkey *webauthn.Credential) error {
	var userID string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM users WHERE username = ?", username).Scan(&userID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("add credential: user %q not provisioned", username)
	}
	if err != nil {
		return fmt.Errorf("select user: %w", err)
	}

	blob, err := json.Marshal(passkey)
	if err != nil {
		return fmt.Errorf("encode passkey: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO credentials (id, user_id, name, passkey, created_at) VALUES (?, ?, ?, ?, ?)",
		CredentialKey(passkey.ID), userID, name, string(blob), time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// UpdateCredential writes back an updated passkey record.
func (s *SQLiteStore) UpdateCredential(ctx context.Context, passkey *webauthn.Credential) error {
	blob, err := json.Marshal(passkey)
	if err != nil {
		return fmt.Errorf("encode passkey: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE credentials SET passkey = ?, last_used_at = ? WHERE id = ?",
		string(blob), time.Now().Unix(), CredentialKey(passkey.ID))
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCredential removes a credential by its id.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, credID []byte) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM credentials WHERE id = ?", CredentialKey(credID))
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CredentialKey is the storage and wire encoding of a binary credential id.
func CredentialKey(credID []byte) string {
	return base64.RawURLEncoding.EncodeToString(credID)
}

// ParseCredentialKey decodes a wire-encoded credential id.
func ParseCredentialKey(key string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(key)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
