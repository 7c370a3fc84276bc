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

// Package session provides the durable, TTL-bound browser session store that
// carries WebAuthn ceremony state between the start and finish phase of a
// ceremony. Sessions are keyed by an opaque random identifier delivered to the
// browser in an HMAC-signed, HTTP-only cookie; all ceremony state lives in the
// store itself, never in the cookie, so rows can be invalidated server-side
// and requests can be dispatched to any process sharing the store.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Sentinel errors for session operations.
var (
	// ErrNotFound is returned when a session does not exist or has expired.
	// Callers treat an invalid or expired session identically to a missing one.
	ErrNotFound = errors.New("session not found")
)

// Data is the typed per-browser session payload. Each field corresponds to
// one recognized session key; a zero value means the key is absent.
type Data struct {
	// LoggedIn is true once an authentication ceremony has completed, or the
	// passwordless bootstrap policy has admitted a credential-less user.
	LoggedIn bool `json:"logged_in,omitempty"`

	// Registration holds the opaque in-flight registration ceremony state
	// between the start and finish calls. Nil when no ceremony is pending.
	Registration *webauthn.SessionData `json:"registration,omitempty"`

	// Authentication holds the opaque in-flight authentication ceremony state.
	Authentication *webauthn.SessionData `json:"authentication,omitempty"`

	// RedirectURL is a previously validated post-login redirect target.
	// Consumed (removed) the first time an authentication ceremony finishes.
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Session is a single browser session row.
type Session struct {
	// ID is the opaque random session identifier. It is the store's key and
	// the value signed into the browser cookie.
	ID string

	// Data is the session payload.
	Data Data

	// ExpiresAt is the absolute expiry. The row is garbage-collected past
	// this point; expiry is not extended by Save.
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store is the durable session persistence contract. Implementations must
// guarantee per-id atomicity; concurrent saves of the same id may resolve
// last-writer-wins.
type Store interface {
	// Create allocates a fresh session with a cryptographically random id,
	// empty data, and the store's default TTL.
	Create(ctx context.Context) (*Session, error)

	// Load retrieves a session by id. It fails closed: a lookup miss or an
	// expired row both yield ErrNotFound. Expired rows are purged lazily.
	Load(ctx context.Context, id string) (*Session, error)

	// Save persists mutated session data. The TTL is not refreshed.
	Save(ctx context.Context, sess *Session) error

	// Delete removes the session row. Deleting a missing row is not an error.
	Delete(ctx context.Context, id string) error

	// PurgeExpired removes all expired rows and returns the number removed.
	PurgeExpired(ctx context.Context) (int, error)
}
