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
	"errors"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Sentinel errors for credential repository operations.
var (
	// ErrNotFound is returned when a credential cannot be found.
	ErrNotFound = errors.New("credential not found")

	// ErrDuplicate is returned when registering a credential id that already
	// exists. Enforced atomically by the store to close the race between the
	// orchestrator's duplicate check and the insert.
	ErrDuplicate = errors.New("credential already registered")
)

// Store is the credential repository contract. Implementations must serialize
// the check-then-insert of AddCredential per credential id (a storage-level
// unique constraint suffices).
type Store interface {
	// GetUserWithCredentials fetches the user row for a username, creating it
	// with zero credentials if the username has never been seen, and attaches
	// all owned credentials.
	GetUserWithCredentials(ctx context.Context, username string) (*User, error)

	// AddCredential appends a newly registered credential for the user.
	// Returns ErrDuplicate if the credential id already exists.
	AddCredential(ctx context.Context, username, name string, passkey *webauthn.Credential) error

	// UpdateCredential writes back an updated passkey record (advanced sign
	// counter, changed backup state). Keyed by the passkey's credential id.
	// Returns ErrNotFound if the credential does not exist.
	UpdateCredential(ctx context.Context, passkey *webauthn.Credential) error

	// DeleteCredential removes a credential by its id.
	// Returns ErrNotFound if the credential does not exist.
	DeleteCredential(ctx context.Context, credID []byte) error
}
