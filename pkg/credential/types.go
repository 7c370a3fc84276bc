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

// Package credential provides the durable repository mapping a username to
// its registered WebAuthn credentials. Usernames are asserted by the trusted
// upstream identity header; the repository lazily provisions a user row the
// first time a username is seen.
package credential

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// Credential is a registered passkey. The Passkey field is the library's
// credential record, treated as an opaque serialized blob by everything but
// the go-webauthn primitives.
type Credential struct {
	// Name is the user-chosen display label. Not unique.
	Name string `json:"name"`

	// Passkey is the public-key credential material owned by go-webauthn.
	Passkey webauthn.Credential `json:"passkey"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// User is a username with its registered credentials. It implements
// webauthn.User so it can be handed directly to the ceremony primitives.
type User struct {
	ID          uuid.UUID
	Username    string
	Credentials []Credential
}

// WebAuthnID returns the stable user handle.
func (u *User) WebAuthnID() []byte {
	return u.ID[:]
}

// WebAuthnName returns the username.
func (u *User) WebAuthnName() string {
	return u.Username
}

// WebAuthnDisplayName returns the username; the gateway has no separate
// display name for users.
func (u *User) WebAuthnDisplayName() string {
	return u.Username
}

// WebAuthnIcon returns an empty icon URL; the field is deprecated in the
// WebAuthn spec and unused by the gateway.
func (u *User) WebAuthnIcon() string {
	return ""
}

// WebAuthnCredentials returns the user's registered passkeys.
func (u *User) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.Credentials))
	for i, c := range u.Credentials {
		creds[i] = c.Passkey
	}
	return creds
}

// HasCredential reports whether the user already owns a credential with the
// given credential id.
func (u *User) HasCredential(credID []byte) bool {
	for _, c := range u.Credentials {
		if string(c.Passkey.ID) == string(credID) {
			return true
		}
	}
	return false
}
