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

package rest

import (
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/gateway"
)

// RegisterFinishRequest carries the authenticator's attestation response and
// the user-chosen display name for the new credential.
type RegisterFinishRequest struct {
	Name       string          `json:"name"`
	Credential json.RawMessage `json:"credential"`
}

// AuthenticateStartResponse carries the assertion challenge. A null
// challenge means no ceremony is needed: the session is already logged in or
// the bootstrap policy admitted the user.
type AuthenticateStartResponse struct {
	Challenge *protocol.CredentialAssertion `json:"challenge"`
}

// AuthenticateFinishResponse carries the post-login redirect target.
type AuthenticateFinishResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// CredentialListResponse lists a user's registered credentials.
type CredentialListResponse struct {
	Data []gateway.CredentialInfo `json:"data"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
