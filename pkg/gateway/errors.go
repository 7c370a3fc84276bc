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

package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for gateway operations. The REST layer maps each to a
// distinct HTTP status so clients can tell a stale ceremony from a rejected
// credential from a duplicate registration.
var (
	// ErrNoCeremony is returned when a finish call arrives with no pending
	// ceremony state in the session: the ceremony never started, was already
	// consumed, or the session expired in between.
	ErrNoCeremony = errors.New("no ceremony in progress")

	// ErrVerificationFailed is returned when the cryptographic verification
	// of an attestation or assertion fails. No server-side state is mutated.
	ErrVerificationFailed = errors.New("credential verification failed")

	// ErrDuplicateCredential is returned when a registration would enroll a
	// credential id the user already has.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrNoCredentials is returned by authentication start when the user has
	// no enrolled credentials and the passwordless bootstrap policy is off.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrInvalidCredentialID is returned when a wire-encoded credential id
	// cannot be decoded.
	ErrInvalidCredentialID = errors.New("invalid credential id")

	// ErrInvalidRedirect is returned when a redirect candidate cannot be
	// parsed as an absolute URL.
	ErrInvalidRedirect = errors.New("invalid redirect url")

	// ErrForbiddenRedirect is returned when a redirect candidate's origin is
	// not among the configured allowed origins.
	ErrForbiddenRedirect = errors.New("redirect origin not allowed")
)

// Error wraps an operation name around an underlying error.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
