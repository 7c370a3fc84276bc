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

// Package gateway implements the registration and authentication ceremony
// orchestrator and the access gate. Ceremony state is externalized into the
// durable session between the start and finish calls, so the two phases can
// be served by different processes; the session store is the sole source of
// truth for an in-flight ceremony.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/jeremyhahn/go-webauthn-gateway/pkg/credential"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/session"
)

// Service orchestrates WebAuthn ceremonies against the session store and the
// credential repository.
type Service struct {
	webauthn *webauthn.WebAuthn
	config   *Config
	sessions session.Store
	creds    credential.Store
	logger   *slog.Logger
}

// ServiceParams contains dependencies for creating a gateway service.
type ServiceParams struct {
	// Config is the Relying Party configuration (required).
	Config *Config

	// Sessions is the browser session store (required).
	Sessions session.Store

	// Credentials is the credential repository (required).
	Credentials credential.Store

	// Logger is an optional structured logger; slog.Default() if nil.
	Logger *slog.Logger
}

// NewService creates a new gateway service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if params.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		webauthn: wa,
		config:   params.Config,
		sessions: params.Sessions,
		creds:    params.Credentials,
		logger:   logger.With("component", "gateway"),
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// LoggedIn reports whether the session is currently authenticated.
// A nil session is never authenticated.
func LoggedIn(sess *session.Session) bool {
	return sess != nil && sess.Data.LoggedIn
}

// BeginRegistration starts a registration ceremony for the username asserted
// by the trusted upstream header. The user's already-registered credential
// ids are passed to the authenticator as an exclusion list; the opaque
// ceremony state is stashed in the session for FinishRegistration.
func (s *Service) BeginRegistration(ctx context.Context, sess *session.Session, username string) (*protocol.CredentialCreation, error) {
	user, err := s.creds.GetUserWithCredentials(ctx, username)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	exclusions := make([]protocol.CredentialDescriptor, len(user.Credentials))
	for i, c := range user.Credentials {
		exclusions[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.Passkey.ID,
			Transport:    c.Passkey.Transport,
		}
	}

	options, state, err := s.webauthn.BeginRegistration(user,
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	sess.Data.Registration = state
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, WrapError("save session", err)
	}

	return options, nil
}

// FinishRegistration completes a registration ceremony and persists the new
// credential under the asserted username with the user-chosen display name.
//
// The exclusion list handed out at start is advisory; the duplicate check
// against the re-fetched credential list, backed by the repository's unique
// constraint, is the authoritative guard. The session's ceremony state is
// cleared on every terminal outcome (success, cryptographic rejection,
// duplicate) so a stale challenge cannot be replayed; it is left intact on
// internal errors so the client may retry the finish call.
func (s *Service) FinishRegistration(ctx context.Context, sess *session.Session, username, name string, response *protocol.ParsedCredentialCreationData) error {
	state := sess.Data.Registration
	if state == nil {
		return ErrNoCeremony
	}

	user, err := s.creds.GetUserWithCredentials(ctx, username)
	if err != nil {
		return WrapError("get user", err)
	}

	passkey, err := s.webauthn.CreateCredential(user, *state, response)
	if err != nil {
		s.logger.Warn("registration verification failed",
			"username", username, "error", err)
		s.clearRegistration(ctx, sess)
		return WrapError("finish registration", ErrVerificationFailed)
	}

	if user.HasCredential(passkey.ID) {
		s.clearRegistration(ctx, sess)
		return WrapError("finish registration", ErrDuplicateCredential)
	}

	if err := s.creds.AddCredential(ctx, username, name, passkey); err != nil {
		if err == credential.ErrDuplicate {
			s.clearRegistration(ctx, sess)
			return WrapError("finish registration", ErrDuplicateCredential)
		}
		return WrapError("add credential", err)
	}

	sess.Data.Registration = nil
	if err := s.sessions.Save(ctx, sess); err != nil {
		return WrapError("save session", err)
	}

	s.logger.Info("credential registered",
		"username", username,
		"credential", credential.CredentialKey(passkey.ID))
	return nil
}

// BeginAuthentication starts an authentication ceremony. A nil challenge with
// a nil error means no ceremony is needed: the session is already logged in,
// or the user has no enrolled credentials and the passwordless bootstrap
// policy admitted them on the strength of the upstream identity header.
func (s *Service) BeginAuthentication(ctx context.Context, sess *session.Session, username string) (*protocol.CredentialAssertion, error) {
	if sess.Data.LoggedIn {
		s.logger.Debug("user already logged in", "username", username)
		return nil, nil
	}

	user, err := s.creds.GetUserWithCredentials(ctx, username)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	if len(user.Credentials) == 0 {
		if s.config.PasswordlessBootstrap == nil || !*s.config.PasswordlessBootstrap {
			return nil, WrapError("begin authentication", ErrNoCredentials)
		}
		s.logger.Debug("user has no credentials, bootstrap login", "username", username)
		sess.Data.LoggedIn = true
		if err := s.sessions.Save(ctx, sess); err != nil {
			return nil, WrapError("save session", err)
		}
		return nil, nil
	}

	options, state, err := s.webauthn.BeginLogin(user)
	if err != nil {
		return nil, WrapError("begin authentication", err)
	}

	sess.Data.Authentication = state
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, WrapError("save session", err)
	}

	return options, nil
}

// FinishAuthentication completes an authentication ceremony, marks the
// session logged in, and returns the post-login redirect target. A redirect
// URL previously captured into the session is consumed (single use);
// otherwise the canonical credential-management page is returned.
func (s *Service) FinishAuthentication(ctx context.Context, sess *session.Session, username string, response *protocol.ParsedCredentialAssertionData) (string, error) {
	state := sess.Data.Authentication
	if state == nil {
		return "", ErrNoCeremony
	}

	user, err := s.creds.GetUserWithCredentials(ctx, username)
	if err != nil {
		return "", WrapError("get user", err)
	}

	passkey, err := s.webauthn.ValidateLogin(user, *state, response)
	if err != nil {
		s.logger.Warn("authentication verification failed",
			"username", username, "error", err)
		s.clearAuthentication(ctx, sess)
		return "", WrapError("finish authentication", ErrVerificationFailed)
	}

	if passkey.Authenticator.CloneWarning {
		s.logger.Warn("possible cloned authenticator",
			"username", username,
			"credential", credential.CredentialKey(passkey.ID))
	}

	// Write the record back only when the authenticator's state advanced.
	if authenticatorStateChanged(user, passkey) {
		if err := s.creds.UpdateCredential(ctx, passkey); err != nil {
			return "", WrapError("update credential", err)
		}
	}

	sess.Data.Authentication = nil
	sess.Data.LoggedIn = true

	redirect := sess.Data.RedirectURL
	if redirect != "" {
		sess.Data.RedirectURL = ""
	} else {
		redirect = s.DefaultRedirect()
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return "", WrapError("save session", err)
	}

	s.logger.Info("user authenticated", "username", username)
	return redirect, nil
}

// CaptureRedirect validates a post-login redirect candidate against the
// allowed origins and stashes it in the session for consumption by
// FinishAuthentication. An empty candidate falls back to the default.
func (s *Service) CaptureRedirect(ctx context.Context, sess *session.Session, candidate string) (string, error) {
	if candidate == "" {
		candidate = s.DefaultRedirect()
	}

	u, err := s.config.ValidateRedirect(candidate)
	if err != nil {
		s.logger.Info("denied redirect request", "redirect_url", candidate)
		return "", err
	}

	sess.Data.RedirectURL = u.String()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return "", WrapError("save session", err)
	}
	return u.String(), nil
}

// DefaultRedirect is the canonical post-login location.
func (s *Service) DefaultRedirect() string {
	return strings.TrimSuffix(s.config.RPOrigin, "/") + "/credentials"
}

// CredentialInfo is a credential id/name pair for listing.
type CredentialInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Credentials lists the asserted user's registered credentials.
func (s *Service) Credentials(ctx context.Context, username string) ([]CredentialInfo, error) {
	user, err := s.creds.GetUserWithCredentials(ctx, username)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	infos := make([]CredentialInfo, len(user.Credentials))
	for i, c := range user.Credentials {
		infos[i] = CredentialInfo{
			ID:   credential.CredentialKey(c.Passkey.ID),
			Name: c.Name,
		}
	}
	return infos, nil
}

// RemoveCredential revokes a credential by its wire-encoded id.
// Removing a credential that is already gone returns credential.ErrNotFound;
// the HTTP layer treats that as a successful no-op.
func (s *Service) RemoveCredential(ctx context.Context, key string) error {
	credID, err := credential.ParseCredentialKey(key)
	if err != nil {
		return WrapError("remove credential", ErrInvalidCredentialID)
	}
	if err := s.creds.DeleteCredential(ctx, credID); err != nil {
		return WrapError("remove credential", err)
	}
	s.logger.Info("credential revoked", "credential", key)
	return nil
}

// Logout destroys the server-side session row.
func (s *Service) Logout(ctx context.Context, sess *session.Session) error {
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return WrapError("delete session", err)
	}
	return nil
}

// authenticatorStateChanged reports whether the validated credential differs
// from the stored record in a way that must be written back: an advanced
// signature counter, a clone warning, or changed backup flags.
func authenticatorStateChanged(user *credential.User, validated *webauthn.Credential) bool {
	for _, c := range user.Credentials {
		if string(c.Passkey.ID) != string(validated.ID) {
			continue
		}
		return c.Passkey.Authenticator.SignCount != validated.Authenticator.SignCount ||
			c.Passkey.Authenticator.CloneWarning != validated.Authenticator.CloneWarning ||
			c.Passkey.Flags.BackupState != validated.Flags.BackupState
	}
	// Unknown to the stored set; nothing to update.
	return false
}

// clearRegistration drops in-flight registration state after a terminal
// outcome. Best-effort: a failed save leaves the state to expire with the
// session.
func (s *Service) clearRegistration(ctx context.Context, sess *session.Session) {
	sess.Data.Registration = nil
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Error("failed to clear registration state", "error", err)
	}
}

func (s *Service) clearAuthentication(ctx context.Context, sess *session.Session) {
	sess.Data.Authentication = nil
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Error("failed to clear authentication state", "error", err)
	}
}
