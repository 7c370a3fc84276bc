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
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/credential"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/gateway"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/metrics"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/session"
	"github.com/jeremyhahn/go-webauthn-gateway/web"
)

// HandlerContext holds the dependencies shared by all HTTP handlers.
type HandlerContext struct {
	service  *gateway.Service
	sessions session.Store
	codec    *session.CookieCodec
	logger   *slog.Logger
}

// NewHandlerContext creates a handler context with the given dependencies.
func NewHandlerContext(service *gateway.Service, sessions session.Store, codec *session.CookieCodec, logger *slog.Logger) *HandlerContext {
	if logger == nil {
		logger = slog.Default().With("component", "rest")
	}
	return &HandlerContext{
		service:  service,
		sessions: sessions,
		codec:    codec,
		logger:   logger,
	}
}

// requireRemoteUser returns the username asserted by the reverse proxy, or
// writes 401 and returns false if the header is missing.
func (h *HandlerContext) requireRemoteUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	username := remoteUser(r)
	if username == "" {
		h.logger.Warn("missing identity header", "path", r.URL.Path)
		writeError(w, "missing identity header", http.StatusUnauthorized)
		return "", false
	}
	return username, true
}

// ValidateHandler is the status probe for the reverse proxy's auth_request
// directive. It answers with a bare status code and no body.
func (h *HandlerContext) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if !gateway.LoggedIn(sess) {
		metrics.RecordAccess(false)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	metrics.RecordAccess(true)
	w.WriteHeader(http.StatusOK)
}

// BeginRegistrationHandler starts a registration ceremony and returns the
// attestation options for navigator.credentials.create.
func (h *HandlerContext) BeginRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := h.requireRemoteUser(w, r)
	if !ok {
		return
	}

	sess := sessionFromContext(r.Context())
	options, err := h.service.BeginRegistration(r.Context(), sess, username)
	if err != nil {
		h.logger.Error("begin registration failed", "username", username, "error", err)
		handleServiceError(w, err)
		return
	}

	writeJSON(w, options, http.StatusOK)
}

// FinishRegistrationHandler completes a registration ceremony with the
// authenticator's attestation response and the user-chosen credential name.
func (h *HandlerContext) FinishRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := h.requireRemoteUser(w, r)
	if !ok {
		return
	}

	var req RegisterFinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		writeError(w, "invalid credential payload", http.StatusBadRequest)
		return
	}

	sess := sessionFromContext(r.Context())
	if err := h.service.FinishRegistration(r.Context(), sess, username, req.Name, parsed); err != nil {
		metrics.RecordRegistration(false)
		if errors.Is(err, gateway.ErrNoCeremony) {
			// No pending ceremony is a stale or consumed challenge,
			// distinct from a cryptographic failure.
			writeError(w, "no registration in progress", http.StatusNotFound)
			return
		}
		h.logger.Error("finish registration failed", "username", username, "error", err)
		handleServiceError(w, err)
		return
	}

	metrics.RecordRegistration(true)
	w.WriteHeader(http.StatusOK)
}

// BeginAuthenticationHandler starts an authentication ceremony. The
// challenge is null when the session is already logged in or the user has no
// enrolled credentials under the bootstrap policy.
func (h *HandlerContext) BeginAuthenticationHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := h.requireRemoteUser(w, r)
	if !ok {
		return
	}

	sess := sessionFromContext(r.Context())
	challenge, err := h.service.BeginAuthentication(r.Context(), sess, username)
	if err != nil {
		h.logger.Error("begin authentication failed", "username", username, "error", err)
		handleServiceError(w, err)
		return
	}

	writeJSON(w, AuthenticateStartResponse{Challenge: challenge}, http.StatusOK)
}

// FinishAuthenticationHandler completes an authentication ceremony and
// returns the post-login redirect target. A finish with no ceremony in
// flight answers 204 so stale clients see an empty result rather than a
// failure.
func (h *HandlerContext) FinishAuthenticationHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := h.requireRemoteUser(w, r)
	if !ok {
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		writeError(w, "invalid credential payload", http.StatusBadRequest)
		return
	}

	sess := sessionFromContext(r.Context())
	redirect, err := h.service.FinishAuthentication(r.Context(), sess, username, parsed)
	if err != nil {
		if errors.Is(err, gateway.ErrNoCeremony) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		metrics.RecordAuthentication(false)
		h.logger.Error("finish authentication failed", "username", username, "error", err)
		handleServiceError(w, err)
		return
	}

	metrics.RecordAuthentication(true)
	writeJSON(w, AuthenticateFinishResponse{RedirectURL: redirect}, http.StatusOK)
}

// ListCredentialsHandler lists the asserted user's registered credentials.
func (h *HandlerContext) ListCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := h.requireRemoteUser(w, r)
	if !ok {
		return
	}

	infos, err := h.service.Credentials(r.Context(), username)
	if err != nil {
		h.logger.Error("list credentials failed", "username", username, "error", err)
		handleServiceError(w, err)
		return
	}

	writeJSON(w, CredentialListResponse{Data: infos}, http.StatusOK)
}

// DeleteCredentialHandler revokes a credential by id. Revocation is
// idempotent at the HTTP layer: deleting a credential that is already gone
// still answers 204.
func (h *HandlerContext) DeleteCredentialHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")

	if err := h.service.RemoveCredential(r.Context(), key); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("delete credential failed", "credential", key, "error", err)
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutHandler destroys the server-side session row and expires the cookie.
func (h *HandlerContext) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	if err := h.service.Logout(r.Context(), sess); err != nil {
		h.logger.Error("logout failed", "error", err)
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, h.codec.Expire())
	w.WriteHeader(http.StatusNoContent)
}

// AuthenticatePageHandler renders the login page. A redirect_url query
// parameter is validated against the allowed origins and captured into the
// session before the page is served; a forbidden origin answers 403 and an
// unparsable URL 400, so the open-redirect gate fires before any state is
// written.
func (h *HandlerContext) AuthenticatePageHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := h.requireRemoteUser(w, r)
	if !ok {
		return
	}

	sess := sessionFromContext(r.Context())
	candidate := r.URL.Query().Get("redirect_url")

	if _, err := h.service.CaptureRedirect(r.Context(), sess, candidate); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := web.Render(w, "authenticate", web.AuthenticatePage{Username: username}); err != nil {
		h.logger.Error("failed to render login page", "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// CredentialsPageHandler renders the credential management page.
func (h *HandlerContext) CredentialsPageHandler(w http.ResponseWriter, r *http.Request) {
	username, ok := h.requireRemoteUser(w, r)
	if !ok {
		return
	}

	infos, err := h.service.Credentials(r.Context(), username)
	if err != nil {
		h.logger.Error("list credentials failed", "username", username, "error", err)
		handleServiceError(w, err)
		return
	}

	page := web.CredentialsPage{Username: username, Credentials: make([]web.CredentialItem, len(infos))}
	for i, c := range infos {
		page.Credentials[i] = web.CredentialItem{ID: c.ID, Name: c.Name}
	}

	if err := web.Render(w, "credentials", page); err != nil {
		h.logger.Error("failed to render credentials page", "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}
