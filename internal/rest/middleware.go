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
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeremyhahn/go-webauthn-gateway/pkg/gateway"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/metrics"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/session"
)

// RemoteUserHeader carries the username asserted by the trusted reverse
// proxy. Its value is trusted verbatim; the transport layer is responsible
// for stripping client-supplied copies.
const RemoteUserHeader = "X-Remote-User"

type contextKey string

const sessionContextKey contextKey = "gateway.session"

// sessionFromContext returns the session attached by SessionMiddleware.
func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionContextKey).(*session.Session)
	return sess
}

// remoteUser extracts the trusted identity header. An empty value means the
// request did not pass through the authenticating proxy.
func remoteUser(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(RemoteUserHeader))
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// newResponseWriter creates a new responseWriter.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// LoggingMiddleware logs HTTP requests using the configured logger.
func (s *Server) LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			s.logger.Info("Request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start).String())
		})
	}
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func (s *Server) RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					s.logger.Error("Panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"error", err)
					writeError(w, "internal server error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// SessionMiddleware attaches a durable session to the request context. A
// valid signed cookie resolves to its stored session; anything else (no
// cookie, bad signature, expired or unknown id) gets a fresh session and a
// new cookie.
func (h *HandlerContext) SessionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var sess *session.Session
			if id, ok := h.codec.Decode(r); ok {
				loaded, err := h.sessions.Load(ctx, id)
				if err == nil {
					sess = loaded
				} else if err != session.ErrNotFound {
					h.logger.Error("failed to load session", "error", err)
					writeError(w, "internal server error", http.StatusInternalServerError)
					return
				}
			}

			if sess == nil {
				created, err := h.sessions.Create(ctx)
				if err != nil {
					h.logger.Error("failed to create session", "error", err)
					writeError(w, "internal server error", http.StatusInternalServerError)
					return
				}
				sess = created
				http.SetCookie(w, h.codec.Encode(sess))
			}

			ctx = context.WithValue(ctx, sessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLoggedIn gates a route on an authenticated session. Browsers are
// redirected to the login page with the original destination as the
// post-login redirect target.
func (h *HandlerContext) RequireLoggedIn() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessionFromContext(r.Context())
			if !gateway.LoggedIn(sess) {
				metrics.RecordAccess(false)
				http.Redirect(w, r, h.loginRedirect(r), http.StatusTemporaryRedirect)
				return
			}

			metrics.RecordAccess(true)
			next.ServeHTTP(w, r)
		})
	}
}

// loginRedirect builds the login page URL carrying the original destination
// as an absolute URL so it passes the redirect origin gate.
func (h *HandlerContext) loginRedirect(r *http.Request) string {
	origin := strings.TrimSuffix(h.service.Config().RPOrigin, "/")
	target := origin + r.URL.RequestURI()
	return "/authenticate?redirect_url=" + url.QueryEscape(target)
}
