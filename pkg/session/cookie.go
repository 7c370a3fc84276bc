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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultCookieName is the session cookie name used when none is configured.
const DefaultCookieName = "gateway_session"

// CookieCodec signs session ids into HTTP cookies and verifies them back out.
// The cookie value is "<id>.<base64url(HMAC-SHA256(secret, id))>"; only the
// id travels to the browser, never session data. Verification fails closed.
type CookieCodec struct {
	name   string
	secret []byte
	domain string
	secure bool
}

// NewCookieCodec creates a cookie codec with the given signing secret.
// The secret must be non-empty; the cookie name defaults to DefaultCookieName.
func NewCookieCodec(name string, secret []byte) (*CookieCodec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("cookie signing secret is required")
	}
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieCodec{name: name, secret: secret}, nil
}

// WithDomain sets the cookie Domain attribute.
func (c *CookieCodec) WithDomain(domain string) *CookieCodec {
	c.domain = domain
	return c
}

// WithSecure sets the cookie Secure attribute.
func (c *CookieCodec) WithSecure(secure bool) *CookieCodec {
	c.secure = secure
	return c
}

// Name returns the cookie name.
func (c *CookieCodec) Name() string {
	return c.name
}

// Encode builds the signed session cookie for a session.
func (c *CookieCodec) Encode(sess *Session) *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    sess.ID + "." + c.sign(sess.ID),
		Path:     "/",
		Domain:   c.domain,
		Expires:  sess.ExpiresAt,
		Secure:   c.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Expire builds a cookie that removes the session cookie from the browser.
func (c *CookieCodec) Expire() *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   c.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Decode extracts and verifies the session id from the request cookie.
// Any failure (missing cookie, malformed value, bad signature) yields
// ok=false so callers treat the request as having no session.
func (c *CookieCodec) Decode(r *http.Request) (id string, ok bool) {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return "", false
	}
	id, sig, found := strings.Cut(cookie.Value, ".")
	if !found || id == "" {
		return "", false
	}
	expected := c.sign(id)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", false
	}
	return id, true
}

func (c *CookieCodec) sign(id string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
