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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCookieCodec(t *testing.T) {
	_, err := NewCookieCodec("", nil)
	assert.Error(t, err)

	codec, err := NewCookieCodec("", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCookieName, codec.Name())

	codec, err = NewCookieCodec("custom", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, "custom", codec.Name())
}

func TestCookieRoundTrip(t *testing.T) {
	codec, err := NewCookieCodec("", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	sess := &Session{ID: "abc123", ExpiresAt: time.Now().Add(time.Hour)}
	cookie := codec.Encode(sess)

	assert.Equal(t, DefaultCookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookie)

	id, ok := codec.Decode(r)
	require.True(t, ok)
	assert.Equal(t, "abc123", id)
}

func TestCookieDecodeFailsClosed(t *testing.T) {
	codec, err := NewCookieCodec("", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	sess := &Session{ID: "abc123", ExpiresAt: time.Now().Add(time.Hour)}
	good := codec.Encode(sess).Value

	tests := []struct {
		name  string
		value string
	}{
		{"missing cookie", ""},
		{"no signature", "abc123"},
		{"empty id", "." + strings.SplitN(good, ".", 2)[1]},
		{"tampered id", "xyz789." + strings.SplitN(good, ".", 2)[1]},
		{"tampered signature", "abc123.AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{"garbage", "not-a-session-cookie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.value != "" {
				r.AddCookie(&http.Cookie{Name: codec.Name(), Value: tt.value})
			}
			_, ok := codec.Decode(r)
			assert.False(t, ok)
		})
	}
}

func TestCookieDecodeWrongSecret(t *testing.T) {
	signer, err := NewCookieCodec("", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	verifier, err := NewCookieCodec("", []byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	sess := &Session{ID: "abc123", ExpiresAt: time.Now().Add(time.Hour)}
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(signer.Encode(sess))

	_, ok := verifier.Decode(r)
	assert.False(t, ok)
}

func TestCookieExpire(t *testing.T) {
	codec, err := NewCookieCodec("", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	cookie := codec.Expire()
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
}
