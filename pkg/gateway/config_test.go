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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigin:      "https://auth.example.com",
	}
	cfg.SetDefaults()
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			modify: func(c *Config) {},
		},
		{
			name:    "missing rp_id",
			modify:  func(c *Config) { c.RPID = "" },
			wantErr: "rp_id is required",
		},
		{
			name:    "missing display name",
			modify:  func(c *Config) { c.RPDisplayName = "" },
			wantErr: "rp_display_name is required",
		},
		{
			name:    "missing origin",
			modify:  func(c *Config) { c.RPOrigin = "" },
			wantErr: "rp_origin is required",
		},
		{
			name:    "relative origin",
			modify:  func(c *Config) { c.RPOrigin = "/authenticate" },
			wantErr: "absolute URL",
		},
		{
			name:    "relative extra origin",
			modify:  func(c *Config) { c.ExtraAllowedOrigins = []string{"not a url"} },
			wantErr: "absolute URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateRedirect(t *testing.T) {
	cfg := testConfig()
	cfg.ExtraAllowedOrigins = []string{"https://other.net"}

	tests := []struct {
		name      string
		candidate string
		wantErr   error
		wantURL   string
	}{
		{
			name:      "canonical origin",
			candidate: "https://auth.example.com/credentials",
			wantURL:   "https://auth.example.com/credentials",
		},
		{
			name:      "extra allowed origin",
			candidate: "https://other.net/home",
			wantURL:   "https://other.net/home",
		},
		{
			name:      "subdomain of rp id",
			candidate: "https://sub.example.com/app",
			wantURL:   "https://sub.example.com/app",
		},
		{
			name:      "apex of rp id",
			candidate: "https://example.com/",
			wantURL:   "https://example.com/",
		},
		{
			name:      "suffix-spoofed host",
			candidate: "https://example.com.evil.com/",
			wantErr:   ErrForbiddenRedirect,
		},
		{
			name:      "unrelated host",
			candidate: "https://example.net/",
			wantErr:   ErrForbiddenRedirect,
		},
		{
			name:      "scheme downgrade on subdomain",
			candidate: "http://sub.example.com/",
			wantErr:   ErrForbiddenRedirect,
		},
		{
			name:      "relative url",
			candidate: "/credentials",
			wantErr:   ErrInvalidRedirect,
		},
		{
			name:      "empty",
			candidate: "",
			wantErr:   ErrInvalidRedirect,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := cfg.ValidateRedirect(tt.candidate)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, u.String())
		})
	}
}

func TestValidateRedirectSubdomainsDisabled(t *testing.T) {
	cfg := testConfig()
	f := false
	cfg.AllowSubdomains = &f

	_, err := cfg.ValidateRedirect("https://sub.example.com/app")
	assert.ErrorIs(t, err, ErrForbiddenRedirect)

	// The canonical origin still passes on the exact-match path.
	_, err = cfg.ValidateRedirect("https://auth.example.com/credentials")
	assert.NoError(t, err)
}

func TestDefaultRedirect(t *testing.T) {
	cfg := testConfig()
	cfg.RPOrigin = "https://auth.example.com/"

	svc := &Service{config: cfg}
	assert.Equal(t, "https://auth.example.com/credentials", svc.DefaultRedirect())
}
