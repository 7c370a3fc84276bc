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
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Config configures the gateway's Relying Party identity and policies.
type Config struct {
	// RPID is the Relying Party identifier, typically the parent domain.
	// Example: "example.com"
	RPID string `yaml:"rp_id" json:"rp_id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	RPDisplayName string `yaml:"rp_display_name" json:"rp_display_name"`

	// RPOrigin is the canonical origin the gateway is served from.
	// Example: "https://auth.example.com"
	RPOrigin string `yaml:"rp_origin" json:"rp_origin"`

	// ExtraAllowedOrigins are additional origins accepted for ceremonies and
	// post-login redirects.
	ExtraAllowedOrigins []string `yaml:"extra_allowed_origins" json:"extra_allowed_origins"`

	// AllowSubdomains additionally accepts redirect targets on any subdomain
	// of RPID, with the scheme of RPOrigin. Default: true.
	AllowSubdomains *bool `yaml:"allow_subdomains" json:"allow_subdomains"`

	// PasswordlessBootstrap treats a username with no enrolled credentials as
	// authenticated on the strength of the upstream identity header alone.
	// This is a deliberate trust-boundary decision: the reverse proxy has
	// already established identity, and a user cannot enroll a first passkey
	// without being let in once. Default: true.
	PasswordlessBootstrap *bool `yaml:"passwordless_bootstrap" json:"passwordless_bootstrap"`

	// Timeout is the ceremony timeout. Default: 60 seconds.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Debug enables go-webauthn debug logging.
	Debug bool `yaml:"debug" json:"debug"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("rp_id is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("rp_display_name is required")
	}
	if c.RPOrigin == "" {
		return fmt.Errorf("rp_origin is required")
	}
	origin, err := url.Parse(c.RPOrigin)
	if err != nil || !origin.IsAbs() || origin.Host == "" {
		return fmt.Errorf("rp_origin must be an absolute URL: %q", c.RPOrigin)
	}
	for _, extra := range c.ExtraAllowedOrigins {
		u, err := url.Parse(extra)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("extra allowed origin must be an absolute URL: %q", extra)
		}
	}
	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.AllowSubdomains == nil {
		t := true
		c.AllowSubdomains = &t
	}
	if c.PasswordlessBootstrap == nil {
		t := true
		c.PasswordlessBootstrap = &t
	}
}

// AllowedOrigins returns the canonical origin plus the configured extras.
func (c *Config) AllowedOrigins() []string {
	return append([]string{c.RPOrigin}, c.ExtraAllowedOrigins...)
}

// ToWebAuthnConfig converts the Config to the go-webauthn configuration.
func (c *Config) ToWebAuthnConfig() *webauthn.Config {
	cfg := &webauthn.Config{
		RPID:          c.RPID,
		RPDisplayName: c.RPDisplayName,
		RPOrigins:     c.AllowedOrigins(),
		Debug:         c.Debug,
	}
	if c.Timeout > 0 {
		cfg.Timeouts = webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
		}
	}
	return cfg
}

// ValidateRedirect parses a post-login redirect candidate and accepts it only
// if its origin (scheme, host, port) exactly matches one of the allowed
// origins, or, when AllowSubdomains is set, it is a subdomain of RPID served
// over the canonical origin's scheme. The gate runs before the candidate is
// ever written into a session, closing the open-redirect vector.
func (c *Config) ValidateRedirect(candidate string) (*url.URL, error) {
	u, err := url.Parse(candidate)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, ErrInvalidRedirect
	}

	for _, allowed := range c.AllowedOrigins() {
		a, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if sameOrigin(u, a) {
			return u, nil
		}
	}

	if c.AllowSubdomains != nil && *c.AllowSubdomains {
		canonical, err := url.Parse(c.RPOrigin)
		if err == nil && u.Scheme == canonical.Scheme && u.Port() == canonical.Port() {
			host := strings.ToLower(u.Hostname())
			rpID := strings.ToLower(c.RPID)
			if host == rpID || strings.HasSuffix(host, "."+rpID) {
				return u, nil
			}
		}
	}

	return nil, ErrForbiddenRedirect
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		a.Port() == b.Port()
}
