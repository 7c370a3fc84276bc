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

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/go-webauthn-gateway/pkg/gateway"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "12h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or \"12h\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebAuthn  WebAuthnConfig  `yaml:"webauthn"`
	Session   SessionConfig   `yaml:"session"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// WebAuthnConfig contains the Relying Party settings
type WebAuthnConfig struct {
	RPID                  string   `yaml:"rp_id"`
	RPDisplayName         string   `yaml:"rp_display_name"`
	RPOrigin              string   `yaml:"rp_origin"`
	ExtraAllowedOrigins   []string `yaml:"extra_allowed_origins"`
	AllowSubdomains       *bool    `yaml:"allow_subdomains"`
	PasswordlessBootstrap *bool    `yaml:"passwordless_bootstrap"`
	Timeout               Duration `yaml:"timeout"`
	Debug                 bool     `yaml:"debug"`
}

// ToGateway converts the section into the domain configuration.
func (w *WebAuthnConfig) ToGateway() gateway.Config {
	return gateway.Config{
		RPID:                  w.RPID,
		RPDisplayName:         w.RPDisplayName,
		RPOrigin:              w.RPOrigin,
		ExtraAllowedOrigins:   w.ExtraAllowedOrigins,
		AllowSubdomains:       w.AllowSubdomains,
		PasswordlessBootstrap: w.PasswordlessBootstrap,
		Timeout:               w.Timeout.Std(),
		Debug:                 w.Debug,
	}
}

// SessionConfig controls session cookies and the durable session store
type SessionConfig struct {
	// Secret signs session cookies. Required, at least 32 bytes.
	Secret string `yaml:"secret"`

	CookieName   string   `yaml:"cookie_name"`
	CookieDomain string   `yaml:"cookie_domain"`
	Secure       bool     `yaml:"secure"`
	TTL          Duration `yaml:"ttl"`

	// SweepSchedule is a cron expression for expired session cleanup.
	// Supports @every syntax, e.g. "@every 1h".
	SweepSchedule string `yaml:"sweep_schedule"`
}

// StorageConfig controls the SQLite state directory
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RateLimitConfig controls rate limiting on ceremony endpoints
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// SetDefaults fills in defaults for unset fields
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(10 * time.Second)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(120 * time.Second)
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "gateway_session"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = Duration(24 * time.Hour)
	}
	if c.Session.SweepSchedule == "" {
		c.Session.SweepSchedule = "@every 1h"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/webauthn-gateway"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.RateLimit.RequestsPerMin == 0 {
		c.RateLimit.RequestsPerMin = 60
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("GATEWAY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("GATEWAY_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid GATEWAY_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid GATEWAY_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	if rpID := os.Getenv("GATEWAY_RP_ID"); rpID != "" {
		cfg.WebAuthn.RPID = rpID
	}
	if origin := os.Getenv("GATEWAY_RP_ORIGIN"); origin != "" {
		cfg.WebAuthn.RPOrigin = origin
	}

	// Keep the signing secret out of config files where possible.
	if secret := os.Getenv("GATEWAY_SESSION_SECRET"); secret != "" {
		cfg.Session.Secret = secret
	}

	if dataDir := os.Getenv("GATEWAY_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}

	if level := os.Getenv("GATEWAY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("GATEWAY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	gc := c.WebAuthn.ToGateway()
	if err := gc.Validate(); err != nil {
		return err
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session secret must be specified (config or GATEWAY_SESSION_SECRET)")
	}
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 bytes, got %d", len(c.Session.Secret))
	}
	if c.Session.TTL.Std() < time.Minute {
		return fmt.Errorf("session TTL must be at least 1m, got %s", c.Session.TTL.Std())
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path must be specified")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive, got %d", c.RateLimit.RequestsPerMin)
	}

	return nil
}
