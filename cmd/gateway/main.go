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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-webauthn-gateway/internal/config"
	"github.com/jeremyhahn/go-webauthn-gateway/internal/rest"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/credential"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/gateway"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/logging"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/metrics"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/ratelimit"
	"github.com/jeremyhahn/go-webauthn-gateway/pkg/session"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/webauthn-gateway/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("webauthn-gateway\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("GATEWAY_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting gateway",
		"config", *configPath,
		"version", version,
		"rp_id", cfg.WebAuthn.RPID)

	if err := os.MkdirAll(cfg.Storage.Path, 0o700); err != nil {
		logger.Error("Failed to create state directory", slog.Any("error", err))
		os.Exit(1)
	}

	sessions, err := session.NewSQLiteStore(&session.SQLiteConfig{
		Path: filepath.Join(cfg.Storage.Path, "sessions.db"),
		TTL:  cfg.Session.TTL.Std(),
	})
	if err != nil {
		logger.Error("Failed to open session store", slog.Any("error", err))
		os.Exit(1)
	}
	defer sessions.Close()

	creds, err := credential.NewSQLiteStore(filepath.Join(cfg.Storage.Path, "credentials.db"))
	if err != nil {
		logger.Error("Failed to open credential store", slog.Any("error", err))
		os.Exit(1)
	}
	defer creds.Close()

	rpConfig := cfg.WebAuthn.ToGateway()
	service, err := gateway.NewService(gateway.ServiceParams{
		Config:      &rpConfig,
		Sessions:    sessions,
		Credentials: creds,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("Failed to create gateway service", slog.Any("error", err))
		os.Exit(1)
	}

	codec, err := session.NewCookieCodec(cfg.Session.CookieName, []byte(cfg.Session.Secret))
	if err != nil {
		logger.Error("Failed to create cookie codec", slog.Any("error", err))
		os.Exit(1)
	}
	codec = codec.WithDomain(cfg.Session.CookieDomain).WithSecure(cfg.Session.Secure)

	metrics.SetEnabled(cfg.Metrics.Enabled)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
			Burst:             cfg.RateLimit.Burst,
		})
		defer limiter.Stop()
	}

	server, err := rest.NewServer(&rest.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Service:        service,
		Sessions:       sessions,
		Codec:          codec,
		Limiter:        limiter,
		Logger:         logger.With("component", "rest"),
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		ReadTimeout:    cfg.Server.ReadTimeout.Std(),
		WriteTimeout:   cfg.Server.WriteTimeout.Std(),
		IdleTimeout:    cfg.Server.IdleTimeout.Std(),
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	shutdownCtx := setupSignalHandler(logger)

	sweeper := session.NewSweeper(sessions, cfg.Session.SweepSchedule)
	if err := sweeper.Start(shutdownCtx); err != nil {
		logger.Error("Failed to start session sweeper", slog.Any("error", err))
		os.Exit(1)
	}
	defer sweeper.Stop()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("Gateway started", "host", cfg.Server.Host, "port", cfg.Server.Port)

	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		logger.Error("Server error", slog.Any("error", err))
	}

	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownTimeout); err != nil {
		logger.Error("Error during server shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Gateway stopped")
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler(logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
