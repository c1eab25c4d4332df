// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-biosecure.
//
// go-biosecure is dual-licensed:
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
	"syscall"
	"time"

	"github.com/jeremyhahn/go-biosecure/internal/config"
	"github.com/jeremyhahn/go-biosecure/internal/rest"
	"github.com/jeremyhahn/go-biosecure/pkg/fingerprint"
	"github.com/jeremyhahn/go-biosecure/pkg/health"
	"github.com/jeremyhahn/go-biosecure/pkg/metrics"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "/etc/biosecure/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-biosecure server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("BIOSECURE_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	slog.Info("Starting fingerprint server",
		"config", *configPath,
		"version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := cfg.Logger()

	backend, err := cfg.OpenStorage()
	if err != nil {
		logger.Errorf("Failed to open storage: %v", err)
		os.Exit(1)
	}
	defer backend.Close()

	provider, err := cfg.Provider(backend)
	if err != nil {
		logger.Errorf("Failed to create authenticator: %v", err)
		os.Exit(1)
	}
	svc, err := fingerprint.NewService(fingerprint.ServiceParams{
		Config:   cfg.FingerprintConfig(),
		Provider: provider,
		Store:    cfg.CredentialStore(backend, logger),
		Logger:   logger,
	})
	if err != nil {
		logger.Errorf("Failed to create fingerprint service: %v", err)
		os.Exit(1)
	}
	tokens, err := cfg.TokenIssuer()
	if err != nil {
		logger.Errorf("Failed to create token issuer: %v", err)
		os.Exit(1)
	}
	tlsConfig, err := cfg.Server.TLS.LoadTLSConfig()
	if err != nil {
		logger.Errorf("Failed to load TLS configuration: %v", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.RegisterCheck("storage", health.StorageCheck(backend))
	checker.RegisterCheck("platform", health.PlatformCheck(svc))

	shutdownCtx := setupSignalHandler()

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
		go metrics.NewResourceCollector(30 * time.Second).Run(shutdownCtx)
	} else {
		metrics.Disable()
	}

	srv, err := rest.NewServer(&rest.Config{
		Address:        cfg.Server.Address,
		Service:        svc,
		Tokens:         tokens,
		Limiter:        cfg.RateLimiter(),
		Health:         checker,
		MetricsPath:    metricsPath,
		Strict:         cfg.Fingerprint.Strict,
		AllowedOrigins: cfg.RelyingParty.Origins,
		TLSConfig:      tlsConfig,
		Logger:         logger,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create server: %v", err)
		os.Exit(1)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("Fingerprint server started", "address", cfg.Server.Address)

	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		logger.Errorf("Server error: %v", err)
	}

	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownTimeout); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Fingerprint server stopped")
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		cancel()
	}()

	return ctx
}
