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

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-biosecure/internal/rest"
	"github.com/jeremyhahn/go-biosecure/pkg/health"
	"github.com/jeremyhahn/go-biosecure/pkg/metrics"
)

const shutdownTimeout = 10 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fingerprint HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.withStack(func(rt *stack) error {
				return a.serve(ctx, rt)
			})
		},
	}
	cmd.Flags().String(flagAddress, "", "listen address (default \":8443\")")
	_ = a.v.BindPFlag(flagAddress, cmd.Flags().Lookup(flagAddress))
	return cmd
}

func (a *app) serve(ctx context.Context, rt *stack) error {
	cfg := rt.config

	tokens, err := cfg.TokenIssuer()
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	tlsConfig, err := cfg.Server.TLS.LoadTLSConfig()
	if err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.RegisterCheck("storage", health.StorageCheck(rt.backend))
	checker.RegisterCheck("platform", health.PlatformCheck(rt.service))

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metrics.Enable()
		metricsPath = cfg.Metrics.Path
		go metrics.NewResourceCollector(30 * time.Second).Run(ctx)
	} else {
		metrics.Disable()
	}

	srv, err := rest.NewServer(&rest.Config{
		Address:        cfg.Server.Address,
		Service:        rt.service,
		Tokens:         tokens,
		Limiter:        cfg.RateLimiter(),
		Health:         checker,
		MetricsPath:    metricsPath,
		Strict:         cfg.Fingerprint.Strict,
		AllowedOrigins: cfg.RelyingParty.Origins,
		TLSConfig:      tlsConfig,
		Logger:         rt.logger,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	rt.logger.Info("Fingerprint API listening",
		"address", cfg.Server.Address,
		"tls", tlsConfig != nil,
		"strict", cfg.Fingerprint.Strict)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	rt.logger.Info("Shutting down fingerprint API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
