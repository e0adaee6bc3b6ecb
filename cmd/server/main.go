// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/dopaminewatch/realtime/internal/config"
	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/supervisor"
	"github.com/dopaminewatch/realtime/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("storage", cfg.Storage.Backend).
		Bool("jwt", cfg.Security.JWTSecret != "").
		Msg("Starting dopamine.watch realtime service")

	app, err := buildApplication(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer func() {
		if err := app.store.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close party store")
		}
	}()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           app.router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	type layered struct {
		layer supervisor.Layer
		svc   suture.Service
	}
	plan := []layered{
		{supervisor.LayerMessaging, services.NewHeartbeatService(app.manager, cfg.Realtime.HeartbeatInterval)},
		{supervisor.LayerMessaging, services.NewCleanupService(app.manager, cfg.Realtime.CleanupInterval)},
		{supervisor.LayerAPI, services.NewHTTPService(server, cfg.Server.ShutdownTimeout, app.manager.Close)},
	}
	if app.store.badger != nil {
		plan = append(plan, layered{supervisor.LayerData, services.NewStoreGCService(app.store.badger, cfg.Storage.GCInterval)})
	}
	for _, p := range plan {
		if _, err := tree.Add(p.layer, p.svc); err != nil {
			logging.Fatal().Err(err).Msg("Failed to add service")
		}
	}
	for layer, names := range tree.Services() {
		logging.Info().Str("layer", string(layer)).Strs("services", names).Msg("Supervisor layer configured")
	}
	logging.Info().Str("addr", server.Addr).Msg("HTTP server listening address")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		stop()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	// The HTTP service drains connections on shutdown; this covers a tree
	// that exited before the API layer stopped.
	app.manager.Close()

	logging.Info().Msg("Application stopped gracefully")
}
