// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package supervisor provides process supervision using suture v4.

The tree groups long-running services into three layers so a crashing
maintenance loop is restarted without taking the HTTP server down:

	dopamine-realtime
	├── data-layer
	│   └── StoreGCService (storage.backend=badger)
	├── messaging-layer
	│   ├── HeartbeatService
	│   └── CleanupService
	└── api-layer
	    └── HTTPService

Supervisor events (service start, panic, backoff) are logged through a
slog logger backed by zerolog, via sutureslog.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.Add(supervisor.LayerMessaging, services.NewHeartbeatService(manager, cfg.Realtime.HeartbeatInterval))
	tree.Add(supervisor.LayerAPI, services.NewHTTPService(server, cfg.Server.ShutdownTimeout, manager.Close))
	err = tree.Serve(ctx)

See the services subpackage for the wrappers.
*/
package supervisor
