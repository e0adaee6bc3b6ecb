// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package services provides suture.Service wrappers for the realtime server.

Each wrapper implements:

	type Service interface {
	    Serve(ctx context.Context) error
	}

and fmt.Stringer so supervisor events name the service.

  - HTTPService: ListenAndServe with graceful Shutdown; closes WebSocket
    sessions first through a drain hook.
  - HeartbeatService: pings every connection on the heartbeat interval.
  - CleanupService: reaps connections whose heartbeat lapsed.
  - StoreGCService: Badger value log GC.

The periodic services share TickerService. Consumers are described by small
interfaces (Pinger, Reaper, GarbageCollector) so this package does not
import the realtime or storage packages.
*/
package services
