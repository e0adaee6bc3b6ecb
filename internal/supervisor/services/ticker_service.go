// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package services

import (
	"context"
	"time"

	"github.com/dopaminewatch/realtime/internal/logging"
)

// Pinger sends a heartbeat ping to every connection.
// Satisfied by *websocket.Manager.
type Pinger interface {
	PingAll() int
}

// Reaper closes connections whose heartbeat has lapsed.
// Satisfied by *websocket.Manager.
type Reaper interface {
	ReapStale(now time.Time) int
}

// GarbageCollector reclaims storage space.
// Satisfied by *store.BadgerPartyRepository.
type GarbageCollector interface {
	RunGC() error
}

// TickerService runs tick on a fixed interval until its context ends.
// A tick error is returned to the supervisor, which restarts the service.
type TickerService struct {
	name     string
	interval time.Duration
	tick     func(now time.Time) error
}

// NewTickerService creates a named periodic service.
func NewTickerService(name string, interval time.Duration, tick func(now time.Time) error) *TickerService {
	return &TickerService{name: name, interval: interval, tick: tick}
}

// NewHeartbeatService pings every connection each interval.
func NewHeartbeatService(p Pinger, interval time.Duration) *TickerService {
	return NewTickerService("realtime-heartbeat", interval, func(time.Time) error {
		n := p.PingAll()
		logging.Debug().Int("connections", n).Msg("heartbeat sent")
		return nil
	})
}

// NewCleanupService reaps stale connections each interval.
func NewCleanupService(r Reaper, interval time.Duration) *TickerService {
	return NewTickerService("realtime-cleanup", interval, func(now time.Time) error {
		if n := r.ReapStale(now); n > 0 {
			logging.Info().Int("reaped", n).Msg("stale connections removed")
		}
		return nil
	})
}

// NewStoreGCService runs storage garbage collection each interval.
func NewStoreGCService(gc GarbageCollector, interval time.Duration) *TickerService {
	return NewTickerService("store-gc", interval, func(time.Time) error {
		return gc.RunGC()
	})
}

// Serve implements suture.Service.
func (s *TickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := s.tick(now); err != nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("periodic task failed")
				return err
			}
		}
	}
}

// String names the service in supervisor events.
func (s *TickerService) String() string {
	return s.name
}
