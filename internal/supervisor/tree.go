// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Layer names a branch of the tree. Each layer restarts its own services
// independently of the others.
type Layer string

const (
	// LayerData holds storage maintenance (Badger value log GC).
	LayerData Layer = "data-layer"
	// LayerMessaging holds realtime maintenance (heartbeat, stale cleanup).
	LayerMessaging Layer = "messaging-layer"
	// LayerAPI holds the HTTP and WebSocket listener.
	LayerAPI Layer = "api-layer"
)

var layers = []Layer{LayerData, LayerMessaging, LayerAPI}

// TreeConfig holds restart policy. Zero fields take DefaultTreeConfig values.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	// ShutdownTimeout bounds how long each service may take to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec() suture.Spec {
	return suture.Spec{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// SupervisorTree is the process supervisor hierarchy:
//
//	dopamine-realtime
//	├── data-layer       store GC
//	├── messaging-layer  heartbeat, stale connection cleanup
//	└── api-layer        HTTP server
type SupervisorTree struct {
	root   *suture.Supervisor
	layers map[Layer]*suture.Supervisor
	config TreeConfig

	mu       sync.Mutex
	services map[Layer][]string
}

// NewSupervisorTree builds the tree. Supervisor events are logged through logger.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	config = config.withDefaults()

	// MustHook has a pointer receiver.
	hook := &sutureslog.Handler{Logger: logger}
	rootSpec := config.spec()
	rootSpec.EventHook = hook.MustHook()

	t := &SupervisorTree{
		root:     suture.New("dopamine-realtime", rootSpec),
		layers:   make(map[Layer]*suture.Supervisor, len(layers)),
		config:   config,
		services: make(map[Layer][]string),
	}
	// Children inherit the root's EventHook when added.
	for _, l := range layers {
		sup := suture.New(string(l), config.spec())
		t.layers[l] = sup
		t.root.Add(sup)
	}
	return t, nil
}

// Add registers svc under layer.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) (suture.ServiceToken, error) {
	sup, ok := t.layers[layer]
	if !ok {
		return suture.ServiceToken{}, fmt.Errorf("unknown supervisor layer %q", layer)
	}
	t.mu.Lock()
	t.services[layer] = append(t.services[layer], fmt.Sprint(svc))
	t.mu.Unlock()
	return sup.Add(svc), nil
}

// Services returns the names of the services registered per layer.
func (t *SupervisorTree) Services() map[Layer][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Layer][]string, len(t.services))
	for l, names := range t.services {
		out[l] = append([]string(nil), names...)
	}
	return out
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result when the tree stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
