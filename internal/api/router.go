// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dopaminewatch/realtime/internal/middleware"
)

// Router builds the HTTP route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil config uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, cfg *ChiMiddlewareConfig) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(cfg),
	}
}

// Setup returns the configured chi handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	// The WebSocket handshake is rate limited like the REST API; identity is
	// resolved inside the handler so browser clients may pass ?token=.
	r.With(router.chiMiddleware.RateLimit()).Get("/ws", router.handler.WebSocket)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.PrometheusMetrics)

		r.Get("/realtime/status", router.handler.RealtimeStatus)

		r.Group(func(r chi.Router) {
			r.Use(router.handler.identity.RequireIdentity)

			r.Route("/parties", func(r chi.Router) {
				r.Post("/", router.handler.CreateParty)
				r.Get("/", router.handler.ListParties)
				r.Post("/join", router.handler.JoinParty)
				r.Get("/{id}", router.handler.GetParty)
				r.Post("/{id}/leave", router.handler.LeaveParty)
				r.Post("/{id}/end", router.handler.EndParty)
				r.Post("/{id}/control", router.handler.ControlParty)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/unread", router.handler.UnreadMessages)
				r.Get("/contacts", router.handler.MessageContacts)
				r.Get("/{user_id}", router.handler.MessageHistory)
				r.Post("/{user_id}", router.handler.SendMessage)
			})
		})
	})

	return r
}
