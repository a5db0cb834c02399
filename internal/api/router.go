// TuneBloom - Music Discovery Recommendation Service
// Copyright 2026 TuneBloom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tunebloom/tunebloom/internal/config"
	"github.com/tunebloom/tunebloom/internal/middleware"
)

// Router wires the HTTP routes.
type Router struct {
	handler *Handler
	cfg     *config.ServerConfig
}

// NewRouter creates the router over the handler.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup builds the chi route tree with the global middleware stack.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Operational endpoints stay outside the rate limit.
	r.Get("/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow))
		r.Use(middleware.Prometheus)

		r.Post("/sessions", router.handler.CreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Delete("/", router.handler.DeleteSession)
			r.Post("/recommendations", router.handler.Recommendations)
			r.Post("/exclusions/{trackID}", router.handler.AddExclusion)
			r.Delete("/exclusions/{trackID}", router.handler.RemoveExclusion)
			r.Post("/playlists", router.handler.ExportPlaylist)
			r.Post("/reset", router.handler.ResetSession)
		})
	})

	return r
}
