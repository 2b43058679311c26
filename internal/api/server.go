// SPDX-License-Identifier: MIT

// Package api implements the gateway's HTTP surface.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/streamgate/streamgate/internal/api/middleware"
	"github.com/streamgate/streamgate/internal/probe"
	"github.com/streamgate/streamgate/internal/session"
)

// ServerConfig carries the handler-level knobs; transport concerns live in
// cmd/daemon.
type ServerConfig struct {
	FFmpegPath         string
	AllowedOrigins     []string
	RateLimitPerMinute int
	TracingService     string
}

// Server bundles the HTTP handlers with their collaborators.
type Server struct {
	cfg    ServerConfig
	engine *session.Engine
	store  *session.Store
	prober *probe.Prober
	logger zerolog.Logger

	clientLogLimiter *clientLogLimiter
}

// NewServer wires the handler set.
func NewServer(cfg ServerConfig, engine *session.Engine, store *session.Store, prober *probe.Prober, logger zerolog.Logger) *Server {
	return &Server{
		cfg:              cfg,
		engine:           engine,
		store:            store,
		prober:           prober,
		logger:           logger,
		clientLogLimiter: newClientLogLimiter(),
	}
}

// Routes builds the router with the canonical middleware stack.
func (s *Server) Routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins:     s.cfg.AllowedOrigins,
		EnableMetrics:      true,
		TracingService:     s.cfg.TracingService,
		EnableLogging:      true,
		RateLimitPerMinute: s.cfg.RateLimitPerMinute,
	})

	// Preflights must match a route for the middleware chain (and its CORS
	// handler) to run.
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/metadata", s.handleMetadata)
	r.Get("/start", s.handleStart)
	r.Get("/ping", s.handlePing)
	r.Get("/stop", s.handleStop)
	r.Get("/subtitle", s.handleSubtitle)
	r.Get("/direct-stream", s.handleDirectStream)
	r.Head("/direct-stream", s.handleDirectStream)
	r.Post("/client-log", s.handleClientLog)

	r.Get("/hls/*", s.hlsFileServer().ServeHTTP)
	r.Head("/hls/*", s.hlsFileServer().ServeHTTP)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
