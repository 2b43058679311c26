// SPDX-License-Identifier: MIT

// Package middleware provides the HTTP ingress middleware for the gateway.
package middleware

import (
	"github.com/go-chi/chi/v5"

	sglog "github.com/streamgate/streamgate/internal/log"
)

// StackConfig configures the canonical ingress middleware stack. Every
// router in the gateway goes through ApplyStack so cross-cutting behavior
// cannot drift between surfaces.
type StackConfig struct {
	AllowedOrigins []string

	EnableMetrics bool
	// TracingService names the tracer; empty disables tracing.
	TracingService string
	EnableLogging  bool

	// RateLimitPerMinute bounds requests per client IP; zero disables.
	RateLimitPerMinute int
}

// NewRouter constructs a chi router with the canonical stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r. Order matters:
// the recoverer is outermost, the rate limiter innermost so rejected
// requests are still logged and counted.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(CORS(cfg.AllowedOrigins))
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(sglog.Middleware())
	}
	if cfg.RateLimitPerMinute > 0 {
		r.Use(RateLimit(cfg.RateLimitPerMinute))
	}
}
