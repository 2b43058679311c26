// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus instrumentation for the streaming
// gateway. All collectors are registered on the default registry via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionStartsTotal counts /start outcomes by decided mode and result
	// ("ok", "fallback", "error").
	SessionStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_session_starts_total",
		Help: "Session start attempts by streaming mode and result.",
	}, []string{"mode", "result"})

	// StartupDuration observes the time from /start until the transcoder
	// published its master playlist.
	StartupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamgate_startup_duration_seconds",
		Help:    "Time until the HLS master playlist appeared.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 50, 80, 120},
	}, []string{"mode"})

	// ActiveSessions tracks session records currently held by the store.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamgate_active_sessions",
		Help: "Number of tracked streaming sessions.",
	})

	// ActiveTranscoders tracks running ffmpeg processes.
	ActiveTranscoders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamgate_active_transcoders",
		Help: "Number of running transcoder processes.",
	})

	// FallbacksTotal counts speculative starts that were retried as a full
	// transcode.
	FallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamgate_fallbacks_total",
		Help: "Speculative transcodes that fell back to a full transcode.",
	})

	// EvictionsTotal counts sessions removed by the idle evictor.
	EvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamgate_evictions_total",
		Help: "Sessions evicted after exceeding the idle threshold.",
	})

	// ProbeDuration observes ffprobe latency by result ("ok", "error").
	ProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamgate_probe_duration_seconds",
		Help:    "ffprobe invocation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	// HTTPRequestsTotal counts handled requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	// HTTPRequestDuration observes request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamgate_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)
