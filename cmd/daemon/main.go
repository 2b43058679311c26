// SPDX-License-Identifier: MIT

// Command daemon runs the streaming gateway: an HTTP front end that probes
// remote media, decides a per-device transcoding strategy and supervises
// ffmpeg processes producing HLS output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamgate/streamgate/internal/api"
	"github.com/streamgate/streamgate/internal/cache"
	"github.com/streamgate/streamgate/internal/config"
	sglog "github.com/streamgate/streamgate/internal/log"
	"github.com/streamgate/streamgate/internal/probe"
	"github.com/streamgate/streamgate/internal/session"
	"github.com/streamgate/streamgate/internal/telemetry"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("streamgate %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "streamgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := sglog.Config{Level: cfg.LogLevel, Service: "streamgate"}
	if cfg.LogOutput == "console" {
		logCfg.Output = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	sglog.Configure(logCfg)
	logger := sglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:    "streamgate",
		ServiceVersion: version,
		Environment:    os.Getenv("STREAMGATE_ENVIRONMENT"),
		ExporterType:   cfg.OTLPProtocol,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		SamplingRate:   1.0,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	probeCache, closeCache, err := buildCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	store, err := session.NewStore(cfg.HLSRoot, sglog.WithComponent("store"))
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}
	defer store.Shutdown()

	prober := probe.New(cfg.FFprobePath, sglog.WithComponent("probe"),
		probe.WithTimeout(cfg.ProbeTimeout),
		probe.WithCache(probeCache),
	)

	engine := session.NewEngine(store, prober, cfg.FFmpegPath, sglog.WithComponent("engine"))

	evictor := session.NewEvictor(store, cfg.EvictionInterval, cfg.IdleThreshold, sglog.WithComponent("evictor"))
	go evictor.Run(ctx)

	server := api.NewServer(api.ServerConfig{
		FFmpegPath:         cfg.FFmpegPath,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TracingService:     "streamgate",
	}, engine, store, prober, sglog.WithComponent("api"))

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: direct-stream proxies and subtitle pipes run as
		// long as the client keeps reading.
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr()).
			Str("hls_root", cfg.HLSRoot).
			Str("version", version).
			Msg("streamgate listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete, closing")
		_ = httpServer.Close()
	}
	return nil
}

// buildCache selects the probe cache backend.
func buildCache(cfg *config.Config, logger zerolog.Logger) (cache.Cache, func(), error) {
	switch cfg.CacheBackend {
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, sglog.WithComponent("cache"))
		if err != nil {
			return nil, nil, fmt.Errorf("init redis cache: %w", err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("probe cache backed by redis")
		return rc, func() { _ = rc.Close() }, nil
	case "none":
		return cache.NewNoOpCache(), func() {}, nil
	default:
		mc := cache.NewMemoryCache(time.Minute)
		closer := func() {
			if s, ok := mc.(interface{ Stop() }); ok {
				s.Stop()
			}
		}
		return mc, closer, nil
	}
}
