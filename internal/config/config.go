// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration from the environment, with
// an optional YAML file providing defaults the environment can override.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	// Port is the HTTP listen port. Read from PORT for platform
	// compatibility, then STREAMGATE_PORT.
	Port int

	// HLSRoot is the directory holding per-session HLS artifacts. It is
	// cleared on startup.
	HLSRoot string

	FFmpegPath  string
	FFprobePath string

	ProbeTimeout time.Duration

	// EvictionInterval and IdleThreshold drive the idle-session reaper.
	EvictionInterval time.Duration
	IdleThreshold    time.Duration

	LogLevel  string
	LogOutput string

	// CacheBackend selects the probe report cache: "memory", "redis" or
	// "none".
	CacheBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// RateLimitPerMinute bounds requests per client IP; zero disables the
	// limiter.
	RateLimitPerMinute int

	// OTLPEndpoint enables trace export when non-empty. OTLPProtocol is
	// "grpc" or "http".
	OTLPEndpoint string
	OTLPProtocol string
	OTLPInsecure bool
}

// fileConfig is the YAML file shape. Every field is optional; the
// environment wins on conflict.
type fileConfig struct {
	Port             int    `yaml:"port,omitempty"`
	HLSRoot          string `yaml:"hlsRoot,omitempty"`
	FFmpegPath       string `yaml:"ffmpegPath,omitempty"`
	FFprobePath      string `yaml:"ffprobePath,omitempty"`
	ProbeTimeout     string `yaml:"probeTimeout,omitempty"`
	EvictionInterval string `yaml:"evictionInterval,omitempty"`
	IdleThreshold    string `yaml:"idleThreshold,omitempty"`
	LogLevel         string `yaml:"logLevel,omitempty"`
	LogOutput        string `yaml:"logOutput,omitempty"`

	Cache struct {
		Backend  string `yaml:"backend,omitempty"`
		Addr     string `yaml:"addr,omitempty"`
		Password string `yaml:"password,omitempty"`
		DB       int    `yaml:"db,omitempty"`
	} `yaml:"cache,omitempty"`

	RateLimitPerMinute int `yaml:"rateLimitPerMinute,omitempty"`

	Telemetry struct {
		OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
		OTLPProtocol string `yaml:"otlpProtocol,omitempty"`
		OTLPInsecure bool   `yaml:"otlpInsecure,omitempty"`
	} `yaml:"telemetry,omitempty"`
}

// Load resolves the configuration. Precedence: environment over YAML file
// over built-in defaults. The file path comes from STREAMGATE_CONFIG_FILE
// and is optional.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("STREAMGATE_CONFIG_FILE"); path != "" {
		fc, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		applyFile(cfg, fc)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:             3000,
		HLSRoot:          filepath.Join(os.TempDir(), "streamgate-hls"),
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		ProbeTimeout:     20 * time.Second,
		EvictionInterval: 5 * time.Minute,
		IdleThreshold:    2 * time.Hour,
		LogLevel:         "info",
		LogOutput:        "json",
		CacheBackend:     "memory",
		RedisAddr:        "localhost:6379",
		OTLPProtocol:     "grpc",
	}
}

func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.Port > 0 {
		cfg.Port = fc.Port
	}
	if fc.HLSRoot != "" {
		cfg.HLSRoot = fc.HLSRoot
	}
	if fc.FFmpegPath != "" {
		cfg.FFmpegPath = fc.FFmpegPath
	}
	if fc.FFprobePath != "" {
		cfg.FFprobePath = fc.FFprobePath
	}
	if d, err := time.ParseDuration(fc.ProbeTimeout); err == nil && fc.ProbeTimeout != "" {
		cfg.ProbeTimeout = d
	}
	if d, err := time.ParseDuration(fc.EvictionInterval); err == nil && fc.EvictionInterval != "" {
		cfg.EvictionInterval = d
	}
	if d, err := time.ParseDuration(fc.IdleThreshold); err == nil && fc.IdleThreshold != "" {
		cfg.IdleThreshold = d
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogOutput != "" {
		cfg.LogOutput = fc.LogOutput
	}
	if fc.Cache.Backend != "" {
		cfg.CacheBackend = fc.Cache.Backend
	}
	if fc.Cache.Addr != "" {
		cfg.RedisAddr = fc.Cache.Addr
	}
	if fc.Cache.Password != "" {
		cfg.RedisPassword = fc.Cache.Password
	}
	if fc.Cache.DB != 0 {
		cfg.RedisDB = fc.Cache.DB
	}
	if fc.RateLimitPerMinute > 0 {
		cfg.RateLimitPerMinute = fc.RateLimitPerMinute
	}
	if fc.Telemetry.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = fc.Telemetry.OTLPEndpoint
	}
	if fc.Telemetry.OTLPProtocol != "" {
		cfg.OTLPProtocol = fc.Telemetry.OTLPProtocol
	}
	if fc.Telemetry.OTLPInsecure {
		cfg.OTLPInsecure = true
	}
}

func applyEnv(cfg *Config) {
	cfg.Port = parseInt("PORT", cfg.Port)
	cfg.Port = parseInt("STREAMGATE_PORT", cfg.Port)
	cfg.HLSRoot = parseString("STREAMGATE_HLS_ROOT", cfg.HLSRoot)
	cfg.FFmpegPath = parseString("STREAMGATE_FFMPEG_PATH", cfg.FFmpegPath)
	cfg.FFprobePath = parseString("STREAMGATE_FFPROBE_PATH", cfg.FFprobePath)
	cfg.ProbeTimeout = parseDuration("STREAMGATE_PROBE_TIMEOUT", cfg.ProbeTimeout)
	cfg.EvictionInterval = parseDuration("STREAMGATE_EVICTION_INTERVAL", cfg.EvictionInterval)
	cfg.IdleThreshold = parseDuration("STREAMGATE_IDLE_THRESHOLD", cfg.IdleThreshold)
	cfg.LogLevel = parseString("STREAMGATE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogOutput = parseString("STREAMGATE_LOG_OUTPUT", cfg.LogOutput)
	cfg.CacheBackend = parseString("STREAMGATE_CACHE_BACKEND", cfg.CacheBackend)
	cfg.RedisAddr = parseString("STREAMGATE_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = parseString("STREAMGATE_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = parseInt("STREAMGATE_REDIS_DB", cfg.RedisDB)
	cfg.RateLimitPerMinute = parseInt("STREAMGATE_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.OTLPEndpoint = parseString("STREAMGATE_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.OTLPProtocol = parseString("STREAMGATE_OTLP_PROTOCOL", cfg.OTLPProtocol)
	cfg.OTLPInsecure = parseBool("STREAMGATE_OTLP_INSECURE", cfg.OTLPInsecure)
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.CacheBackend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	switch c.OTLPProtocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("unknown OTLP protocol %q", c.OTLPProtocol)
	}
	if c.HLSRoot == "" {
		return fmt.Errorf("hls root must not be empty")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
