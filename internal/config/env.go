// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/streamgate/streamgate/internal/log"
)

// parseString reads a string environment variable, falling back to def when
// the variable is unset or empty.
func parseString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// parseInt reads an integer environment variable, logging and falling back
// to def on parse errors.
func parseInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", def).
			Msg("invalid integer in environment variable, using default")
		return def
	}
	return i
}

// parseDuration reads a Go duration string (e.g. "5s") from the environment.
func parseDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", def).
			Msg("invalid duration in environment variable, using default")
		return def
	}
	return d
}

// parseBool accepts the strconv.ParseBool forms ("1", "true", "TRUE", ...).
func parseBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Bool("default", def).
			Msg("invalid boolean in environment variable, using default")
		return def
	}
	return b
}
