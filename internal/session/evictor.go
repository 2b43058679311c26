// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamgate/streamgate/internal/metrics"
)

const (
	// DefaultEvictionInterval is how often the evictor scans for idle
	// sessions.
	DefaultEvictionInterval = 5 * time.Minute
	// DefaultIdleThreshold is how long a session may go without a heartbeat
	// before its transcoder and artifacts are reclaimed.
	DefaultIdleThreshold = 2 * time.Hour
)

// Evictor reclaims sessions whose players stopped sending heartbeats.
type Evictor struct {
	store     *Store
	interval  time.Duration
	threshold time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEvictor creates an evictor with the default cadence. Zero values for
// interval or threshold select the defaults.
func NewEvictor(store *Store, interval, threshold time.Duration, logger zerolog.Logger) *Evictor {
	if interval <= 0 {
		interval = DefaultEvictionInterval
	}
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}
	return &Evictor{
		store:     store,
		interval:  interval,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping on each tick.
func (ev *Evictor) Run(ctx context.Context) {
	ticker := time.NewTicker(ev.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev.Sweep()
		}
	}
}

// Sweep removes every session idle past the threshold. Victims are selected
// from a snapshot and re-checked individually, so a heartbeat racing the
// sweep wins.
func (ev *Evictor) Sweep() {
	cutoff := ev.now().Add(-ev.threshold)

	var victims []string
	for _, s := range ev.store.Snapshot() {
		if s.LastHeartbeat().Before(cutoff) {
			victims = append(victims, s.ID)
		}
	}

	for _, id := range victims {
		s, err := ev.store.Lookup(id)
		if err != nil {
			continue
		}
		if !s.LastHeartbeat().Before(cutoff) {
			continue
		}
		ev.logger.Info().
			Str("session_id", id).
			Time("last_heartbeat", s.LastHeartbeat()).
			Msg("evicting idle session")
		ev.store.Remove(id)
		metrics.EvictionsTotal.Inc()
	}
}
