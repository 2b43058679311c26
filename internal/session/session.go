// SPDX-License-Identifier: MIT

// Package session tracks streaming sessions and supervises their transcoder
// processes.
package session

import (
	"sync"
	"time"

	"github.com/streamgate/streamgate/internal/decision"
)

// Session is one client's streaming state. A session survives stream
// switches and stop calls; only eviction or store shutdown removes it.
type Session struct {
	// ID is validated before the session is created and is safe to use as a
	// directory name.
	ID string

	dir string

	// startMu serializes start attempts for this session. Starts with
	// different source URLs miss the engine's singleflight key, and the
	// stop-reset-spawn-attach sequence must never interleave: two concurrent
	// transcoders would share one output directory.
	startMu sync.Mutex

	mu            sync.Mutex
	sourceURL     string
	runner        *Runner
	lastHeartbeat time.Time
	lastMode      decision.Mode
	// forceTranscode is sticky: once a speculative start fell back, every
	// later start of this session goes straight to a full transcode.
	forceTranscode bool
}

// Dir returns the session's HLS artifact directory.
func (s *Session) Dir() string { return s.dir }

// Touch records playback activity for the idle evictor.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastHeartbeat = now
	s.mu.Unlock()
}

// LastHeartbeat returns the most recent activity timestamp.
func (s *Session) LastHeartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeat
}

// Mode returns the mode of the most recent start decision.
func (s *Session) Mode() decision.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMode
}

// ForceTranscode reports whether the sticky fallback flag is set.
func (s *Session) ForceTranscode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forceTranscode
}

// Stats returns the live transcoder's latest progress stats, or nil when no
// transcoder is running.
func (s *Session) Stats() *FFmpegStats {
	s.mu.Lock()
	r := s.runner
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Stats()
}

// stopRunner detaches and kills the current transcoder, if any. The kill
// happens outside the session lock; Runner.Kill blocks until the process is
// reaped.
func (s *Session) stopRunner() {
	s.mu.Lock()
	r := s.runner
	s.runner = nil
	s.mu.Unlock()
	if r != nil {
		r.Kill()
	}
}
