// SPDX-License-Identifier: MIT

package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamgate/streamgate/internal/core/pathutil"
	"github.com/streamgate/streamgate/internal/metrics"
)

// Store holds all live sessions and owns the HLS artifact root.
type Store struct {
	root   string
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates a Store rooted at dir. Artifacts from a previous run are
// stale by definition, so the root is cleared and recreated.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear hls root: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create hls root: %w", err)
	}
	return &Store{
		root:     dir,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}, nil
}

// Root returns the HLS artifact root directory.
func (st *Store) Root() string { return st.root }

// GetOrCreate returns the session for id, creating it (and its artifact
// directory) on first use. The id is validated before it touches the
// filesystem.
func (st *Store) GetOrCreate(id string) (*Session, error) {
	if err := pathutil.ValidateSessionID(id); err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		return s, nil
	}

	dir, err := pathutil.SecureJoin(st.root, id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	s := &Session{
		ID:            id,
		dir:           dir,
		lastHeartbeat: st.now(),
	}
	st.sessions[id] = s
	metrics.ActiveSessions.Set(float64(len(st.sessions)))

	st.logger.Debug().Str("session_id", id).Msg("session created")
	return s, nil
}

// Lookup returns the session for id, or ErrNotFound.
func (st *Store) Lookup(id string) (*Session, error) {
	if err := pathutil.ValidateSessionID(id); err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Snapshot returns the current sessions without holding the lock afterwards.
func (st *Store) Snapshot() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// Remove kills the session's transcoder, deletes its artifacts and forgets
// the record. The kill and filesystem work happen outside the store lock so
// other sessions stay responsive.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
		metrics.ActiveSessions.Set(float64(len(st.sessions)))
	}
	st.mu.Unlock()

	if !ok {
		return
	}

	s.stopRunner()

	// The id may have been recreated while the transcoder was being killed;
	// the new session owns the directory then. The re-check and removal stay
	// under the lock so GetOrCreate cannot interleave a fresh MkdirAll.
	st.mu.Lock()
	if _, recreated := st.sessions[id]; !recreated {
		if err := os.RemoveAll(s.dir); err != nil {
			st.logger.Warn().Err(err).Str("session_id", id).Msg("session directory cleanup failed")
		}
	}
	st.mu.Unlock()

	st.logger.Info().Str("session_id", id).Msg("session removed")
}

// Shutdown kills every running transcoder. Session records and artifacts are
// left in place; the next startup clears the root anyway.
func (st *Store) Shutdown() {
	for _, s := range st.Snapshot() {
		s.stopRunner()
	}
}

// SessionDir resolves a session's directory under the root without requiring
// the session to exist; used by the artifact file server.
func (st *Store) SessionDir(id string) (string, error) {
	if err := pathutil.ValidateSessionID(id); err != nil {
		return "", err
	}
	return filepath.Join(st.root, id), nil
}
