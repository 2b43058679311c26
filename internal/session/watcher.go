// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// pollInterval backs the re-stat fallback while waiting on fsnotify events.
// Some filesystems (overlayfs, NFS) drop events, so the watcher re-checks
// the target on this interval regardless.
const pollInterval = 500 * time.Millisecond

// waitForFile blocks until path exists with non-zero size, the context is
// cancelled, or the timeout expires.
func waitForFile(ctx context.Context, logger zerolog.Logger, path string, timeout time.Duration) error {
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	// Re-check after Add: the file may have appeared between the fast path
	// and the watch registration.
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	}

	targetName := filepath.Base(path)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	check := func() bool {
		info, err := os.Stat(path)
		return err == nil && info.Size() > 0
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("timeout waiting for file %s", targetName)
		case <-ticker.C:
			if check() {
				return nil
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			if filepath.Base(event.Name) == targetName &&
				(event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0) {
				if check() {
					return nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}
