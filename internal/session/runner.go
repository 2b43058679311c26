// SPDX-License-Identifier: MIT

package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamgate/streamgate/internal/decision"
	"github.com/streamgate/streamgate/internal/ffmpeg"
	"github.com/streamgate/streamgate/internal/metrics"
)

var (
	// ErrStartupFailed means the transcoder exited before publishing its
	// master playlist.
	ErrStartupFailed = errors.New("transcoder exited during startup")
	// ErrReadyTimeout means the transcoder is still running but produced no
	// master playlist within the readiness window.
	ErrReadyTimeout = errors.New("transcoder readiness timeout")
)

const (
	// SpeculativeReadyTimeout bounds readiness for copy-based modes; if a
	// remux is going to fail it fails fast, so the window is short.
	SpeculativeReadyTimeout = 50 * time.Second
	// FullReadyTimeout bounds readiness for full transcodes, which need to
	// encode a whole first segment before the playlist appears.
	FullReadyTimeout = 120 * time.Second

	killGrace = 3 * time.Second
)

// Runner supervises a single ffmpeg process writing HLS artifacts into one
// session directory.
type Runner struct {
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	dir       string
	sourceURL string
	mode      decision.Mode
	logger    zerolog.Logger

	done    chan struct{} // closed after the process exits
	exitErr error         // valid once done is closed

	statsMu   sync.Mutex
	lastStats *FFmpegStats

	killOnce sync.Once
}

// startRunner spawns ffmpeg in its own process group and begins supervising
// it. The returned Runner is not yet ready; call WaitReady.
func startRunner(ffmpegPath string, args []string, dir, sourceURL string, mode decision.Mode, logger zerolog.Logger) (*Runner, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// #nosec G204 -- binary path comes from configuration, args are built internally
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	// Own process group so a kill reaps ffmpeg's helper children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = nil

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	r := &Runner{
		cmd:       cmd,
		cancel:    cancel,
		dir:       dir,
		sourceURL: sourceURL,
		mode:      mode,
		logger:    logger,
		done:      make(chan struct{}),
	}

	var stderrWg sync.WaitGroup
	stderrWg.Add(1)
	go func() {
		defer stderrWg.Done()
		scanner := bufio.NewScanner(stderrPipe)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		statsTicker := time.NewTicker(5 * time.Second)
		defer statsTicker.Stop()

		for scanner.Scan() {
			line := scanner.Text()

			if stats := ParseFFmpegStats(line); stats != nil {
				r.statsMu.Lock()
				r.lastStats = stats
				r.statsMu.Unlock()
				select {
				case <-statsTicker.C:
					logger.Info().
						Str("event", "ffmpeg.stats").
						Float64("speed", stats.Speed).
						Float64("bitrate_kbps", stats.BitrateKBPS).
						Msg("transcoder progress")
				default:
				}
				continue
			}

			lower := strings.ToLower(line)
			if strings.Contains(lower, "error") || strings.Contains(lower, "fail") {
				logger.Warn().Str("stderr", line).Msg("ffmpeg error output")
			} else {
				logger.Debug().Str("stderr", line).Msg("ffmpeg stderr")
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Debug().Err(err).Msg("ffmpeg stderr scanner error")
		}
	}()

	logger.Info().
		Str("event", "transcoder.start").
		Str("mode", string(mode)).
		Str("source", sourceURL).
		Str("output_dir", dir).
		Msg("starting transcoder")

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	metrics.ActiveTranscoders.Inc()

	go func() {
		stderrWg.Wait()
		r.exitErr = cmd.Wait()
		metrics.ActiveTranscoders.Dec()
		close(r.done)

		if r.exitErr != nil && ctx.Err() == nil {
			logger.Error().Err(r.exitErr).Msg("transcoder exited with error")
		} else {
			logger.Debug().Msg("transcoder exited")
		}
	}()

	return r, nil
}

// WaitReady blocks until the master playlist exists, the process dies, the
// readiness window expires, or ctx is cancelled. On failure the process is
// killed before returning.
func (r *Runner) WaitReady(ctx context.Context) error {
	timeout := FullReadyTimeout
	if r.mode.Speculative() {
		timeout = SpeculativeReadyTimeout
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	playlist := filepath.Join(r.dir, ffmpeg.MasterPlaylistName)
	watch := make(chan error, 1)
	go func() {
		watch <- waitForFile(waitCtx, r.logger, playlist, timeout)
	}()

	select {
	case <-r.done:
		// Short sources finish inside the readiness window. A playlist on
		// disk means the transcode ran to completion, not that startup
		// failed.
		if r.playlistReady() {
			return nil
		}
		r.Kill()
		if r.exitErr != nil {
			return fmt.Errorf("%w: %v", ErrStartupFailed, r.exitErr)
		}
		return ErrStartupFailed
	case err := <-watch:
		if err == nil {
			return nil
		}
		r.Kill()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Distinguish a dead process from a slow one: the process may have
		// exited while the watch error was in flight.
		select {
		case <-r.done:
			if r.playlistReady() {
				return nil
			}
			if r.exitErr != nil {
				return fmt.Errorf("%w: %v", ErrStartupFailed, r.exitErr)
			}
			return ErrStartupFailed
		default:
			return fmt.Errorf("%w after %s", ErrReadyTimeout, timeout)
		}
	}
}

// playlistReady reports whether the master playlist exists with content.
func (r *Runner) playlistReady() bool {
	info, err := os.Stat(filepath.Join(r.dir, ffmpeg.MasterPlaylistName))
	return err == nil && info.Size() > 0
}

// Running reports whether the process has not exited yet.
func (r *Runner) Running() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// SourceURL returns the input URL this runner transcodes.
func (r *Runner) SourceURL() string { return r.sourceURL }

// Mode returns the streaming mode the runner was started with.
func (r *Runner) Mode() decision.Mode { return r.mode }

// Stats returns the most recent parsed ffmpeg progress line, or nil.
func (r *Runner) Stats() *FFmpegStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.lastStats
}

// Kill terminates the whole process group and waits for the exit. Safe to
// call multiple times and after the process already exited.
func (r *Runner) Kill() {
	r.killOnce.Do(func() {
		r.killGroup()
		r.cancel()
	})
	select {
	case <-r.done:
	case <-time.After(killGrace):
		// cmd.Wait is still draining; the SIGKILL below cannot be ignored,
		// so this only happens under extreme scheduler pressure.
		r.logger.Warn().Msg("transcoder did not confirm exit in time")
	}
}

func (r *Runner) killGroup() {
	if r.cmd == nil || r.cmd.Process == nil {
		return
	}
	pid := r.cmd.Process.Pid
	// Setpgid made the process a group leader, so PGID == PID.
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return
		}
		r.logger.Debug().Err(err).Msg("getpgid failed, killing single process")
		_ = r.cmd.Process.Kill()
		return
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Warn().Err(err).Int("pgid", pgid).Msg("process group kill failed")
	}
}
