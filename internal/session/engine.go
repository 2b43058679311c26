// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/streamgate/streamgate/internal/core/useragent"
	"github.com/streamgate/streamgate/internal/decision"
	"github.com/streamgate/streamgate/internal/ffmpeg"
	"github.com/streamgate/streamgate/internal/metrics"
	"github.com/streamgate/streamgate/internal/probe"
)

// Engine drives the start lifecycle: probe, decide, spawn, await readiness,
// fall back. It is safe for concurrent use.
type Engine struct {
	store      *Store
	prober     *probe.Prober
	ffmpegPath string
	logger     zerolog.Logger

	// startGroup coalesces concurrent identical starts; a player retrying
	// /start must not spawn a second transcoder for the same input.
	startGroup singleflight.Group
}

// NewEngine wires the engine to its store and prober.
func NewEngine(store *Store, prober *probe.Prober, ffmpegPath string, logger zerolog.Logger) *Engine {
	return &Engine{
		store:      store,
		prober:     prober,
		ffmpegPath: ffmpegPath,
		logger:     logger,
	}
}

// StartRequest carries everything a start decision needs.
type StartRequest struct {
	SessionID      string
	SourceURL      string
	UserAgent      string
	DeviceHint     string
	ForceTranscode bool
}

// StartResult reports how a start concluded.
type StartResult struct {
	Mode    decision.Mode
	Reason  decision.Reason
	Report  *probe.Report
	Resumed bool
	// FellBack is set when a speculative transcode died and the session was
	// restarted as a full transcode.
	FellBack bool
}

// Start begins (or resumes) streaming for a session. Concurrent starts with
// the same session and source collapse into one attempt; a start with a new
// source kills the previous transcoder first.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	s, err := e.store.GetOrCreate(req.SessionID)
	if err != nil {
		return nil, err
	}

	key := req.SessionID + "|" + req.SourceURL
	v, err, _ := e.startGroup.Do(key, func() (any, error) {
		return e.start(ctx, s, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*StartResult), nil
}

func (e *Engine) start(ctx context.Context, s *Session, req StartRequest) (*StartResult, error) {
	// One start at a time per session. Singleflight only coalesces identical
	// session|url pairs; a start with a different source for the same session
	// must wait here instead of racing the replace sequence.
	s.startMu.Lock()
	defer s.startMu.Unlock()

	now := time.Now()
	s.Touch(now)

	// Resume path: same source, transcoder still alive.
	s.mu.Lock()
	if s.runner != nil && s.runner.Running() && s.runner.SourceURL() == req.SourceURL {
		mode := s.runner.Mode()
		s.mu.Unlock()
		e.logger.Debug().
			Str("session_id", s.ID).
			Str("mode", string(mode)).
			Msg("start resumed running session")
		return &StartResult{Mode: mode, Resumed: true}, nil
	}
	sticky := s.forceTranscode
	s.mu.Unlock()

	// Replace path: kill whatever ran before and clear stale artifacts.
	s.stopRunner()
	if err := e.resetDir(s); err != nil {
		return nil, err
	}

	report, probeErr := e.prober.Probe(ctx, req.SourceURL)
	if probeErr != nil {
		e.logger.Warn().
			Err(probeErr).
			Str("session_id", s.ID).
			Msg("probe failed, assuming full transcode")
	}

	device := useragent.Detect(req.UserAgent, req.DeviceHint)
	plan := decision.Decide(decision.Input{
		Report:         report,
		Device:         device,
		ForceTranscode: req.ForceTranscode || sticky,
	})

	e.logger.Info().
		Str("session_id", s.ID).
		Str("mode", string(plan.Mode)).
		Str("reason", string(plan.Reason)).
		Str("device_kind", string(device.Kind)).
		Str("device_brand", string(device.Brand)).
		Msg("streaming strategy selected")

	result := &StartResult{Mode: plan.Mode, Reason: plan.Reason, Report: report}

	if plan.Mode == decision.ModeNativeDirect {
		s.mu.Lock()
		s.sourceURL = req.SourceURL
		s.lastMode = plan.Mode
		s.mu.Unlock()
		metrics.SessionStartsTotal.WithLabelValues(string(plan.Mode), "ok").Inc()
		return result, nil
	}

	runner, err := e.spawn(ctx, s, req, plan, audioTracks(report, plan))
	if err != nil {
		if plan.Mode.Speculative() {
			return e.fallback(ctx, s, req, report, device, result, err)
		}
		metrics.SessionStartsTotal.WithLabelValues(string(plan.Mode), "error").Inc()
		return nil, err
	}

	e.attach(s, runner, req.SourceURL, plan.Mode)
	metrics.SessionStartsTotal.WithLabelValues(string(plan.Mode), "ok").Inc()
	metrics.StartupDuration.WithLabelValues(string(plan.Mode)).Observe(time.Since(now).Seconds())
	return result, nil
}

// fallback retries a failed speculative start as a full transcode and makes
// the choice sticky for the rest of the session's life.
func (e *Engine) fallback(ctx context.Context, s *Session, req StartRequest, report *probe.Report, device useragent.DeviceClass, result *StartResult, cause error) (*StartResult, error) {
	e.logger.Warn().
		Err(cause).
		Str("session_id", s.ID).
		Str("mode", string(result.Mode)).
		Msg("speculative transcode failed, falling back to full transcode")
	metrics.FallbacksTotal.Inc()

	s.mu.Lock()
	s.forceTranscode = true
	s.mu.Unlock()

	if err := e.resetDir(s); err != nil {
		return nil, err
	}

	plan := decision.Decide(decision.Input{
		Report:         report,
		Device:         device,
		ForceTranscode: true,
	})

	start := time.Now()
	runner, err := e.spawn(ctx, s, req, plan, audioTracks(report, plan))
	if err != nil {
		metrics.SessionStartsTotal.WithLabelValues(string(plan.Mode), "error").Inc()
		return nil, fmt.Errorf("fallback transcode: %w", err)
	}

	e.attach(s, runner, req.SourceURL, plan.Mode)
	metrics.SessionStartsTotal.WithLabelValues(string(plan.Mode), "fallback").Inc()
	metrics.StartupDuration.WithLabelValues(string(plan.Mode)).Observe(time.Since(start).Seconds())

	result.Mode = plan.Mode
	result.Reason = plan.Reason
	result.FellBack = true
	return result, nil
}

func (e *Engine) spawn(ctx context.Context, s *Session, req StartRequest, plan decision.Plan, audio []probe.AudioStream) (*Runner, error) {
	args := ffmpeg.BuildArgs(ffmpeg.BuildInput{
		SourceURL: req.SourceURL,
		UserAgent: req.UserAgent,
		Plan:      plan,
		Audio:     audio,
		OutputDir: s.dir,
	})

	logger := e.logger.With().Str("session_id", s.ID).Logger()
	runner, err := startRunner(e.ffmpegPath, args, s.dir, req.SourceURL, plan.Mode, logger)
	if err != nil {
		return nil, err
	}
	if err := runner.WaitReady(ctx); err != nil {
		return nil, err
	}
	return runner, nil
}

func (e *Engine) attach(s *Session, runner *Runner, sourceURL string, mode decision.Mode) {
	s.mu.Lock()
	old := s.runner
	s.runner = runner
	s.sourceURL = sourceURL
	s.lastMode = mode
	s.mu.Unlock()
	if old != nil {
		old.Kill()
	}
}

// resetDir drops old playlists and segments so a new transcode never serves
// a stale master playlist as its readiness marker.
func (e *Engine) resetDir(s *Session) error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("clear session directory: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("recreate session directory: %w", err)
	}
	return nil
}

// audioTracks returns the source's audio streams when the plan emits audio,
// nil otherwise.
func audioTracks(report *probe.Report, plan decision.Plan) []probe.AudioStream {
	if plan.AudioCodec == "" || report == nil {
		return nil
	}
	return report.Audio
}

// Stop kills a session's transcoder but keeps the record; the session can be
// restarted with the same id.
func (e *Engine) Stop(sessionID string) error {
	s, err := e.store.Lookup(sessionID)
	if err != nil {
		return err
	}
	s.stopRunner()
	e.logger.Info().Str("session_id", sessionID).Msg("session stopped")
	return nil
}

// Ping records a heartbeat and reports playback progress.
func (e *Engine) Ping(sessionID string) (*Progress, error) {
	s, err := e.store.Lookup(sessionID)
	if err != nil {
		return nil, err
	}
	s.Touch(time.Now())
	return ReadProgress(s.dir)
}
