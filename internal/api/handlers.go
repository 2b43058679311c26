// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/streamgate/streamgate/internal/core/pathutil"
	"github.com/streamgate/streamgate/internal/decision"
	sglog "github.com/streamgate/streamgate/internal/log"
	"github.com/streamgate/streamgate/internal/session"
	"github.com/streamgate/streamgate/internal/telemetry"
)

const clientLogMaxBytes = 16 * 1024

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type metadataAudio struct {
	Index int    `json:"index"`
	Lang  string `json:"lang"`
	Codec string `json:"codec"`
}

type metadataSub struct {
	Index int    `json:"index"`
	Lang  string `json:"lang"`
	Title string `json:"title"`
	Codec string `json:"codec"`
}

type metadataResponse struct {
	Audio    []metadataAudio `json:"audio"`
	Subs     []metadataSub   `json:"subs"`
	Duration float64         `json:"duration"`
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	report, err := s.prober.Probe(r.Context(), sourceURL)
	if err != nil {
		logger := sglog.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Msg("metadata probe failed")
		writeError(w, http.StatusInternalServerError, "probe failed")
		return
	}

	resp := metadataResponse{
		Audio:    make([]metadataAudio, 0, len(report.Audio)),
		Subs:     make([]metadataSub, 0, len(report.Subtitles)),
		Duration: report.Duration,
	}
	for _, a := range report.Audio {
		resp.Audio = append(resp.Audio, metadataAudio{Index: a.Index, Lang: a.Lang, Codec: a.Codec})
	}
	for _, sub := range report.Subtitles {
		resp.Subs = append(resp.Subs, metadataSub{Index: sub.Index, Lang: sub.Lang, Title: sub.Title, Codec: sub.Codec})
	}
	writeJSON(w, http.StatusOK, resp)
}

type startResponse struct {
	Status    string `json:"status"`
	Mode      string `json:"mode"`
	StreamURL string `json:"streamUrl,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sourceURL := q.Get("url")
	sessionID := q.Get("session")
	if sourceURL == "" || sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing url or session parameter")
		return
	}

	ctx := sglog.ContextWithSessionID(r.Context(), sessionID)

	result, err := s.engine.Start(ctx, session.StartRequest{
		SessionID:      sessionID,
		SourceURL:      sourceURL,
		UserAgent:      r.Header.Get("User-Agent"),
		DeviceHint:     q.Get("device"),
		ForceTranscode: q.Get("transcode") == "true",
	})
	if err != nil {
		if isBadSessionID(err) {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		logger := sglog.WithComponentFromContext(ctx, "api")
		logger.Error().
			Err(err).
			Msg("start failed")
		writeError(w, http.StatusInternalServerError, "transcoder failed to start")
		return
	}

	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.StreamAttributes(sessionID, string(result.Mode), string(result.Reason))...)

	resp := startResponse{Status: "started", Mode: string(result.Mode)}
	if result.Resumed {
		resp.Status = "resumed"
	}
	if result.Mode == decision.ModeNativeDirect {
		resp.StreamURL = "/direct-stream?url=" + url.QueryEscape(sourceURL)
	} else {
		resp.StreamURL = "/hls/" + sessionID + "/main.m3u8"
	}
	writeJSON(w, http.StatusOK, resp)
}

type pingResponse struct {
	Status          string  `json:"status"`
	EncodedDuration float64 `json:"encodedDuration"`
	LiveEdgeTime    float64 `json:"liveEdgeTime"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session parameter")
		return
	}

	progress, err := s.engine.Ping(sessionID)
	if err != nil {
		if isBadSessionID(err) {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "invalid_session"})
			return
		}
		writeError(w, http.StatusInternalServerError, "progress unavailable")
		return
	}

	writeJSON(w, http.StatusOK, pingResponse{
		Status:          "active",
		EncodedDuration: progress.EncodedSeconds,
		LiveEdgeTime:    progress.LiveEdgeSeconds,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session parameter")
		return
	}

	if err := s.engine.Stop(sessionID); err != nil {
		if isBadSessionID(err) {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "invalid_session"})
			return
		}
		writeError(w, http.StatusInternalServerError, "stop failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// clientLogLimiter throttles the write-amplification of misbehaving players
// that spam /client-log.
type clientLogLimiter struct {
	limiter *rate.Limiter
}

func newClientLogLimiter() *clientLogLimiter {
	return &clientLogLimiter{limiter: rate.NewLimiter(rate.Limit(10), 20)}
}

func (c *clientLogLimiter) allow() bool { return c.limiter.Allow() }

func (s *Server) handleClientLog(w http.ResponseWriter, r *http.Request) {
	if !s.clientLogLimiter.allow() {
		// Still 200: the client can do nothing useful with an error here.
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, clientLogMaxBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	logger := sglog.WithComponentFromContext(r.Context(), "client")
	logger.Info().
		Str("event", "client.log").
		Str("remote", r.RemoteAddr).
		Str("user_agent", r.Header.Get("User-Agent")).
		Str("payload", string(body)).
		Msg("client log entry")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	// Ready once the HLS root exists; the store creates it during startup.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// isBadSessionID distinguishes a validation failure from operational errors.
func isBadSessionID(err error) bool {
	return errors.Is(err, pathutil.ErrInvalidSessionID)
}
