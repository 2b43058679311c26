// SPDX-License-Identifier: MIT

package api

import (
	"io"
	"net/http"
	"os/exec"
	"strconv"

	sglog "github.com/streamgate/streamgate/internal/log"
)

// handleSubtitle extracts one text subtitle track as WebVTT and streams it
// to the client. The index is the absolute source stream index as reported
// by /metadata, not a subtitle ordinal. The extraction is stateless: no
// session, no artifacts, the pipe dies with the request.
func (s *Server) handleSubtitle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sourceURL := q.Get("url")
	indexStr := q.Get("index")
	if sourceURL == "" || indexStr == "" {
		writeError(w, http.StatusBadRequest, "missing url or index parameter")
		return
	}
	index, err := strconv.Atoi(indexStr)
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid index parameter")
		return
	}

	logger := sglog.WithComponentFromContext(r.Context(), "subtitle")

	args := []string{
		"-v", "error",
		"-i", sourceURL,
		"-map", "0:" + strconv.Itoa(index),
		"-f", "webvtt",
		"pipe:1",
	}
	// #nosec G204 -- binary path comes from configuration, args are built internally
	cmd := exec.CommandContext(r.Context(), s.cfg.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "subtitle extraction failed")
		return
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		logger.Error().Err(err).Msg("subtitle ffmpeg start failed")
		writeError(w, http.StatusInternalServerError, "subtitle extraction failed")
		return
	}

	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, stdout); err != nil {
		// Client gone or pipe broken; the context cancel reaps ffmpeg.
		logger.Debug().Err(err).Msg("subtitle stream interrupted")
	}
	if err := cmd.Wait(); err != nil && r.Context().Err() == nil {
		logger.Warn().Err(err).Int("stream_index", index).Msg("subtitle extraction exited with error")
	}
}
