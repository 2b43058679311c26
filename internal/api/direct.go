// SPDX-License-Identifier: MIT

package api

import (
	"io"
	"net/http"
	"time"

	sglog "github.com/streamgate/streamgate/internal/log"
)

// directClient is shared by all direct-stream requests. No overall timeout:
// a pass-through of a long movie legitimately takes hours. Dials and TLS
// handshakes are still bounded by the transport defaults.
var directClient = &http.Client{
	Transport: &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConnsPerHost:   4,
	},
}

// forwarded from client to upstream, and from upstream back to the client.
var (
	directRequestHeaders  = []string{"Range", "User-Agent", "Accept"}
	directResponseHeaders = []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Last-Modified", "ETag"}
)

// handleDirectStream proxies the source byte-for-byte for devices that can
// play it natively. Range requests pass through so seeking works; a client
// disconnect cancels the upstream fetch via the request context.
func (s *Server) handleDirectStream(w http.ResponseWriter, r *http.Request) {
	sourceURL := r.URL.Query().Get("url")
	if sourceURL == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	logger := sglog.WithComponentFromContext(r.Context(), "direct")

	method := http.MethodGet
	if r.Method == http.MethodHead {
		method = http.MethodHead
	}
	upReq, err := http.NewRequestWithContext(r.Context(), method, sourceURL, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url parameter")
		return
	}
	for _, h := range directRequestHeaders {
		if v := r.Header.Get(h); v != "" {
			upReq.Header.Set(h, v)
		}
	}

	resp, err := directClient.Do(upReq)
	if err != nil {
		if r.Context().Err() != nil {
			// Client left before upstream answered; nothing to report.
			return
		}
		logger.Warn().Err(err).Msg("direct stream upstream failed")
		writeError(w, http.StatusBadGateway, "upstream unreachable")
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	for _, h := range directResponseHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(w, resp.Body); err != nil && r.Context().Err() == nil {
		logger.Debug().Err(err).Msg("direct stream copy interrupted")
	}
}
