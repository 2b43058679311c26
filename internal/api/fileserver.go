// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/streamgate/streamgate/internal/core/pathutil"
	sglog "github.com/streamgate/streamgate/internal/log"
)

// hlsFileServer serves the per-session HLS artifacts (master playlist,
// variant playlists, segments). Paths are attacker-controlled, so the
// handler layers traversal detection on top of the store's validated root.
func (s *Server) hlsFileServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := sglog.WithComponentFromContext(r.Context(), "hls")

		rel := chi.URLParam(r, "*")
		if rel == "" || strings.HasSuffix(rel, "/") {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if isPathTraversal(rel) {
			logger.Warn().Str("path", r.URL.Path).Msg("traversal sequence in artifact request")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		parts := strings.SplitN(rel, "/", 2)
		if len(parts) != 2 {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		sessionID, fileName := parts[0], parts[1]
		if err := pathutil.ValidateSessionID(sessionID); err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if strings.Contains(fileName, "/") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		dir, err := s.store.SessionDir(sessionID)
		if err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		full, err := pathutil.SecureJoin(dir, fileName)
		if err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		f, err := os.Open(full) // #nosec G304 -- full is constrained to the session dir
		if err != nil {
			if os.IsNotExist(err) {
				http.Error(w, "Not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer func() {
			_ = f.Close()
		}()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		switch filepath.Ext(fileName) {
		case ".m3u8":
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			// Playlists grow while the transcoder runs; never cache them.
			w.Header().Set("Cache-Control", "no-cache")
		case ".ts":
			w.Header().Set("Content-Type", "video/mp2t")
			// Segments are immutable once written.
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}

		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// isPathTraversal checks a request path for traversal attempts. The input is
// decoded repeatedly to catch double encoding and normalized to NFC so
// decomposed Unicode lookalikes collapse before inspection.
func isPathTraversal(p string) bool {
	decoded := p
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		} else if d2, err2 := url.QueryUnescape(decoded); err2 == nil {
			decoded = d2
		}
		if decoded == prev {
			break
		}
	}

	decoded = norm.NFC.String(decoded)
	lower := strings.ToLower(decoded)
	if strings.Contains(lower, "..") {
		return true
	}
	if strings.ContainsRune(lower, '\x00') {
		return true
	}
	if strings.Contains(lower, "\\") {
		return true
	}
	return false
}
