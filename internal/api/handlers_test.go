// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgate/streamgate/internal/probe"
	"github.com/streamgate/streamgate/internal/session"
)

// ffprobeIncompatibleShim reports a DTS audio track, which TVs cannot play
// natively. Starting such a source goes down the HLS copy path.
const ffprobeIncompatibleShim = `#!/bin/sh
cat <<'JSON'
{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "profile": "High", "level": 40},
    {"index": 1, "codec_type": "audio", "codec_name": "dts", "tags": {"language": "eng", "title": "Main"}},
    {"index": 2, "codec_type": "subtitle", "codec_name": "subrip", "tags": {"language": "ger"}}
  ],
  "format": {"duration": "3600.5"}
}
JSON
`

// ffprobeDirectShim reports an h264 + AC-3 source a TV plays without help.
const ffprobeDirectShim = `#!/bin/sh
cat <<'JSON'
{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "profile": "High", "level": 40},
    {"index": 1, "codec_type": "audio", "codec_name": "ac3", "tags": {"language": "eng"}}
  ],
  "format": {"duration": "100"}
}
JSON
`

// ffmpegPlaylistShim publishes a master playlist into the session directory
// (derived from the last argument) and keeps running.
const ffmpegPlaylistShim = `#!/bin/sh
for a; do
  if [ "$a" = "webvtt" ]; then
    printf 'WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhello\n'
    exit 0
  fi
done
for last; do :; done
dir=$(dirname "$last")
printf '#EXTM3U\n#EXTINF:6.0,\nstream_0_0.ts\n' > "$dir/main.m3u8"
printf 'segmentdata' > "$dir/stream_0_0.ts"
sleep 30
`

const tvUserAgent = "Mozilla/5.0 (SMART-TV; Tizen 6.0)"

type apiFixture struct {
	srv   *httptest.Server
	store *session.Store
}

func newAPIFixture(t *testing.T, ffprobeScript, ffmpegScript string) *apiFixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shim tests use shell scripts")
	}

	binDir := t.TempDir()
	ffprobePath := filepath.Join(binDir, "ffprobe")
	ffmpegPath := filepath.Join(binDir, "ffmpeg")
	// #nosec G306 -- test helper scripts need to be executable
	require.NoError(t, os.WriteFile(ffprobePath, []byte(ffprobeScript), 0o755))
	// #nosec G306
	require.NoError(t, os.WriteFile(ffmpegPath, []byte(ffmpegScript), 0o755))

	logger := zerolog.New(io.Discard)
	store, err := session.NewStore(filepath.Join(t.TempDir(), "hls"), logger)
	require.NoError(t, err)
	t.Cleanup(store.Shutdown)

	prober := probe.New(ffprobePath, logger)
	engine := session.NewEngine(store, prober, ffmpegPath, logger)

	s := NewServer(ServerConfig{FFmpegPath: ffmpegPath}, engine, store, prober, logger)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, store: store}
}

func (fx *apiFixture) get(t *testing.T, path string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, fx.srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := fx.srv.Client().Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

func decodeJSON(t *testing.T, body []byte, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v), "body: %s", body)
}

func TestMetadata(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	resp, body := fx.get(t, "/metadata?url=http://src/movie.mkv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var meta struct {
		Audio []struct {
			Index int    `json:"index"`
			Lang  string `json:"lang"`
			Codec string `json:"codec"`
		} `json:"audio"`
		Subs []struct {
			Index int    `json:"index"`
			Lang  string `json:"lang"`
		} `json:"subs"`
		Duration float64 `json:"duration"`
	}
	decodeJSON(t, body, &meta)

	require.Len(t, meta.Audio, 1)
	assert.Equal(t, 1, meta.Audio[0].Index)
	assert.Equal(t, "eng", meta.Audio[0].Lang)
	assert.Equal(t, "dts", meta.Audio[0].Codec)
	require.Len(t, meta.Subs, 1)
	assert.Equal(t, 2, meta.Subs[0].Index)
	assert.Equal(t, "deu", meta.Subs[0].Lang)
	assert.InDelta(t, 3600.5, meta.Duration, 0.001)
}

func TestMetadataMissingURL(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	resp, _ := fx.get(t, "/metadata", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetadataProbeFailure(t *testing.T) {
	fx := newAPIFixture(t, "#!/bin/sh\nexit 1\n", ffmpegPlaylistShim)

	resp, _ := fx.get(t, "/metadata?url=http://src/movie.mkv", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStartValidation(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	resp, _ := fx.get(t, "/start?url=http://src/movie.mkv", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing session")

	resp, _ = fx.get(t, "/start?session=s1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing url")

	resp, _ = fx.get(t, "/start?session=.hidden&url=http://src/movie.mkv", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "invalid session id")
}

func TestStartNativeDirect(t *testing.T) {
	fx := newAPIFixture(t, ffprobeDirectShim, ffmpegPlaylistShim)

	resp, body := fx.get(t, "/start?session=s1&url=http://src/movie.mkv", map[string]string{"User-Agent": tvUserAgent})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var start struct {
		Status    string `json:"status"`
		Mode      string `json:"mode"`
		StreamURL string `json:"streamUrl"`
	}
	decodeJSON(t, body, &start)
	assert.Equal(t, "started", start.Status)
	assert.Equal(t, "NATIVE_DIRECT", start.Mode)
	assert.Equal(t, "/direct-stream?url="+url.QueryEscape("http://src/movie.mkv"), start.StreamURL)
}

func TestStartPingStopLifecycle(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)
	tvHeaders := map[string]string{"User-Agent": tvUserAgent}

	resp, body := fx.get(t, "/start?session=s1&url=http://src/movie.mkv", tvHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

	var start struct {
		Status    string `json:"status"`
		Mode      string `json:"mode"`
		StreamURL string `json:"streamUrl"`
	}
	decodeJSON(t, body, &start)
	assert.Equal(t, "started", start.Status)
	assert.Equal(t, "AUDIO_ONLY", start.Mode)
	assert.Equal(t, "/hls/s1/main.m3u8", start.StreamURL)

	// The playlist is immediately fetchable.
	resp, body = fx.get(t, "/hls/s1/main.m3u8", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.apple.mpegurl", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Contains(t, string(body), "#EXTM3U")

	resp, _ = fx.get(t, "/hls/s1/stream_0_0.ts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp2t", resp.Header.Get("Content-Type"))

	resp, body = fx.get(t, "/ping?session=s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ping struct {
		Status          string  `json:"status"`
		EncodedDuration float64 `json:"encodedDuration"`
		LiveEdgeTime    float64 `json:"liveEdgeTime"`
	}
	decodeJSON(t, body, &ping)
	assert.Equal(t, "active", ping.Status)
	assert.InDelta(t, 6.0, ping.EncodedDuration, 0.001)

	resp, body = fx.get(t, "/stop?session=s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "stopped")
}

func TestPingUnknownSession(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	resp, body := fx.get(t, "/ping?session=ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "invalid_session")

	resp, _ = fx.get(t, "/ping?session=.bad", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = fx.get(t, "/ping", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	req, err := http.NewRequest(http.MethodOptions, fx.srv.URL+"/start", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://player.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := fx.srv.Client().Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestClientLog(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	resp, err := fx.srv.Client().Post(fx.srv.URL+"/client-log", "application/json", strings.NewReader(`{"level":"error","msg":"buffer stall"}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubtitle(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	resp, body := fx.get(t, "/subtitle?url=http://src/movie.mkv&index=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/vtt; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(body), "WEBVTT"))
}

func TestSubtitleValidation(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	resp, _ := fx.get(t, "/subtitle?url=http://src/movie.mkv", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing index")

	resp, _ = fx.get(t, "/subtitle?index=1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing url")

	resp, _ = fx.get(t, "/subtitle?url=http://src/movie.mkv&index=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "negative index")
}

func TestDirectStreamProxy(t *testing.T) {
	payload := []byte("0123456789abcdef")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "movie.mp4", time.Unix(1700000000, 0), bytes.NewReader(payload))
	}))
	defer upstream.Close()

	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)
	target := "/direct-stream?url=" + url.QueryEscape(upstream.URL)

	resp, body := fx.get(t, target, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, body)

	// Range requests pass through so seeking works.
	resp, body = fx.get(t, target, map[string]string{"Range": "bytes=0-3"})
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, []byte("0123"), body)
	assert.Contains(t, resp.Header.Get("Content-Range"), "bytes 0-3/16")
}

func TestDirectStreamHead(t *testing.T) {
	payload := []byte("0123456789abcdef")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "movie.mp4", time.Unix(1700000000, 0), bytes.NewReader(payload))
	}))
	defer upstream.Close()

	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	req, err := http.NewRequest(http.MethodHead, fx.srv.URL+"/direct-stream?url="+url.QueryEscape(upstream.URL), nil)
	require.NoError(t, err)
	resp, err := fx.srv.Client().Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "16", resp.Header.Get("Content-Length"))
}

func TestDirectStreamUpstreamDown(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	resp, _ := fx.get(t, "/direct-stream?url="+url.QueryEscape("http://127.0.0.1:1/nope"), nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, _ = fx.get(t, "/direct-stream", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHLSFileServerRejectsTraversal(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	for _, path := range []string{
		"/hls/%2e%2e/etc/passwd",
		"/hls/s1/%2e%2e%2fsecret",
		"/hls/s1/..%2f..%2fetc%2fpasswd",
		"/hls/%252e%252e/etc/passwd",
		"/hls/s1/file%00.ts",
		"/hls/s1/..%5c..%5cboot.ini",
	} {
		resp, _ := fx.get(t, path, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, "path %s", path)
	}
}

func TestHLSFileServerShape(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	// No file component.
	resp, _ := fx.get(t, "/hls/justasession", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Unknown session directory.
	resp, _ = fx.get(t, "/hls/ghost/main.m3u8", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	fx := newAPIFixture(t, ffprobeIncompatibleShim, ffmpegPlaylistShim)

	resp, _ := fx.get(t, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = fx.get(t, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = fx.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
