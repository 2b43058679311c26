// SPDX-License-Identifier: MIT

package session

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/streamgate/streamgate/internal/ffmpeg"
)

// liveEdgeHoldback keeps the reported seekable edge a little behind the last
// encoded second; the newest segment may still be mid-write.
const liveEdgeHoldback = 8.0

// Progress reports how much of the source a transcoder has written so far.
type Progress struct {
	// EncodedSeconds is the sum of segment durations published in the
	// playlist.
	EncodedSeconds float64 `json:"encodedSeconds"`
	// LiveEdgeSeconds is the safe seek position, never negative.
	LiveEdgeSeconds float64 `json:"liveEdgeSeconds"`
}

// ReadProgress derives playback progress from the HLS playlists in dir. A
// missing playlist reads as zero progress, not an error; the transcoder may
// not have published yet.
func ReadProgress(dir string) (*Progress, error) {
	encoded, ok, err := sumPlaylist(filepath.Join(dir, ffmpeg.MasterPlaylistName))
	if err != nil {
		return nil, err
	}
	if !ok {
		// Master playlists for multi-variant output carry no EXTINF tags,
		// only variant references. Follow the first one.
		variant, err := firstVariant(filepath.Join(dir, ffmpeg.MasterPlaylistName))
		if err == nil && variant != "" {
			encoded, _, err = sumPlaylist(filepath.Join(dir, variant))
			if err != nil {
				return nil, err
			}
		}
	}

	edge := encoded - liveEdgeHoldback
	if edge < 0 {
		edge = 0
	}
	return &Progress{EncodedSeconds: encoded, LiveEdgeSeconds: edge}, nil
}

// sumPlaylist adds up the EXTINF durations in an m3u8 file. The second
// return value reports whether any EXTINF tag was present.
func sumPlaylist(path string) (float64, bool, error) {
	f, err := os.Open(path) // #nosec G304 -- path is built from the validated session dir
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	defer func() {
		_ = f.Close()
	}()

	var total float64
	found := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "#EXTINF:") {
			continue
		}
		value := strings.TrimPrefix(line, "#EXTINF:")
		if idx := strings.Index(value, ","); idx != -1 {
			value = value[:idx]
		}
		if d, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			total += d
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, false, err
	}
	return total, found, nil
}

// firstVariant returns the first variant playlist referenced by a master
// playlist, or "" when there is none.
func firstVariant(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, ".m3u8") {
			// Only same-directory references are followed.
			return filepath.Base(line), nil
		}
	}
	return "", scanner.Err()
}
