// SPDX-License-Identifier: MIT

package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FFmpegStats holds metrics parsed from an ffmpeg progress line.
type FFmpegStats struct {
	Speed       float64
	BitrateKBPS float64
	FPS         float64
	Frame       int
	Time        time.Duration
	Valid       bool
}

// ParseFFmpegStats parses a standard ffmpeg progress line into structured
// stats using substring extraction rather than a strict regex; ffmpeg's
// field spacing varies between builds.
// Example: "frame=  123 fps= 25 q=28.0 size=    1234kB time=00:00:12.34 bitrate= 800.0kbits/s speed=1.0x"
// Returns nil when the line is not a progress line.
func ParseFFmpegStats(line string) *FFmpegStats {
	if !strings.Contains(line, "frame=") && !strings.Contains(line, "time=") && !strings.Contains(line, "bitrate=") {
		return nil
	}

	stats := &FFmpegStats{}
	foundAny := false

	extract := func(key string) string {
		idx := strings.Index(line, key)
		if idx == -1 {
			return ""
		}
		valStart := idx + len(key)
		if valStart >= len(line) {
			return ""
		}
		val := strings.TrimLeft(line[valStart:], " ")
		if val == "" {
			return ""
		}
		if spaceIdx := strings.Index(val, " "); spaceIdx != -1 {
			return val[:spaceIdx]
		}
		return val
	}

	if val := extract("speed="); val != "" {
		val = strings.TrimSuffix(val, "x")
		if val != "N/A" {
			if s, err := strconv.ParseFloat(val, 64); err == nil {
				stats.Speed = s
				foundAny = true
			}
		}
	}

	if val := extract("bitrate="); val != "" && val != "N/A" {
		val = strings.TrimSuffix(val, "kbits/s")
		val = strings.TrimSuffix(val, "kb/s")
		if b, err := strconv.ParseFloat(val, 64); err == nil {
			stats.BitrateKBPS = b
			foundAny = true
		}
	}

	if val := extract("fps="); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			stats.FPS = f
			foundAny = true
		}
	}

	if val := extract("frame="); val != "" {
		if f, err := strconv.Atoi(val); err == nil {
			stats.Frame = f
			foundAny = true
		}
	}

	if val := extract("time="); val != "" && val != "N/A" {
		if d, err := parseFFmpegTime(val); err == nil {
			stats.Time = d
			foundAny = true
		}
	}

	if !foundAny {
		return nil
	}

	stats.Valid = true
	return stats
}

// parseFFmpegTime parses the "HH:MM:SS.mm" clock format ffmpeg prints.
func parseFFmpegTime(val string) (time.Duration, error) {
	parts := strings.Split(val, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format")
	}

	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	mins, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}

	totalSecs := hours*3600 + mins*60 + secs
	return time.Duration(totalSecs * float64(time.Second)), nil
}
