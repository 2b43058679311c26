// SPDX-License-Identifier: MIT

// Package ffmpeg synthesizes the transcoder command line. The argument order
// is contractual: ffmpeg rejects a map referencing a filter label before the
// filter graph is declared, and HLS muxer options must follow the codec
// blocks they apply to.
package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/streamgate/streamgate/internal/decision"
	"github.com/streamgate/streamgate/internal/probe"
)

const (
	// MasterPlaylistName is the readiness marker: ffmpeg writes it only
	// after the first segment is committed.
	MasterPlaylistName = "main.m3u8"

	segmentDurationSeconds = "6"
	muxQueueSize           = "1024"
	segmentFilePattern     = "stream_%v_%d.ts"
	variantPlaylistPattern = "stream_%v.m3u8"

	// DefaultUserAgent identifies the gateway's input fetches to upstreams
	// that reject anonymous clients.
	DefaultUserAgent = "streamgate/1.0"
)

// BuildInput collects everything the argument builder depends on. BuildArgs
// is a pure function of this value.
type BuildInput struct {
	SourceURL string
	UserAgent string // forwarded to the input fetch; empty uses the default
	Plan      decision.Plan
	Audio     []probe.AudioStream
	OutputDir string
}

// BuildArgs produces the complete, ordered ffmpeg argument list for an HLS
// transcode session.
func BuildArgs(in BuildInput) []string {
	ua := in.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	transcodeAudio := in.Plan.AudioCodec != "" && len(in.Audio) > 0
	graph := ""
	if transcodeAudio {
		graph = BuildAudioFilterGraph(in.Audio)
	}

	// 1. Global input flags.
	args := []string{
		"-y",
		"-user_agent", ua,
		"-fflags", "+genpts",
		"-avoid_negative_ts", "make_zero",
	}

	// 2. Input URL.
	args = append(args, "-i", in.SourceURL)

	// 3. Audio filter graph, declared before any map references its labels.
	if graph != "" {
		args = append(args, "-filter_complex", graph)
	}

	// 4. Video map: first video stream only.
	args = append(args, "-map", "0:v:0")

	// 5. Audio maps: filter output labels, or direct source indices when no
	// filtering is active.
	if transcodeAudio {
		for _, t := range in.Audio {
			if graph != "" {
				args = append(args, "-map", AudioOutputLabel(t.Ordinal))
			} else {
				args = append(args, "-map", fmt.Sprintf("0:%d", t.Index))
			}
		}
	}

	// 6. Video codec block.
	args = append(args, "-c:v", in.Plan.VideoCodec)
	if in.Plan.VideoCodec == "copy" {
		if in.Plan.VideoBSF != "" {
			args = append(args, "-bsf:v", in.Plan.VideoBSF)
		}
	} else {
		args = append(args, "-preset", in.Plan.Preset, "-crf", in.Plan.CRF)
	}

	// 7. Audio codec block, only when audio is emitted.
	if transcodeAudio {
		args = append(args, "-c:a", in.Plan.AudioCodec)
		if in.Plan.AudioSampleRate > 0 {
			args = append(args, "-ar", strconv.Itoa(in.Plan.AudioSampleRate))
		}
		args = append(args,
			"-b:a", in.Plan.AudioBitrate,
			"-ac", strconv.Itoa(in.Plan.AudioChannels),
		)
	}

	// 8. Muxer queue sizing, then HLS options.
	args = append(args,
		"-max_muxing_queue_size", muxQueueSize,
		"-f", "hls",
		"-hls_time", segmentDurationSeconds,
		"-hls_list_size", "0",
		"-hls_playlist_type", "event",
		"-hls_allow_cache", "1",
		"-start_number", "0",
		"-master_pl_name", MasterPlaylistName,
		"-var_stream_map", VariantStreamMap(in.Audio, transcodeAudio),
		"-hls_segment_filename", filepath.Join(in.OutputDir, segmentFilePattern),
		filepath.Join(in.OutputDir, variantPlaylistPattern),
	)

	return args
}

// VariantStreamMap renders the muxer's variant description: a single video
// variant, plus one audio-group entry per transcoded track. Without audio
// the map is just the video variant.
func VariantStreamMap(audio []probe.AudioStream, withAudio bool) string {
	if !withAudio || len(audio) == 0 {
		return "v:0"
	}

	entries := []string{"v:0,agroup:audio"}
	for _, t := range audio {
		entries = append(entries, fmt.Sprintf("a:%d,agroup:audio,language:%s,name:%s", t.Ordinal, t.Lang, t.Title))
	}

	out := entries[0]
	for _, e := range entries[1:] {
		out += " " + e
	}
	return out
}
