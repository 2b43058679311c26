// SPDX-License-Identifier: MIT

// Package probe inspects remote media sources with ffprobe and reduces the
// raw stream listing to the report the strategy selector consumes.
package probe

// AudioStream describes one audio track of the source.
type AudioStream struct {
	// Index is the absolute ffmpeg stream index within the input.
	Index int `json:"index"`
	// Ordinal is the zero-based position among audio streams only. It is
	// what the HLS variant stream map refers to.
	Ordinal int `json:"ordinal"`
	// Lang is the normalized language tag, "und" when the source carries none.
	Lang string `json:"lang"`
	// Title is the sanitized title tag, safe for var_stream_map use.
	Title string `json:"title"`
	// Codec is the source codec name as reported by ffprobe.
	Codec string `json:"codec"`
}

// SubtitleStream describes one text subtitle track. Image-based subtitle
// codecs never appear here; the VTT extractor cannot convert them.
type SubtitleStream struct {
	Index int    `json:"index"`
	Lang  string `json:"lang"`
	Title string `json:"title"`
	Codec string `json:"codec"`
}

// Report is the condensed probe result for one source URL.
type Report struct {
	VideoCodec   string           `json:"video_codec"`
	VideoProfile string           `json:"video_profile"`
	// VideoLevel is the codec-specific numeric level (e.g. 41 for H.264
	// level 4.1, 153 for HEVC level 5.1). Zero means unreported.
	VideoLevel int              `json:"video_level"`
	Audio      []AudioStream    `json:"audio"`
	Subtitles  []SubtitleStream `json:"subtitles"`
	// Duration is the container duration in seconds, zero when unknown.
	Duration float64 `json:"duration"`
}

// textSubtitleCodecs is the exact set the downstream WebVTT extractor can
// convert. Anything else is dropped silently.
var textSubtitleCodecs = map[string]bool{
	"subrip":   true,
	"webvtt":   true,
	"ass":      true,
	"ssa":      true,
	"mov_text": true,
	"mpl2":     true,
	"text":     true,
}

// IsTextSubtitleCodec reports whether codec can be converted to WebVTT.
func IsTextSubtitleCodec(codec string) bool {
	return textSubtitleCodecs[codec]
}
