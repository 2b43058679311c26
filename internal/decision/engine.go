// SPDX-License-Identifier: MIT

// Package decision selects a transcoding strategy per device class and
// probed source characteristics.
package decision

import (
	"strings"

	"github.com/streamgate/streamgate/internal/core/useragent"
	"github.com/streamgate/streamgate/internal/probe"
)

// Mode is the chosen streaming strategy.
type Mode string

const (
	// ModeNativeDirect proxies the raw source bytes; no transcoder runs.
	ModeNativeDirect Mode = "NATIVE_DIRECT"
	// ModeAudioOnly copies the video stream and re-encodes audio.
	ModeAudioOnly Mode = "AUDIO_ONLY"
	// ModeFullTranscode re-encodes both video and audio.
	ModeFullTranscode Mode = "FULL_TRANSCODE"
	// ModeVideoOnly copies the video stream of an audio-less source.
	ModeVideoOnly Mode = "VIDEO_ONLY"
)

// Speculative reports whether the mode is an optimistic attempt that falls
// back to a full transcode when the transcoder fails to start.
func (m Mode) Speculative() bool {
	return m == ModeAudioOnly || m == ModeVideoOnly
}

// Reason explains a decision for logs and tests.
type Reason string

const (
	ReasonForced            Reason = "force_transcode"
	ReasonFullyCompatible   Reason = "source_fully_compatible"
	ReasonAudioIncompatible Reason = "audio_incompatible"
	ReasonVideoIncompatible Reason = "video_incompatible"
	ReasonBrowserClient     Reason = "browser_client"
	ReasonProbeFailed       Reason = "probe_failed"
	ReasonNoAudioStreams    Reason = "no_audio_streams"
)

// Plan carries the mode plus the codec parameters the arg builder needs.
type Plan struct {
	Mode   Mode
	Reason Reason

	// Video encoder settings. VideoCodec "copy" keeps the source elementary
	// stream; VideoBSF then names the annex-B bitstream filter matching the
	// source codec.
	VideoCodec string
	VideoBSF   string
	Preset     string
	CRF        string

	// Audio encoder settings. AudioCodec is empty when no audio is emitted.
	// AudioSampleRate zero means "keep source rate".
	AudioCodec      string
	AudioSampleRate int
	AudioBitrate    string
	AudioChannels   int
}

// Input collects everything the selector looks at.
type Input struct {
	// Report is nil when the probe failed; the selector then assumes an
	// unknown video codec and picks a full transcode.
	Report *probe.Report
	Device useragent.DeviceClass
	// ForceTranscode is the per-request user flag OR the session's sticky
	// fallback flag.
	ForceTranscode bool
}

const (
	transcodeVideoCodec = "libx264"
	transcodePreset     = "ultrafast"
	transcodeCRF        = "23"
	audioBitrate        = "640k"
	audioChannels       = 6
	tvAudioCodec        = "ac3"
	tvAudioSampleRate   = 48000
	browserAudioCodec   = "aac"
)

// Decide applies the decision table. It is a pure function: identical inputs
// always produce identical plans.
func Decide(in Input) Plan {
	if in.ForceTranscode {
		return fullTranscodePlan(in, ReasonForced)
	}

	if in.Report == nil {
		return fullTranscodePlan(in, ReasonProbeFailed)
	}

	if !in.Device.IsTV() {
		return fullTranscodePlan(in, ReasonBrowserClient)
	}

	caps := Capabilities(in.Device.Brand)
	if !videoCompatible(in.Report, caps) {
		return fullTranscodePlan(in, ReasonVideoIncompatible)
	}

	if audioCompatible(in.Report, caps) {
		return Plan{Mode: ModeNativeDirect, Reason: ReasonFullyCompatible}
	}

	if len(in.Report.Audio) == 0 {
		// Unreachable from the table (absence of audio is compatible) but
		// kept so a degenerate report still yields a playable plan.
		return videoOnlyPlan(in.Report)
	}

	return Plan{
		Mode:            ModeAudioOnly,
		Reason:          ReasonAudioIncompatible,
		VideoCodec:      "copy",
		VideoBSF:        annexBFilter(in.Report.VideoCodec),
		AudioCodec:      tvAudioCodec,
		AudioSampleRate: tvAudioSampleRate,
		AudioBitrate:    audioBitrate,
		AudioChannels:   audioChannels,
	}
}

func fullTranscodePlan(in Input, reason Reason) Plan {
	plan := Plan{
		Mode:       ModeFullTranscode,
		Reason:     reason,
		VideoCodec: transcodeVideoCodec,
		Preset:     transcodePreset,
		CRF:        transcodeCRF,
	}

	if in.Report != nil && len(in.Report.Audio) == 0 {
		// No audio streams: omit all audio flags.
		return plan
	}

	if in.Device.IsTV() {
		plan.AudioCodec = tvAudioCodec
		plan.AudioSampleRate = tvAudioSampleRate
	} else {
		plan.AudioCodec = browserAudioCodec
	}
	plan.AudioBitrate = audioBitrate
	plan.AudioChannels = audioChannels
	return plan
}

func videoOnlyPlan(report *probe.Report) Plan {
	return Plan{
		Mode:       ModeVideoOnly,
		Reason:     ReasonNoAudioStreams,
		VideoCodec: "copy",
		VideoBSF:   annexBFilter(report.VideoCodec),
	}
}

// videoCompatible checks codec, profile and level against the capability set.
// H.264 and HEVC levels live on different numeric scales, so the comparison
// always uses the codec-specific maximum.
func videoCompatible(report *probe.Report, caps CapabilitySet) bool {
	codec := strings.ToLower(report.VideoCodec)
	if !containsToken(caps.AllowedVideo, codec) {
		return false
	}

	if report.VideoProfile != "" && !profileAllowed(report.VideoProfile, caps.AllowedProfiles) {
		return false
	}

	if report.VideoLevel > 0 {
		switch codec {
		case "h264":
			if report.VideoLevel > caps.MaxH264Level {
				return false
			}
		case "hevc":
			if report.VideoLevel > caps.MaxHevcLevel {
				return false
			}
		}
	}

	return true
}

// audioCompatible reports whether every audio stream can play natively.
// A source without audio is compatible.
func audioCompatible(report *probe.Report, caps CapabilitySet) bool {
	for _, a := range report.Audio {
		if !containsToken(caps.AllowedAudio, strings.ToLower(a.Codec)) {
			return false
		}
	}
	return true
}

// profileAllowed matches the reported profile against the allow list by
// substring, case-insensitive ("High 10" matches via "high").
func profileAllowed(profile string, allowed []string) bool {
	p := strings.ToLower(profile)
	for _, a := range allowed {
		if strings.Contains(p, strings.ToLower(a)) {
			return true
		}
	}
	return false
}

// annexBFilter picks the bitstream filter required to repackage a copied
// elementary stream for MPEG-TS containment. Wrong selection produces an
// unplayable stream with no hard error, so this must follow the source codec.
func annexBFilter(videoCodec string) string {
	switch strings.ToLower(videoCodec) {
	case "h264":
		return "h264_mp4toannexb"
	case "hevc":
		return "hevc_mp4toannexb"
	default:
		return ""
	}
}

func containsToken(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
