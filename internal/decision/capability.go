// SPDX-License-Identifier: MIT

package decision

import "github.com/streamgate/streamgate/internal/core/useragent"

// CapabilitySet describes what a TV platform can decode natively. The table
// is part of the design, not configuration: entries were measured against
// real devices and changing them silently breaks pass-through playback.
type CapabilitySet struct {
	AllowedVideo    []string
	MaxH264Level    int
	MaxHevcLevel    int
	AllowedAudio    []string
	AllowedProfiles []string
}

var capabilityTable = map[useragent.Brand]CapabilitySet{
	useragent.BrandSamsung: {
		AllowedVideo:    []string{"h264", "hevc"},
		MaxH264Level:    51,
		MaxHevcLevel:    153,
		AllowedAudio:    []string{"aac", "ac3", "eac3", "mp3"},
		AllowedProfiles: []string{"baseline", "main", "high", "main 10"},
	},
	useragent.BrandLG: {
		AllowedVideo:    []string{"h264", "hevc"},
		MaxH264Level:    51,
		MaxHevcLevel:    153,
		AllowedAudio:    []string{"aac", "ac3", "eac3", "mp3"},
		AllowedProfiles: []string{"baseline", "main", "high", "main 10"},
	},
	useragent.BrandAndroidTV: {
		AllowedVideo:    []string{"h264", "hevc", "vp9"},
		MaxH264Level:    52,
		MaxHevcLevel:    156,
		AllowedAudio:    []string{"aac", "ac3", "eac3", "opus", "mp3"},
		AllowedProfiles: []string{"baseline", "main", "high", "main 10", "high10"},
	},
	useragent.BrandGeneric: {
		AllowedVideo:    []string{"h264", "hevc"},
		MaxH264Level:    51,
		MaxHevcLevel:    153,
		AllowedAudio:    []string{"aac", "ac3", "eac3", "mp3"},
		AllowedProfiles: []string{"baseline", "main", "high", "main 10"},
	},
}

// Capabilities returns the capability set for a TV brand. Unknown brands get
// the generic profile.
func Capabilities(brand useragent.Brand) CapabilitySet {
	if caps, ok := capabilityTable[brand]; ok {
		return caps
	}
	return capabilityTable[useragent.BrandGeneric]
}
