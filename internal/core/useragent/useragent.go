// SPDX-License-Identifier: MIT

// Package useragent classifies clients into device classes from the HTTP
// User-Agent header. The class selects a capability set for the strategy
// decision.
package useragent

import "strings"

// Kind distinguishes smart-TV clients from everything else.
type Kind string

const (
	KindTV      Kind = "tv"
	KindBrowser Kind = "browser"
)

// Brand identifies the TV platform. It keys the capability table.
type Brand string

const (
	BrandSamsung   Brand = "samsung"
	BrandLG        Brand = "lg"
	BrandAndroidTV Brand = "androidtv"
	BrandGeneric   Brand = "generic"
)

// DeviceClass is the resolved client classification.
type DeviceClass struct {
	Kind  Kind
	Brand Brand // only meaningful when Kind == KindTV
}

// IsTV reports whether the device is any smart-TV class.
func (d DeviceClass) IsTV() bool { return d.Kind == KindTV }

// Detect resolves the device class from the User-Agent header and the
// optional ?device= query hint. The hint forces TV classification for
// clients whose UA is unrecognizable (set-top shells, kiosk browsers).
func Detect(userAgent, deviceHint string) DeviceClass {
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "tizen") || strings.Contains(ua, "samsung"):
		return DeviceClass{Kind: KindTV, Brand: BrandSamsung}
	case strings.Contains(ua, "webos") || strings.Contains(ua, "web0s") || strings.Contains(ua, "netcast"):
		return DeviceClass{Kind: KindTV, Brand: BrandLG}
	case strings.Contains(ua, "android tv") || strings.Contains(ua, "androidtv") ||
		strings.Contains(ua, "shield") || strings.Contains(ua, "chromecast") || strings.Contains(ua, "crkey"):
		return DeviceClass{Kind: KindTV, Brand: BrandAndroidTV}
	case strings.Contains(ua, "smart-tv") || strings.Contains(ua, "smarttv"):
		return DeviceClass{Kind: KindTV, Brand: BrandGeneric}
	}

	if strings.EqualFold(strings.TrimSpace(deviceHint), "tv") {
		return DeviceClass{Kind: KindTV, Brand: BrandGeneric}
	}

	return DeviceClass{Kind: KindBrowser}
}
