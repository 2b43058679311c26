// SPDX-License-Identifier: MIT

package telemetry

import "go.opentelemetry.io/otel/attribute"

// Common attribute keys used across the gateway's spans.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	SessionIDKey = "session.id"

	StreamModeKey   = "stream.mode"
	StreamReasonKey = "stream.reason"
	StreamSourceKey = "stream.source"

	TranscodeInputCodecKey  = "transcode.input_codec"
	TranscodeOutputCodecKey = "transcode.output_codec"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// StreamAttributes creates streaming-related span attributes.
func StreamAttributes(sessionID, mode, reason string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(StreamModeKey, mode))
	}
	if reason != "" {
		attrs = append(attrs, attribute.String(StreamReasonKey, reason))
	}
	return attrs
}
