// SPDX-License-Identifier: MIT

// Package pathutil contains filesystem path hygiene helpers shared by the
// session store and the HLS file server.
package pathutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidSessionID marks session id validation failures so handlers can
// map them to a client error.
var ErrInvalidSessionID = errors.New("invalid session id")

// sessionIDPattern restricts session IDs to characters that are safe to use
// as a single path component. Separators and parent references never match.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateSessionID reports whether id may be joined with the HLS root.
// Session IDs arrive from untrusted clients and become directory names.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSessionID)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%w: %q is a reserved path component", ErrInvalidSessionID, id)
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidSessionID, id)
	}
	return nil
}

// SecureJoin safely joins a root directory with a user-provided path component.
// It prevents path traversal attacks by ensuring the result stays within root.
func SecureJoin(root, userPath string) (string, error) {
	cleaned := filepath.Clean(userPath)

	// Reject absolute paths
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("absolute paths are not allowed: %q", userPath)
	}

	// Reject paths starting with ..
	if strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("path traversal not allowed: %q", userPath)
	}

	full := filepath.Join(root, cleaned)

	// Ensure result is within root (defense in depth)
	rootClean := filepath.Clean(root) + string(filepath.Separator)
	fullClean := filepath.Clean(full) + string(filepath.Separator)
	if !strings.HasPrefix(fullClean, rootClean) {
		return "", fmt.Errorf("path escapes root directory: %q", userPath)
	}

	return full, nil
}

var unsafeTitleChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SanitizeTitle reduces an arbitrary stream title tag to a token that is safe
// inside an ffmpeg var_stream_map entry. Only [A-Za-z0-9_] survives, leading
// and trailing underscores are stripped, and an empty result falls back to
// the given default.
func SanitizeTitle(title, fallback string) string {
	safe := unsafeTitleChars.ReplaceAllString(title, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return fallback
	}
	return safe
}
