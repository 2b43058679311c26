// SPDX-License-Identifier: MIT

package session

import "errors"

// ErrNotFound reports a session id with no live record.
var ErrNotFound = errors.New("session not found")
