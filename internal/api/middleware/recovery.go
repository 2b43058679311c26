// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"runtime/debug"

	sglog "github.com/streamgate/streamgate/internal/log"
)

// Recoverer converts handler panics into 500 responses and logs the stack.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel comparison per net/http contract
					panic(rec)
				}
				logger := sglog.WithComponentFromContext(r.Context(), "http")
				logger.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("path", r.URL.Path).
					Msg("handler panic recovered")
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
