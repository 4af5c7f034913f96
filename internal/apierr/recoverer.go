package apierr

import (
	"net/http"
	"runtime/debug"

	"github.com/gonka-ai/inference-gateway/internal/log"
)

// Recoverer is a chi-compatible middleware that converts any panic in a
// downstream handler into an internal_error envelope instead of crashing
// the connection. The panic value and stack trace go to the logger only;
// the client sees a generic message.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithComponent("apierr").Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("path", r.URL.Path).
					Msg("recovered from panic")

				WriteKind(w, r, KindInternal, "an internal error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
