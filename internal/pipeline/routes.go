package pipeline

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the gateway's HTTP surface onto a chi router.
func (p *Pipeline) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", p.ServeHealth)
	r.Get("/v1/models", instrument("/v1/models", p.ServeModels))
	r.Post("/v1/chat/completions", instrument("/v1/chat/completions", p.ServeChatCompletions))
	r.Get("/v1/usage", instrument("/v1/usage", p.ServeUsage))

	return r
}

func instrument(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
		handler(sw, r)
		requestsTotal.WithLabelValues(route, http.StatusText(sw.status)).Inc()
	}
}

type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush delegates to the underlying ResponseWriter's Flusher so the Stream
// Relay's incremental SSE writes still reach the client immediately.
func (w *statusCapturingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
