package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/wagiedev/analytics-mcp/internal/telemetry"
)

// SessionHeader is the session-identifying response header exposed to
// browser clients through CORS.
const SessionHeader = "Mcp-Session-Id"

// WithObservability time-stamps each dispatched request, logs it, and feeds
// the request counter and duration histogram.
func WithObservability(log *slog.Logger, obs *telemetry.Observer, next http.Handler) http.Handler {
	log = log.With("component", "http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		obs.ObserveRequest(r.Context(), r.Method, r.URL.Path, ww.status, elapsed)
		log.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"remote", r.RemoteAddr,
			"duration", elapsed.String(),
		)
	})
}

// WithCORS permits every origin, method, and header, with credentials, and
// exposes the session header so browser clients can read it. When the request
// declares an origin it is echoed back (required once credentials are
// allowed); otherwise the wildcard form is used. Preflight requests are
// answered directly.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Expose-Headers", SessionHeader)

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				h.Set("Access-Control-Allow-Headers", "*")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusWriter captures the response status for logging and metrics. Flush is
// forwarded so streaming responses behind the middleware keep working.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
