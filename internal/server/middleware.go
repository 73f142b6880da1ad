package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"
)

// apiKeyHeader carries the shared key on every mutating request.
const apiKeyHeader = "X-API-Key"

// APIKeyAuth guards mutating routes with a shared-key check. The comparison
// is constant-time; a missing key and a wrong key map to different status
// codes so a misconfigured client is distinguishable from a bad key.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(apiKeyHeader)
			switch {
			case got == "":
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing API key"})
			case subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1:
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid API key"})
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequestLogging emits one line per request with outcome and timing.
func RequestLogging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"remote", r.RemoteAddr,
				"elapsed", time.Since(start).Round(time.Microsecond).String(),
			)
		})
	}
}

// CORS lets browser clients on other origins call the API. The policy is
// wide open on purpose: the listener is loopback or a private tailnet,
// never the public internet.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+apiKeyHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseRecorder captures what the handler wrote for the request log.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}
