package telemetry

import (
	"net/http"
)

// Middleware wraps the HTTP frontend with server spans
type Middleware struct {
	telemetry *Telemetry
}

// NewMiddleware creates a new telemetry middleware
func NewMiddleware(telemetry *Telemetry) *Middleware {
	return &Middleware{telemetry: telemetry}
}

// WrapHTTP wraps an HTTP handler with a server span per request
func (m *Middleware) WrapHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.telemetry.StartHTTPServerSpan(r)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		EndHTTPServerSpan(span, rw.status)
	})
}

// responseWriter captures the response status for the span
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
