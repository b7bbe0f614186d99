// Package http exposes the service over HTTP, bridging net/http onto
// the internal request model.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"imgguard/internal/core"
	guarderrors "imgguard/pkg/errors"
	"imgguard/pkg/requestid"
	guardtls "imgguard/pkg/tls"
)

// Config holds HTTP frontend configuration
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TLS          *guardtls.Config
}

// Adapter handles HTTP requests
type Adapter struct {
	config         Config
	server         *http.Server
	handler        core.Handler
	logger         *slog.Logger
	metricsHandler http.Handler
	metricsPath    string
	httpMiddleware func(http.Handler) http.Handler
}

// New creates a new HTTP adapter
func New(cfg Config, handler core.Handler) *Adapter {
	return &Adapter{
		config:      cfg,
		handler:     handler,
		logger:      slog.Default().With("component", "http"),
		metricsPath: "/metrics",
	}
}

// WithLogger sets the logger
func (a *Adapter) WithLogger(logger *slog.Logger) *Adapter {
	a.logger = logger.With("component", "http")
	return a
}

// WithMetricsHandler serves h on the metrics path alongside the API
func (a *Adapter) WithMetricsHandler(h http.Handler) *Adapter {
	a.metricsHandler = h
	return a
}

// WithMetricsPath overrides the default /metrics path
func (a *Adapter) WithMetricsPath(path string) *Adapter {
	if path != "" {
		a.metricsPath = path
	}
	return a
}

// WithHTTPMiddleware wraps the server handler, outermost. Used for
// telemetry spans that must cover the whole request.
func (a *Adapter) WithHTTPMiddleware(mw func(http.Handler) http.Handler) *Adapter {
	a.httpMiddleware = mw
	return a
}

// Start starts the HTTP server
func (a *Adapter) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)

	handler := http.Handler(a)
	if a.metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle(a.metricsPath, a.metricsHandler)
		mux.Handle("/", a)
		handler = mux
	}
	if a.httpMiddleware != nil {
		handler = a.httpMiddleware(handler)
	}

	a.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	if a.config.TLS != nil && a.config.TLS.Enabled {
		a.server.TLSConfig = a.config.TLS.Build()
	}

	a.logger.Info("starting server", "addr", addr)

	go func() {
		var err error
		if a.config.TLS != nil && a.config.TLS.Enabled {
			a.logger.Info("starting TLS server", "cert", a.config.TLS.CertFile)
			err = a.server.ListenAndServeTLS(a.config.TLS.CertFile, a.config.TLS.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			a.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (a *Adapter) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}

	a.logger.Info("stopping server")
	return a.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestid.GenerateRequestID()

	headers := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = v
	}

	req := core.NewRequest(reqID, r.Method, r.URL.Path, r.URL.String(), r.URL.Query(), r.RemoteAddr, headers, r.Context())

	resp, err := a.handler(r.Context(), req)
	if err != nil {
		a.handleError(w, reqID, err)
		return
	}

	for k, values := range resp.Headers() {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}

	w.WriteHeader(resp.StatusCode())

	if body := resp.Body(); body != nil {
		defer body.Close()
		if _, err := io.Copy(w, body); err != nil {
			// Headers are already sent; all we can do is log.
			a.logger.Error("failed to copy response body",
				"error", err,
				"request_id", reqID,
				"path", req.Path())
		}
	}
}

// errorBody is the wire shape of every error response
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// clientDetailKeys lists, per error code, the detail keys that may be
// exposed to callers. Codes absent here expose nothing: BLOCKED stays
// deliberately non-specific so probing callers cannot learn which
// security check tripped, and panic details never leave the process.
var clientDetailKeys = map[guarderrors.Code][]string{
	guarderrors.CodeRateLimited:         {"scope", "limit", "remaining", "reset", "retryAfterSeconds"},
	guarderrors.CodeInvalidRequest:      {"method", "path"},
	guarderrors.CodeUpstreamFetchFailed: {"upstreamStatus"},
	guarderrors.CodePayloadTooLarge:     {"contentLength", "maxBytes"},
}

func clientDetails(guardErr *guarderrors.Error) map[string]any {
	keys := clientDetailKeys[guardErr.Code]
	if len(keys) == 0 || len(guardErr.Details) == 0 {
		return nil
	}

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := guardErr.Details[k]; ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// handleError maps errors to HTTP responses. Typed errors carry their
// own status code and safe-to-expose details; anything else becomes an
// opaque 500.
func (a *Adapter) handleError(w http.ResponseWriter, reqID string, err error) {
	var guardErr *guarderrors.Error
	statusCode := http.StatusInternalServerError
	body := errorBody{
		Code:    string(guarderrors.CodeInternal),
		Message: "internal server error",
	}

	if guarderrors.As(err, &guardErr) {
		statusCode = guardErr.HTTPStatusCode()
		body.Code = string(guardErr.Code)
		body.Message = guardErr.Message
		body.Details = clientDetails(guardErr)

		if retryAfter := guardErr.RetryAfterSeconds(); retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}

		a.logger.Warn("request failed",
			"id", reqID,
			"code", string(guardErr.Code),
			"error", guardErr.Error(),
			"details", guardErr.Details)
	} else {
		a.logger.Error("request failed", "id", reqID, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("failed to encode error body", "id", reqID, "error", err)
	}
}
