// Package handler dispatches requests to the image proxy and quota
// endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"imgguard/internal/core"
	"imgguard/internal/identity"
	"imgguard/internal/imageproxy"
	"imgguard/internal/ratelimit"
	"imgguard/pkg/errors"
)

// Handler routes the public API surface.
type Handler struct {
	proxy   *imageproxy.Proxy
	limiter *ratelimit.Limiter
	limits  imageproxy.RequestLimits
	logger  *slog.Logger
}

// New creates the public API handler.
func New(proxy *imageproxy.Proxy, limiter *ratelimit.Limiter, limits imageproxy.RequestLimits, logger *slog.Logger) *Handler {
	return &Handler{
		proxy:   proxy,
		limiter: limiter,
		limits:  limits,
		logger:  logger.With("component", "handler"),
	}
}

// Handle implements core.Handler.
func (h *Handler) Handle(ctx context.Context, req core.Request) (core.Response, error) {
	// The whole surface is read-only, so every route allows the same
	// single method.
	if req.Method() != http.MethodGet {
		body, _ := json.Marshal(map[string]string{
			"code":    string(errors.CodeInvalidRequest),
			"message": "method not allowed",
		})
		return core.NewResponseWithHeaders(http.StatusMethodNotAllowed, body, map[string][]string{
			"Allow":        {http.MethodGet},
			"Content-Type": {"application/json"},
		}), nil
	}

	switch req.Path() {
	case "/v1/image":
		return h.handleImage(ctx, req)
	case "/v1/quota":
		return h.handleQuota(ctx, req)
	case "/healthz":
		return h.handleHealth(ctx, req)
	default:
		return nil, errors.New(errors.CodeInvalidRequest, "unknown route").
			WithDetail("path", req.Path())
	}
}

func (h *Handler) handleImage(ctx context.Context, req core.Request) (core.Response, error) {
	proxyReq, err := imageproxy.ParseRequest(req.Query(), h.limits)
	if err != nil {
		return nil, err
	}

	out, err := h.proxy.Handle(ctx, proxyReq)
	if err != nil {
		return nil, err
	}

	return core.NewResponseWithHeaders(http.StatusOK, out.Data, map[string][]string{
		"Content-Type":   {out.ContentType},
		"Content-Length": {strconv.Itoa(len(out.Data))},
	}), nil
}

// quotaStatus is the wire shape of GET /v1/quota.
type quotaStatus struct {
	Identifier    string `json:"identifier"`
	Authenticated bool   `json:"authenticated"`
	Limit         int    `json:"limit"`
	Remaining     int    `json:"remaining"`
	Reset         int64  `json:"reset"`
}

func (h *Handler) handleQuota(ctx context.Context, req core.Request) (core.Response, error) {
	identifier := identity.Resolve(req)
	authenticated := identity.IsAuthenticated(req)

	decision, err := h.limiter.Status(ctx, identifier, authenticated)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(quotaStatus{
		Identifier:    identifier,
		Authenticated: authenticated,
		Limit:         decision.Limit,
		Remaining:     decision.Remaining,
		Reset:         decision.Reset.Unix(),
	})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to encode quota status").WithCause(err)
	}

	return core.NewResponseWithHeaders(http.StatusOK, body, map[string][]string{
		"Content-Type": {"application/json"},
	}), nil
}

func (h *Handler) handleHealth(_ context.Context, _ core.Request) (core.Response, error) {
	body, _ := json.Marshal(map[string]string{"status": "ok"})
	return core.NewResponseWithHeaders(http.StatusOK, body, map[string][]string{
		"Content-Type": {"application/json"},
	}), nil
}
