package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"imgguard/internal/core"
	"imgguard/internal/imageproxy"
	"imgguard/internal/ratelimit"
	"imgguard/internal/storage"
	"imgguard/internal/storage/memory"
	"imgguard/pkg/errors"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()

	store := memory.NewStore(&storage.QuotaStoreConfig{CleanupInterval: time.Minute, MaxEntries: 1000})
	t.Cleanup(func() { store.Close() })

	limiter := ratelimit.New(store, ratelimit.DefaultConfig(), slog.Default())
	return New(nil, limiter, imageproxy.DefaultRequestLimits(), slog.Default())
}

func makeRequest(method, path string, query map[string][]string, headers map[string][]string) core.Request {
	if headers == nil {
		headers = map[string][]string{}
	}
	return core.NewRequest("test-1", method, path, path, query, "198.51.100.7:1234", headers, context.Background())
}

func TestHandle_UnknownRoute(t *testing.T) {
	h := testHandler(t)

	_, err := h.Handle(context.Background(), makeRequest(http.MethodGet, "/v1/nope", nil, nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := errors.CodeOf(err); got != errors.CodeInvalidRequest {
		t.Errorf("code = %s, want INVALID_REQUEST", got)
	}
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	h := testHandler(t)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		resp, err := h.Handle(context.Background(), makeRequest(method, "/v1/image", nil, nil))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", method, err)
		}
		if resp.StatusCode() != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d, want 405", method, resp.StatusCode())
		}
		if got := resp.Headers()["Allow"]; len(got) != 1 || got[0] != http.MethodGet {
			t.Errorf("%s: Allow = %v, want [GET]", method, got)
		}
	}
}

func TestHandle_ImageBadParams(t *testing.T) {
	h := testHandler(t)

	// Parameter validation happens before the proxy pipeline runs, so a
	// nil proxy is safe here.
	_, err := h.Handle(context.Background(), makeRequest(http.MethodGet, "/v1/image", map[string][]string{
		"src": {"https://images.example.com/cat.png"},
		"w":   {"not-a-number"},
	}, nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := errors.CodeOf(err); got != errors.CodeInvalidRequest {
		t.Errorf("code = %s, want INVALID_REQUEST", got)
	}
}

func TestHandle_Quota(t *testing.T) {
	h := testHandler(t)

	resp, err := h.Handle(context.Background(), makeRequest(http.MethodGet, "/v1/quota", nil, map[string][]string{
		"X-Real-Ip": {"203.0.113.50"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode())
	}

	body, _ := io.ReadAll(resp.Body())
	var status struct {
		Identifier    string `json:"identifier"`
		Authenticated bool   `json:"authenticated"`
		Limit         int    `json:"limit"`
		Remaining     int    `json:"remaining"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("unmarshal quota status: %v", err)
	}

	if status.Identifier != "203.0.113.50" {
		t.Errorf("identifier = %q", status.Identifier)
	}
	if status.Authenticated {
		t.Error("expected unauthenticated")
	}
	if status.Limit != ratelimit.DefaultConfig().Anonymous.Limit {
		t.Errorf("limit = %d", status.Limit)
	}
	// Status peeks without consuming.
	if status.Remaining != status.Limit {
		t.Errorf("remaining = %d, want untouched %d", status.Remaining, status.Limit)
	}
}

func TestHandle_QuotaAuthenticated(t *testing.T) {
	h := testHandler(t)

	resp, err := h.Handle(context.Background(), makeRequest(http.MethodGet, "/v1/quota", nil, map[string][]string{
		"X-Real-Ip":     {"203.0.113.50"},
		"Authorization": {"Bearer token-abc"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, _ := io.ReadAll(resp.Body())
	var status struct {
		Authenticated bool `json:"authenticated"`
		Limit         int  `json:"limit"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("unmarshal quota status: %v", err)
	}
	if !status.Authenticated {
		t.Error("expected authenticated")
	}
	if status.Limit != ratelimit.DefaultConfig().Authenticated.Limit {
		t.Errorf("limit = %d", status.Limit)
	}
}

func TestHandle_Health(t *testing.T) {
	h := testHandler(t)

	resp, err := h.Handle(context.Background(), makeRequest(http.MethodGet, "/healthz", nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode())
	}
}
