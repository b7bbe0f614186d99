package imageproxy

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gen2brain/webp"

	"imgguard/internal/circuitbreaker"
	"imgguard/pkg/errors"
)

// pinningTransport redirects every request to a local test server while
// preserving the original path, so the full pipeline can run against an
// allowlisted public-looking hostname.
type pinningTransport struct {
	target *url.URL
	inner  http.RoundTripper
}

func (t *pinningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	return t.inner.RoundTrip(clone)
}

func testProxy(t *testing.T, upstream *httptest.Server) *Proxy {
	t.Helper()

	target, err := url.Parse(upstream.URL)
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}
	client := &http.Client{
		Transport: &pinningTransport{target: target, inner: http.DefaultTransport},
	}

	validator := NewValidator(
		[]string{"images.example.com"},
		staticLookup(map[string][]string{
			"images.example.com": {"203.0.113.10"},
		}),
	)
	fetcher := NewFetcher(client, 1<<20, 5*time.Second, slog.Default())
	return NewProxy(validator, fetcher, slog.Default(), nil)
}

func TestProxyHandle_EndToEnd(t *testing.T) {
	body := pngBytes(t, 64, 48)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photos/cat.png" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer upstream.Close()

	proxy := testProxy(t, upstream)
	out, err := proxy.Handle(context.Background(), Request{
		Src:    "https://images.example.com/photos/cat.png",
		Width:  32,
		Height: 32,
		Fit:    FitCover,
		Format: FormatWebP,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.ContentType != "image/webp" {
		t.Errorf("content type = %q", out.ContentType)
	}
	decoded, err := webp.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not decodable webp: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
		t.Errorf("dimensions = %dx%d, want 32x32", b.Dx(), b.Dy())
	}
}

func TestProxyHandle_StageErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		handler  http.HandlerFunc
		wantCode errors.Code
	}{
		{
			name:     "blocked host never reaches upstream",
			src:      "https://evil.example.net/cat.png",
			handler:  func(w http.ResponseWriter, r *http.Request) { t.Error("upstream should not be hit") },
			wantCode: errors.CodeBlocked,
		},
		{
			name:     "relative url",
			src:      "/cat.png",
			handler:  func(w http.ResponseWriter, r *http.Request) { t.Error("upstream should not be hit") },
			wantCode: errors.CodeInvalidRequest,
		},
		{
			name: "upstream 404",
			src:  "https://images.example.com/missing.png",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantCode: errors.CodeUpstreamFetchFailed,
		},
		{
			name: "upstream serves garbage",
			src:  "https://images.example.com/corrupt.png",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write([]byte("definitely not a png"))
			},
			wantCode: errors.CodeDecodeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(tt.handler)
			defer upstream.Close()

			proxy := testProxy(t, upstream)
			_, err := proxy.Handle(context.Background(), Request{
				Src:    tt.src,
				Fit:    FitCover,
				Format: FormatWebP,
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.CodeOf(err); got != tt.wantCode {
				t.Errorf("code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestProxyHandle_CircuitBreaker(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	proxy := testProxy(t, upstream).WithCircuitBreaker(circuitbreaker.Config{
		TripAfter: 2,
		CoolOff:   time.Hour,
	})
	req := Request{
		Src:    "https://images.example.com/cat.png",
		Fit:    FitCover,
		Format: FormatWebP,
	}

	// Two consecutive upstream failures trip the host's circuit.
	for want := 1; want <= 2; want++ {
		if _, err := proxy.Handle(context.Background(), req); errors.CodeOf(err) != errors.CodeUpstreamFetchFailed {
			t.Fatalf("unexpected error: %v", err)
		}
		if hits != want {
			t.Fatalf("upstream hits = %d, want %d", hits, want)
		}
	}

	// Circuit is open now: requests fail fast without a network call.
	for i := 0; i < 3; i++ {
		if _, err := proxy.Handle(context.Background(), req); errors.CodeOf(err) != errors.CodeUpstreamFetchFailed {
			t.Fatalf("unexpected error with open circuit: %v", err)
		}
	}
	if hits != 2 {
		t.Errorf("upstream hits = %d after circuit opened, want 2", hits)
	}
}
