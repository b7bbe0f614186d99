package imageproxy

import (
	"testing"

	"imgguard/pkg/errors"
)

func TestParseRequest_Defaults(t *testing.T) {
	req, err := ParseRequest(map[string][]string{
		"src": {"https://images.example.com/cat.png"},
	}, DefaultRequestLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Src != "https://images.example.com/cat.png" {
		t.Errorf("src = %q", req.Src)
	}
	if req.Fit != FitCover {
		t.Errorf("fit = %s, want cover", req.Fit)
	}
	if req.Format != FormatWebP {
		t.Errorf("format = %s, want webp", req.Format)
	}
	if req.Width != 0 || req.Height != 0 {
		t.Errorf("dimensions = %dx%d, want 0x0", req.Width, req.Height)
	}
}

func TestParseRequest_FullySpecified(t *testing.T) {
	req, err := ParseRequest(map[string][]string{
		"src":    {"https://images.example.com/cat.png"},
		"w":      {"256"},
		"h":      {"128"},
		"fit":    {"contain"},
		"format": {"png"},
	}, DefaultRequestLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Width != 256 || req.Height != 128 {
		t.Errorf("dimensions = %dx%d, want 256x128", req.Width, req.Height)
	}
	if req.Fit != FitContain {
		t.Errorf("fit = %s, want contain", req.Fit)
	}
	if req.Format != FormatPNG {
		t.Errorf("format = %s, want png", req.Format)
	}
}

func TestParseRequest_Rejections(t *testing.T) {
	limits := DefaultRequestLimits()

	tests := []struct {
		name  string
		query map[string][]string
	}{
		{"missing src", map[string][]string{}},
		{"empty src", map[string][]string{"src": {""}}},
		{"non-integer width", map[string][]string{"src": {"https://x/y"}, "w": {"abc"}}},
		{"negative width", map[string][]string{"src": {"https://x/y"}, "w": {"-5"}}},
		{"zero height", map[string][]string{"src": {"https://x/y"}, "h": {"0"}}},
		{"width over max", map[string][]string{"src": {"https://x/y"}, "w": {"5000"}}},
		{"height over max", map[string][]string{"src": {"https://x/y"}, "h": {"99999"}}},
		{"unknown fit", map[string][]string{"src": {"https://x/y"}, "fit": {"zoom"}}},
		{"unknown format", map[string][]string{"src": {"https://x/y"}, "format": {"bmp"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(tt.query, limits)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if errors.CodeOf(err) != errors.CodeInvalidRequest {
				t.Errorf("code = %s, want INVALID_REQUEST", errors.CodeOf(err))
			}
		})
	}
}

func TestParseRequest_RestrictedFormats(t *testing.T) {
	limits := RequestLimits{
		MaxDimension:   1024,
		AllowedFormats: []Format{FormatWebP, FormatJPEG},
	}

	if _, err := ParseRequest(map[string][]string{
		"src":    {"https://x/y"},
		"format": {"jpeg"},
	}, limits); err != nil {
		t.Errorf("jpeg should be allowed: %v", err)
	}

	if _, err := ParseRequest(map[string][]string{
		"src":    {"https://x/y"},
		"format": {"avif"},
	}, limits); err == nil {
		t.Error("avif should be rejected when not configured")
	}
}

func TestFormatContentType(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatWebP, "image/webp"},
		{FormatPNG, "image/png"},
		{FormatJPEG, "image/jpeg"},
		{FormatAVIF, "image/avif"},
	}

	for _, tt := range tests {
		if got := tt.format.ContentType(); got != tt.want {
			t.Errorf("ContentType(%s) = %q, want %q", tt.format, got, tt.want)
		}
	}
}
