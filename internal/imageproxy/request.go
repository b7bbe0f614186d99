package imageproxy

import (
	"fmt"
	"strconv"

	"imgguard/pkg/errors"
)

// Format is an output image format
type Format string

const (
	FormatWebP Format = "webp"
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatAVIF Format = "avif"
)

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// Fit is the resize strategy reconciling source and target aspect ratios
type Fit string

const (
	// FitCover crops to fill the target box
	FitCover Fit = "cover"
	// FitContain letterboxes onto the target box
	FitContain Fit = "contain"
	// FitFill stretches to the target box, ignoring aspect ratio
	FitFill Fit = "fill"
	// FitInside bounds both dimensions from above, preserving aspect
	FitInside Fit = "inside"
	// FitOutside bounds both dimensions from below, preserving aspect
	FitOutside Fit = "outside"
)

// Request is a fully validated and defaulted proxy request. It is built
// exactly once at the boundary and immutable thereafter; downstream
// stages never apply their own fallbacks.
type Request struct {
	Src    string
	Width  int
	Height int
	Fit    Fit
	Format Format
}

// RequestLimits bounds what a proxy request may ask for
type RequestLimits struct {
	// MaxDimension caps the requested width and height
	MaxDimension int
	// AllowedFormats lists the output formats the service will produce
	AllowedFormats []Format
}

// DefaultRequestLimits returns the default request bounds
func DefaultRequestLimits() RequestLimits {
	return RequestLimits{
		MaxDimension:   4096,
		AllowedFormats: []Format{FormatWebP, FormatPNG, FormatJPEG, FormatAVIF},
	}
}

// ParseRequest validates query parameters and applies defaults: fit
// defaults to cover, format to webp. Anything out of bounds rejects
// with INVALID_REQUEST before validation or fetching begins.
func ParseRequest(query map[string][]string, limits RequestLimits) (Request, error) {
	get := func(name string) string {
		if values := query[name]; len(values) > 0 {
			return values[0]
		}
		return ""
	}

	src := get("src")
	if src == "" {
		return Request{}, errors.New(errors.CodeInvalidRequest, "src parameter is required")
	}

	width, err := parseDimension(get("w"), limits.MaxDimension)
	if err != nil {
		return Request{}, errors.New(errors.CodeInvalidRequest, fmt.Sprintf("invalid w parameter: %v", err))
	}

	height, err := parseDimension(get("h"), limits.MaxDimension)
	if err != nil {
		return Request{}, errors.New(errors.CodeInvalidRequest, fmt.Sprintf("invalid h parameter: %v", err))
	}

	fit := Fit(get("fit"))
	switch fit {
	case "":
		fit = FitCover
	case FitCover, FitContain, FitFill, FitInside, FitOutside:
	default:
		return Request{}, errors.New(errors.CodeInvalidRequest, fmt.Sprintf("unknown fit mode %q", fit))
	}

	format := Format(get("format"))
	if format == "" {
		format = FormatWebP
	}
	if !formatAllowed(format, limits.AllowedFormats) {
		return Request{}, errors.New(errors.CodeInvalidRequest, fmt.Sprintf("unsupported format %q", format))
	}

	return Request{
		Src:    src,
		Width:  width,
		Height: height,
		Fit:    fit,
		Format: format,
	}, nil
}

// parseDimension parses an optional positive integer bounded by max.
// Empty means absent and parses as 0.
func parseDimension(raw string, max int) (int, error) {
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	if n > max {
		return 0, fmt.Errorf("exceeds maximum %d", max)
	}
	return n, nil
}

func formatAllowed(f Format, allowed []Format) bool {
	for _, a := range allowed {
		if f == a {
			return true
		}
	}
	return false
}
