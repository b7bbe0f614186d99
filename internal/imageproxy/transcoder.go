package imageproxy

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	_ "image/gif" // decoder registration

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"

	"imgguard/pkg/errors"
)

// ProcessedImage is the final transcoded output
type ProcessedImage struct {
	Data        []byte
	ContentType string
}

// TranscodeOptions selects the output format and geometry
type TranscodeOptions struct {
	Format Format
	Width  int
	Height int
	Fit    Fit
	// MaxSourcePixels caps the decoded source area in pixels. The fetch
	// byte limit does not bound decoded size: a small compressed file can
	// declare enormous dimensions in its header. Zero applies the default
	// request-limit dimension squared.
	MaxSourcePixels int
}

// jpegQuality matches the common web-delivery default
const jpegQuality = 85

// Transcode decodes the input bytes, applies the requested resize, and
// re-encodes to the requested format. Malformed input is reported as
// DECODE_FAILED; decoder panics are recovered into the same error rather
// than taking the request down.
func Transcode(data []byte, opts TranscodeOptions) (out ProcessedImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = ProcessedImage{}
			err = errors.New(errors.CodeDecodeFailed, "image data could not be decoded").
				WithDetail("panic", fmt.Sprintf("%v", r))
		}
	}()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ProcessedImage{}, errors.New(errors.CodeDecodeFailed, "image data could not be decoded").WithCause(err)
	}
	maxPixels := int64(opts.MaxSourcePixels)
	if maxPixels <= 0 {
		d := int64(DefaultRequestLimits().MaxDimension)
		maxPixels = d * d
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return ProcessedImage{}, errors.New(errors.CodePayloadTooLarge, "source image resolution exceeds the limit").
			WithDetail("width", cfg.Width).
			WithDetail("height", cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return ProcessedImage{}, errors.New(errors.CodeDecodeFailed, "image data could not be decoded").WithCause(err)
	}

	resized := resize(src, opts.Width, opts.Height, opts.Fit, canvasFill(opts.Format))

	var buf bytes.Buffer
	switch opts.Format {
	case FormatPNG:
		err = png.Encode(&buf, resized)
	case FormatJPEG:
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality})
	case FormatWebP:
		err = webp.Encode(&buf, resized, webp.Options{Quality: jpegQuality})
	case FormatAVIF:
		err = avif.Encode(&buf, resized, avif.Options{Quality: 60, Speed: 8})
	default:
		return ProcessedImage{}, errors.New(errors.CodeInvalidRequest, fmt.Sprintf("unsupported format %q", opts.Format))
	}
	if err != nil {
		return ProcessedImage{}, errors.New(errors.CodeDecodeFailed, "image could not be encoded").WithCause(err)
	}

	return ProcessedImage{
		Data:        buf.Bytes(),
		ContentType: opts.Format.ContentType(),
	}, nil
}

// canvasFill picks the letterbox color for contain output: transparent
// where the target format carries alpha, white where it does not. JPEG
// has no alpha channel and would render a transparent canvas as black.
func canvasFill(f Format) color.Color {
	if f == FormatJPEG {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return color.NRGBA{}
}

// resize applies the fit mode. With no dimensions the image passes
// through; with one dimension the other scales to preserve aspect.
func resize(src image.Image, width, height int, fit Fit, fill color.Color) image.Image {
	if width == 0 && height == 0 {
		return src
	}

	// One-dimensional requests scale proportionally regardless of fit.
	if width == 0 || height == 0 {
		return imaging.Resize(src, width, height, imaging.Lanczos)
	}

	switch fit {
	case FitCover:
		return imaging.Fill(src, width, height, imaging.Center, imaging.Lanczos)
	case FitContain:
		fitted := imaging.Fit(src, width, height, imaging.Lanczos)
		canvas := imaging.New(width, height, fill)
		return imaging.PasteCenter(canvas, fitted)
	case FitFill:
		return imaging.Resize(src, width, height, imaging.Lanczos)
	case FitInside:
		return imaging.Fit(src, width, height, imaging.Lanczos)
	case FitOutside:
		return resizeOutside(src, width, height)
	default:
		return imaging.Fill(src, width, height, imaging.Center, imaging.Lanczos)
	}
}

// resizeOutside scales preserving aspect so both dimensions are at least
// the requested size, without cropping
func resizeOutside(src image.Image, width, height int) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return src
	}

	scale := math.Max(float64(width)/float64(srcW), float64(height)/float64(srcH))
	outW := int(math.Ceil(float64(srcW) * scale))
	outH := int(math.Ceil(float64(srcH) * scale))

	return imaging.Resize(src, outW, outH, imaging.Lanczos)
}
