package imageproxy

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/gen2brain/webp"

	"imgguard/pkg/errors"
)

// pngHeader builds a syntactically valid PNG signature plus IHDR chunk
// declaring arbitrary dimensions, with no pixel data behind it.
func pngHeader(t *testing.T, width, height uint32) []byte {
	t.Helper()
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], 13)
	buf.Write(word[:])
	buf.WriteString("IHDR")
	buf.Write(ihdr)
	binary.BigEndian.PutUint32(word[:], crc32.ChecksumIEEE(append([]byte("IHDR"), ihdr...)))
	buf.Write(word[:])
	return buf.Bytes()
}

func solidPNG(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestTranscode_PNGToWebP(t *testing.T) {
	src := pngBytes(t, 64, 48)

	out, err := Transcode(src, TranscodeOptions{Format: FormatWebP})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.ContentType != "image/webp" {
		t.Errorf("content type = %q, want image/webp", out.ContentType)
	}

	decoded, err := webp.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not decodable webp: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 64 || bounds.Dy() != 48 {
		t.Errorf("dimensions = %dx%d, want 64x48 (no resize requested)", bounds.Dx(), bounds.Dy())
	}
}

func TestTranscode_CoverResize(t *testing.T) {
	src := pngBytes(t, 64, 32)

	out, err := Transcode(src, TranscodeOptions{
		Width:  16,
		Height: 16,
		Fit:    FitCover,
		Format: FormatPNG,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, _, err := image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not decodable: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 16 || bounds.Dy() != 16 {
		t.Errorf("dimensions = %dx%d, want exactly 16x16 for cover", bounds.Dx(), bounds.Dy())
	}
}

func TestTranscode_FitModes(t *testing.T) {
	src := pngBytes(t, 64, 32) // 2:1 aspect

	tests := []struct {
		fit        Fit
		wantW      int
		wantH      int
	}{
		{FitCover, 16, 16},
		{FitContain, 16, 16},  // padded to exact box
		{FitFill, 16, 16},     // stretched
		{FitInside, 16, 8},    // aspect kept, fits within
		{FitOutside, 32, 16},  // aspect kept, covers box
	}

	for _, tt := range tests {
		t.Run(string(tt.fit), func(t *testing.T) {
			out, err := Transcode(src, TranscodeOptions{
				Width:  16,
				Height: 16,
				Fit:    tt.fit,
				Format: FormatPNG,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			decoded, _, err := image.Decode(bytes.NewReader(out.Data))
			if err != nil {
				t.Fatalf("output is not decodable: %v", err)
			}
			bounds := decoded.Bounds()
			if bounds.Dx() != tt.wantW || bounds.Dy() != tt.wantH {
				t.Errorf("dimensions = %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestTranscode_SingleDimension(t *testing.T) {
	src := pngBytes(t, 64, 32)

	out, err := Transcode(src, TranscodeOptions{
		Width:  32,
		Fit:    FitCover,
		Format: FormatPNG,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, _, err := image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not decodable: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 16 {
		t.Errorf("dimensions = %dx%d, want 32x16 (aspect preserved)", bounds.Dx(), bounds.Dy())
	}
}

func TestTranscode_JPEGOutput(t *testing.T) {
	src := pngBytes(t, 8, 8)

	out, err := Transcode(src, TranscodeOptions{Format: FormatJPEG})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ContentType != "image/jpeg" {
		t.Errorf("content type = %q", out.ContentType)
	}
	_, format, err := image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not decodable: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("decoded format = %q, want jpeg", format)
	}
}

// A few hundred bytes of compressed input can declare a multi-gigabyte
// decoded image. The header check must reject it before any pixel
// buffer is allocated.
func TestTranscode_OversizedSourceRejected(t *testing.T) {
	huge := pngHeader(t, 50000, 50000)

	_, err := Transcode(huge, TranscodeOptions{Format: FormatWebP})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := errors.CodeOf(err); got != errors.CodePayloadTooLarge {
		t.Errorf("code = %s, want PAYLOAD_TOO_LARGE", got)
	}
}

func TestTranscode_SourcePixelLimit(t *testing.T) {
	src := pngBytes(t, 64, 48)

	_, err := Transcode(src, TranscodeOptions{Format: FormatPNG, MaxSourcePixels: 1024})
	if got := errors.CodeOf(err); got != errors.CodePayloadTooLarge {
		t.Errorf("code = %s, want PAYLOAD_TOO_LARGE for 64x48 over a 1024px budget", got)
	}

	if _, err := Transcode(src, TranscodeOptions{Format: FormatPNG, MaxSourcePixels: 64 * 48}); err != nil {
		t.Errorf("unexpected error at exactly the budget: %v", err)
	}
}

// Contain letterboxing must be white for JPEG output: the format has no
// alpha channel and a transparent canvas would come out black.
func TestTranscode_ContainLetterboxFill(t *testing.T) {
	red := color.NRGBA{R: 200, A: 255}
	src := solidPNG(t, 64, 16, red)

	// 64x16 into a 32x32 box pads 12 rows top and bottom.
	opts := TranscodeOptions{Width: 32, Height: 32, Fit: FitContain, Format: FormatJPEG}
	out, err := Transcode(src, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, _, err := image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not decodable: %v", err)
	}

	r, g, b, _ := decoded.At(0, 0).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("jpeg letterbox corner = (%d,%d,%d), want near-white", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = decoded.At(16, 16).RGBA()
	if r>>8 < 150 || g>>8 > 80 || b>>8 > 80 {
		t.Errorf("jpeg image center = (%d,%d,%d), want red", r>>8, g>>8, b>>8)
	}

	// Alpha-capable formats keep the padding transparent.
	opts.Format = FormatPNG
	out, err = Transcode(src, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, _, err = image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not decodable: %v", err)
	}
	if _, _, _, a := decoded.At(0, 0).RGBA(); a != 0 {
		t.Errorf("png letterbox corner alpha = %d, want fully transparent", a>>8)
	}
}

func TestTranscode_CorruptInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("this is not an image at all")},
		{"empty", nil},
		{"truncated png", pngBytes(t, 8, 8)[:20]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transcode(tt.data, TranscodeOptions{Format: FormatWebP})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.CodeOf(err); got != errors.CodeDecodeFailed {
				t.Errorf("code = %s, want DECODE_FAILED", got)
			}
		})
	}
}
