package imageproxy

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"imgguard/pkg/errors"
)

// FetchedImage holds the raw bytes retrieved from a validated source
type FetchedImage struct {
	Bytes       []byte
	ContentType string
	ByteLength  int64
}

// Fetcher retrieves images from validated URLs, enforcing content-type
// and size ceilings while streaming. It only accepts a ValidatedURL, so
// an unchecked URL cannot reach the network by construction.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewFetcher creates a fetcher on top of the given client. The client is
// copied with redirect-following disabled: a redirect would escape the
// validation already performed, so any 3xx is treated as an upstream
// failure instead of being chased.
func NewFetcher(client *http.Client, maxBytes int64, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}

	guarded := *client
	guarded.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if timeout > 0 {
		guarded.Timeout = timeout
	}

	return &Fetcher{
		client:   &guarded,
		maxBytes: maxBytes,
		logger:   logger.With("component", "imageproxy-fetcher"),
	}
}

// Fetch retrieves the image at url. The response must be 2xx with an
// image/* content type and a body no larger than the configured ceiling;
// content-length is advisory only, the streamed bytes are capped
// regardless.
func (f *Fetcher) Fetch(ctx context.Context, url ValidatedURL) (FetchedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return FetchedImage{}, errors.New(errors.CodeUpstreamFetchFailed, "failed to build upstream request").WithCause(err)
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("User-Agent", "imgguard/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("upstream fetch failed",
			"host", url.Host(),
			"error", err,
		)
		return FetchedImage{}, errors.New(errors.CodeUpstreamFetchFailed, "failed to fetch image from upstream").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FetchedImage{}, errors.New(errors.CodeUpstreamFetchFailed, "upstream returned a non-success status").
			WithDetail("upstreamStatus", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isImageContentType(contentType) {
		return FetchedImage{}, errors.New(errors.CodeUpstreamFetchFailed, "upstream did not return an image").
			WithDetail("contentType", contentType)
	}

	// Declared size first so oversized bodies abort before transfer.
	if resp.ContentLength > f.maxBytes {
		return FetchedImage{}, errors.New(errors.CodePayloadTooLarge, "image exceeds the size limit").
			WithDetail("contentLength", resp.ContentLength).
			WithDetail("maxBytes", f.maxBytes)
	}

	// Read one byte past the ceiling to detect overflow without trusting
	// content-length.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return FetchedImage{}, errors.New(errors.CodeUpstreamFetchFailed, "failed to read upstream response").WithCause(err)
	}
	if int64(len(body)) > f.maxBytes {
		return FetchedImage{}, errors.New(errors.CodePayloadTooLarge, "image exceeds the size limit").
			WithDetail("maxBytes", f.maxBytes)
	}

	return FetchedImage{
		Bytes:       body,
		ContentType: contentType,
		ByteLength:  int64(len(body)),
	}, nil
}

// isImageContentType reports whether the media type begins with "image/"
func isImageContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}
