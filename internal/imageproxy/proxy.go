package imageproxy

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"imgguard/internal/circuitbreaker"
	"imgguard/pkg/errors"
	"imgguard/pkg/metrics"
)

// Proxy sequences Validate, Fetch, and Transcode into one request cycle
// and maps every failure to the shared error taxonomy.
type Proxy struct {
	validator *Validator
	fetcher   *Fetcher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	breakers  *circuitbreaker.PerHost

	maxSourcePixels int
}

// NewProxy creates an image proxy. Metrics may be nil.
func NewProxy(validator *Validator, fetcher *Fetcher, logger *slog.Logger, m *metrics.Metrics) *Proxy {
	return &Proxy{
		validator: validator,
		fetcher:   fetcher,
		logger:    logger.With("component", "imageproxy"),
		metrics:   m,
		tracer:    otel.Tracer("imgguard/imageproxy"),
	}
}

// WithCircuitBreaker enables per-host circuit breaking around the
// fetch stage. Hosts whose circuit is open fail fast without touching
// the network until the breaker half-opens.
func (p *Proxy) WithCircuitBreaker(cfg circuitbreaker.Config) *Proxy {
	p.breakers = circuitbreaker.NewPerHost(cfg)
	return p
}

// WithSourceLimit caps decoded source resolution at maxDimension squared
// pixels. Zero keeps the default request-limit dimension.
func (p *Proxy) WithSourceLimit(maxDimension int) *Proxy {
	p.maxSourcePixels = maxDimension * maxDimension
	return p
}

// Handle processes one already-parsed proxy request
func (p *Proxy) Handle(ctx context.Context, req Request) (ProcessedImage, error) {
	out, err := p.handle(ctx, req)

	if p.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = string(errors.CodeOf(err))
		}
		p.metrics.ProxyRequestsTotal.WithLabelValues(outcome).Inc()
	}

	return out, err
}

func (p *Proxy) handle(ctx context.Context, req Request) (ProcessedImage, error) {
	ctx, span := p.tracer.Start(ctx, "imageproxy.handle",
		trace.WithAttributes(
			attribute.String("imageproxy.format", string(req.Format)),
			attribute.String("imageproxy.fit", string(req.Fit)),
			attribute.Int("imageproxy.width", req.Width),
			attribute.Int("imageproxy.height", req.Height),
		),
	)
	defer span.End()

	validated, err := p.stageValidate(ctx, req.Src)
	if err != nil {
		return ProcessedImage{}, p.fail(span, err)
	}

	fetched, err := p.stageFetch(ctx, validated)
	if err != nil {
		return ProcessedImage{}, p.fail(span, err)
	}

	processed, err := p.stageTranscode(ctx, fetched, req)
	if err != nil {
		return ProcessedImage{}, p.fail(span, err)
	}

	span.SetStatus(codes.Ok, "")
	return processed, nil
}

func (p *Proxy) stageValidate(ctx context.Context, src string) (ValidatedURL, error) {
	ctx, span := p.tracer.Start(ctx, "imageproxy.validate")
	defer span.End()
	defer p.observeStage("validate", time.Now())

	validated, err := p.validator.Validate(ctx, src)
	if err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return ValidatedURL{}, coerce(err)
	}

	span.SetAttributes(attribute.String("imageproxy.host", validated.Host()))
	return validated, nil
}

func (p *Proxy) stageFetch(ctx context.Context, url ValidatedURL) (FetchedImage, error) {
	ctx, span := p.tracer.Start(ctx, "imageproxy.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("imageproxy.host", url.Host())),
	)
	defer span.End()
	defer p.observeStage("fetch", time.Now())

	var cb *circuitbreaker.Breaker
	if p.breakers != nil {
		cb = p.breakers.Host(url.Host())
		if !cb.Allow() {
			span.SetStatus(codes.Error, "circuit open")
			return FetchedImage{}, errors.New(errors.CodeUpstreamFetchFailed, "upstream host temporarily suspended").
				WithDetail("host", url.Host())
		}
	}

	fetched, err := p.fetcher.Fetch(ctx, url)
	if cb != nil {
		cb.Observe(err)
	}
	if err != nil {
		span.SetStatus(codes.Error, "fetch failed")
		return FetchedImage{}, coerce(err)
	}

	span.SetAttributes(attribute.Int64("imageproxy.bytes", fetched.ByteLength))
	if p.metrics != nil {
		p.metrics.ProxyFetchedBytes.Observe(float64(fetched.ByteLength))
	}
	return fetched, nil
}

func (p *Proxy) stageTranscode(ctx context.Context, fetched FetchedImage, req Request) (ProcessedImage, error) {
	_, span := p.tracer.Start(ctx, "imageproxy.transcode")
	defer span.End()
	defer p.observeStage("transcode", time.Now())

	processed, err := Transcode(fetched.Bytes, TranscodeOptions{
		Format:          req.Format,
		Width:           req.Width,
		Height:          req.Height,
		Fit:             req.Fit,
		MaxSourcePixels: p.maxSourcePixels,
	})
	if err != nil {
		span.SetStatus(codes.Error, "transcode failed")
		return ProcessedImage{}, coerce(err)
	}

	if p.metrics != nil {
		p.metrics.ProxyOutputBytes.Observe(float64(len(processed.Data)))
	}
	return processed, nil
}

func (p *Proxy) observeStage(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ProxyStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (p *Proxy) fail(span trace.Span, err error) error {
	span.SetStatus(codes.Error, string(errors.CodeOf(err)))

	p.logger.Warn("image proxy request failed",
		"code", string(errors.CodeOf(err)),
		"error", err,
	)
	return err
}

// coerce guarantees every stage error carries a taxonomy code. Stage
// implementations already return typed errors; anything else is a bug
// surfaced as INTERNAL rather than leaked raw.
func coerce(err error) error {
	var guardErr *errors.Error
	if errors.As(err, &guardErr) {
		return err
	}
	return errors.New(errors.CodeInternal, "image proxy failure").WithCause(err)
}
