package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// StartHTTPServerSpan starts a new HTTP server span, continuing a trace
// propagated by the caller when present.
func (t *Telemetry) StartHTTPServerSpan(r *http.Request) (context.Context, trace.Span) {
	ctx := r.Context()

	ctx = t.propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))

	ctx, span := t.tracer.Start(ctx,
		fmt.Sprintf("%s %s", r.Method, r.URL.Path),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPMethod(r.Method),
			semconv.HTTPTarget(r.RequestURI),
			semconv.HTTPRoute(r.URL.Path),
			semconv.NetHostName(r.Host),
			attribute.String("net.peer.addr", r.RemoteAddr),
			semconv.HTTPUserAgent(r.UserAgent()),
		),
	)

	return ctx, span
}

// EndHTTPServerSpan ends an HTTP server span with status
func EndHTTPServerSpan(span trace.Span, statusCode int) {
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(semconv.HTTPStatusCode(statusCode))

	if statusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", statusCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
