package metrics

import (
	"context"
	"strconv"
	"time"

	"imgguard/internal/core"
	"imgguard/pkg/errors"
	"imgguard/pkg/metrics"
)

// Middleware creates metrics collection middleware
func Middleware(m *metrics.Metrics) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			path := metrics.NormalizePath(req.Path())
			method := req.Method()

			m.ActiveRequests.WithLabelValues(method, path).Inc()
			defer m.ActiveRequests.WithLabelValues(method, path).Dec()

			start := time.Now()

			resp, err := next(ctx, req)

			status := statusLabel(resp, err)
			m.RequestsTotal.WithLabelValues(method, path, status).Inc()
			m.RequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())

			return resp, err
		}
	}
}

// statusLabel derives the status code label from the outcome. Errors are
// labeled with the status their code maps to at the HTTP boundary.
func statusLabel(resp core.Response, err error) string {
	if err != nil {
		var guardErr *errors.Error
		if errors.As(err, &guardErr) {
			return strconv.Itoa(guardErr.HTTPStatusCode())
		}
		return "500"
	}
	if resp != nil {
		return strconv.Itoa(resp.StatusCode())
	}
	return "200"
}
