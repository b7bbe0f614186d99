package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"imgguard/internal/core"
	guarderrors "imgguard/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest() core.Request {
	return core.NewRequest("test-request-id", "GET", "/test", "http://example.com/test", nil, "127.0.0.1:12345", nil, context.Background())
}

func TestMiddleware_RecoversPanic(t *testing.T) {
	middleware := Middleware(Config{StackTrace: false}, testLogger())

	wrapped := middleware(func(ctx context.Context, req core.Request) (core.Response, error) {
		panic("test panic")
	})

	resp, err := wrapped(context.Background(), testRequest())

	if err == nil {
		t.Fatal("expected error from panic recovery")
	}

	var guardErr *guarderrors.Error
	if !errors.As(err, &guardErr) {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if guardErr.Code != guarderrors.CodeInternal {
		t.Errorf("code = %s, want INTERNAL", guardErr.Code)
	}
	if guardErr.Details["panic"] != "test panic" {
		t.Errorf("panic detail = %v, want test panic", guardErr.Details["panic"])
	}

	if resp != nil {
		t.Error("expected nil response after panic")
	}
}

func TestMiddleware_PassesThroughNormalFlow(t *testing.T) {
	middleware := Default(testLogger())

	wrapped := middleware(func(ctx context.Context, req core.Request) (core.Response, error) {
		return core.NewResponse(204, nil), nil
	})

	resp, err := wrapped(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != 204 {
		t.Errorf("status = %d, want 204", resp.StatusCode())
	}
}

func TestMiddleware_CallsPanicHandler(t *testing.T) {
	var captured interface{}

	middleware := Middleware(Config{
		PanicHandler: func(ctx context.Context, recovered interface{}, stack []byte) {
			captured = recovered
		},
	}, testLogger())

	wrapped := middleware(func(ctx context.Context, req core.Request) (core.Response, error) {
		panic("boom")
	})

	wrapped(context.Background(), testRequest())

	if captured != "boom" {
		t.Errorf("captured = %v, want boom", captured)
	}
}

func TestMiddleware_PassesThroughHandlerErrors(t *testing.T) {
	middleware := Default(testLogger())

	want := guarderrors.New(guarderrors.CodeBlocked, "url rejected")
	wrapped := middleware(func(ctx context.Context, req core.Request) (core.Response, error) {
		return nil, want
	})

	_, err := wrapped(context.Background(), testRequest())
	if !errors.Is(err, want) {
		t.Errorf("expected handler error to pass through unchanged, got %v", err)
	}
}
