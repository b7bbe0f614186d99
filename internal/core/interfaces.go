package core

import (
	"context"
	"io"
	"net/textproto"
)

// Request represents an incoming request
type Request interface {
	ID() string
	Method() string
	Path() string
	URL() string
	Query() map[string][]string
	RemoteAddr() string
	Headers() map[string][]string
	Context() context.Context
}

// Response represents an outgoing response
type Response interface {
	StatusCode() int
	Headers() map[string][]string
	Body() io.ReadCloser
}

// Handler processes requests
type Handler func(context.Context, Request) (Response, error)

// Middleware wraps handlers
type Middleware func(Handler) Handler

// Header returns the first value of a header. Lookup is case-insensitive:
// keys are canonicalized the way http.Header stores them.
func Header(req Request, name string) string {
	values := req.Headers()[textproto.CanonicalMIMEHeaderKey(name)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// QueryParam returns the first value of a query parameter, or "".
func QueryParam(req Request, name string) string {
	values := req.Query()[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
