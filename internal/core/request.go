package core

import (
	"context"
)

// request is a simple Request implementation
type request struct {
	id         string
	method     string
	path       string
	url        string
	query      map[string][]string
	remoteAddr string
	headers    map[string][]string
	ctx        context.Context
}

// NewRequest creates a new request
func NewRequest(id, method, path, url string, query map[string][]string, remoteAddr string, headers map[string][]string, ctx context.Context) Request {
	return &request{
		id:         id,
		method:     method,
		path:       path,
		url:        url,
		query:      query,
		remoteAddr: remoteAddr,
		headers:    headers,
		ctx:        ctx,
	}
}

func (r *request) ID() string                   { return r.id }
func (r *request) Method() string               { return r.method }
func (r *request) Path() string                 { return r.path }
func (r *request) URL() string                  { return r.url }
func (r *request) Query() map[string][]string   { return r.query }
func (r *request) RemoteAddr() string           { return r.remoteAddr }
func (r *request) Headers() map[string][]string { return r.headers }
func (r *request) Context() context.Context     { return r.ctx }
