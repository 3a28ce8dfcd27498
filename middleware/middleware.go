// Package middleware defines the request middleware chain used by the client
package middleware

import (
	"context"
	"net/http"
)

// Handler sends a request and returns its response. The response body is left
// open so it can be streamed.
type Handler func(ctx context.Context, req *http.Request) (*http.Response, error)

// Middleware wraps a Handler
type Middleware interface {
	Handle(next Handler) Handler
}

// MiddlewareFunc lets a plain function act as Middleware
type MiddlewareFunc func(next Handler) Handler

// Handle implements Middleware
func (f MiddlewareFunc) Handle(next Handler) Handler {
	return f(next)
}

// Chain wraps base with middlewares. The first middleware is the outermost:
// it sees the request first and the response last.
func Chain(base Handler, middlewares ...Middleware) Handler {
	handler := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] == nil {
			continue
		}
		handler = middlewares[i].Handle(handler)
	}
	return handler
}
