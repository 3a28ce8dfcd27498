// Package headers adds static and conditional headers to outgoing requests
package headers

import (
	"context"
	"net/http"

	"github.com/anggasct/ndstream/middleware"
)

// NDJSONMediaType is the media type advertised for line-delimited JSON
const NDJSONMediaType = "application/x-ndjson"

// Config configures the headers middleware
type Config struct {
	// Headers are added to every request
	Headers map[string]string
	// Conditional headers are added when their condition matches
	Conditional []Conditional
	// Overwrite replaces headers already present on the request
	Overwrite bool
}

// Conditional is a header added only when Condition returns true
type Conditional struct {
	Name      string
	Value     string
	Condition func(*http.Request) bool
}

// Middleware sets headers before the request is sent
type Middleware struct {
	config Config
}

// New creates a headers middleware
func New(config *Config) *Middleware {
	m := &Middleware{}
	if config != nil {
		m.config = *config
	}
	return m
}

// Static creates a middleware adding fixed headers that never overwrite
// request-level values
func Static(headers map[string]string) *Middleware {
	return New(&Config{Headers: headers})
}

// NDJSON advertises line-delimited JSON in Accept, and in Content-Type for
// requests that carry a body
func NDJSON() *Middleware {
	return New(&Config{
		Headers: map[string]string{"Accept": NDJSONMediaType},
		Conditional: []Conditional{{
			Name:  "Content-Type",
			Value: NDJSONMediaType,
			Condition: func(r *http.Request) bool {
				return r.Body != nil && r.Body != http.NoBody
			},
		}},
	})
}

// Handle implements middleware.Middleware
func (m *Middleware) Handle(next middleware.Handler) middleware.Handler {
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		for name, value := range m.config.Headers {
			m.set(req, name, value)
		}
		for _, c := range m.config.Conditional {
			if c.Condition != nil && c.Condition(req) {
				m.set(req, c.Name, c.Value)
			}
		}
		return next(ctx, req)
	}
}

func (m *Middleware) set(req *http.Request, name, value string) {
	if m.config.Overwrite || req.Header.Get(name) == "" {
		req.Header.Set(name, value)
	}
}
