// Package client implements the internal HTTP request/response handling
package client

import (
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/anggasct/ndstream/middleware"
)

// Client is a wrapper around http.Client with additional functionality
type Client struct {
	client      *http.Client
	baseURL     string
	headers     http.Header
	middlewares []middleware.Middleware
	logger      *zerolog.Logger
}

// New creates a new http Client
func New() *Client {
	c := &Client{
		client:      &http.Client{},
		headers:     make(http.Header),
		middlewares: make([]middleware.Middleware, 0),
	}
	c.headers.Set("User-Agent", "ndstream")
	return c
}

// Do implements HTTPClient
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// GetMiddlewares implements HTTPClient
func (c *Client) GetMiddlewares() []middleware.Middleware {
	return c.middlewares
}

// Logger implements HTTPClient. Nil means the package default.
func (c *Client) Logger() *zerolog.Logger {
	return c.logger
}

// WithBaseURL sets the base URL for all requests
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// WithHeader sets a header for all requests
func (c *Client) WithHeader(key, value string) *Client {
	c.headers.Set(key, value)
	return c
}

// WithHeaders sets multiple headers for all requests
func (c *Client) WithHeaders(headers map[string]string) *Client {
	for k, v := range headers {
		c.headers.Set(k, v)
	}
	return c
}

// WithTimeout sets the timeout for all requests. The timeout covers reading
// the whole body, so long-lived streams usually want none.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.client.Timeout = timeout
	return c
}

// WithMiddleware adds a middleware to the client's middleware chain.
// Middlewares are applied in the order they are added.
func (c *Client) WithMiddleware(m middleware.Middleware) *Client {
	c.middlewares = append(c.middlewares, m)
	return c
}

// WithLogger sets the logger used for stream events
func (c *Client) WithLogger(l *zerolog.Logger) *Client {
	c.logger = l
	return c
}

// WithHTTPClient replaces the underlying http.Client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.client = hc
	}
	return c
}

// WithConnectionPool configures the connection pool settings for the HTTP client
func (c *Client) WithConnectionPool(maxIdleConns, maxConnsPerHost, maxIdleConnsPerHost int, idleConnTimeout time.Duration) *Client {
	transport, ok := c.client.Transport.(*http.Transport)
	if !ok || transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
		c.client.Transport = transport
	}

	transport.MaxIdleConns = maxIdleConns
	transport.MaxConnsPerHost = maxConnsPerHost
	transport.MaxIdleConnsPerHost = maxIdleConnsPerHost
	transport.IdleConnTimeout = idleConnTimeout

	return c
}

// NewRequest creates a new request with the given method and path
func (c *Client) NewRequest(method, path string) *Request {
	reqURL := path
	if c.baseURL != "" {
		reqURL = c.baseURL + path
	}

	req := &Request{
		Method:  method,
		URL:     reqURL,
		Headers: c.headers.Clone(),
		Query:   make(url.Values),
		Client:  c,
	}
	return req
}
