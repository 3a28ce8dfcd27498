package client

import (
	"context"
	"net/http"

	"github.com/anggasct/ndstream/internal/reassembler"
)

// GET performs a GET request
func (c *Client) GET(ctx context.Context, path string) (*Response, error) {
	return c.NewRequest(http.MethodGet, path).Do(ctx)
}

// POST performs a POST request
func (c *Client) POST(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.NewRequest(http.MethodPost, path).WithBody(body).Do(ctx)
}

// GetLines issues a GET with the given headers and streams the body lines to consumer
func (c *Client) GetLines(ctx context.Context, path string, headers map[string]string, consumer reassembler.LineConsumer, opts ...StreamOption) (Summary, error) {
	return c.NewRequest(http.MethodGet, path).
		WithHeaders(headers).
		StreamLines(ctx, consumer, opts...)
}

// PostLines issues a POST with the given headers and body and streams the
// response lines to consumer
func (c *Client) PostLines(ctx context.Context, path string, headers map[string]string, body interface{}, consumer reassembler.LineConsumer, opts ...StreamOption) (Summary, error) {
	return c.NewRequest(http.MethodPost, path).
		WithHeaders(headers).
		WithBody(body).
		StreamLines(ctx, consumer, opts...)
}
