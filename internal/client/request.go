package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/anggasct/ndstream/internal/reassembler"
	"github.com/anggasct/ndstream/middleware"
)

// Request is a prepared HTTP request
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Query   url.Values
	Body    interface{}
	Client  HTTPClient
}

// HTTPClient defines what a Request needs from its client
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
	GetMiddlewares() []middleware.Middleware
	Logger() *zerolog.Logger
}

// WithHeader sets a header for this request
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers.Set(key, value)
	return r
}

// WithHeaders sets multiple headers for this request
func (r *Request) WithHeaders(headers map[string]string) *Request {
	for k, v := range headers {
		r.Headers.Set(k, v)
	}
	return r
}

// WithQuery adds a query parameter to the request
func (r *Request) WithQuery(key, value string) *Request {
	r.Query.Add(key, value)
	return r
}

// WithBody sets the request body. Readers are streamed as-is, strings and
// byte slices are sent verbatim, anything else is encoded as JSON.
func (r *Request) WithBody(body interface{}) *Request {
	r.Body = body
	return r
}

func (r *Request) bodyReader() (io.Reader, error) {
	switch b := r.Body.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return bytes.NewReader([]byte(b)), nil
	default:
		jsonBody, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		if r.Headers.Get("Content-Type") == "" {
			r.Headers.Set("Content-Type", "application/json")
		}
		return bytes.NewReader(jsonBody), nil
	}
}

// Do executes the request and returns the response with its body unread
func (r *Request) Do(ctx context.Context) (*Response, error) {
	client := r.Client
	parsedURL, err := url.Parse(r.URL)
	if err != nil {
		return nil, err
	}

	query := parsedURL.Query()
	for k, values := range r.Query {
		for _, v := range values {
			query.Add(k, v)
		}
	}
	parsedURL.RawQuery = query.Encode()

	body, err := r.bodyReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, parsedURL.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Headers

	handler := middleware.Chain(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return client.Do(req)
	}, client.GetMiddlewares()...)

	resp, err := handler(ctx, req)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	return &Response{Response: resp, logger: client.Logger()}, nil
}

// StreamLines executes the request and delivers the body line by line
func (r *Request) StreamLines(ctx context.Context, consumer reassembler.LineConsumer, opts ...StreamOption) (Summary, error) {
	resp, err := r.Do(ctx)
	if err != nil {
		return Summary{}, err
	}
	return resp.StreamLines(consumer, opts...)
}
