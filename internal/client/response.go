package client

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/anggasct/ndstream/internal/reassembler"
)

// Response wraps the standard http.Response with streaming helpers
type Response struct {
	*http.Response
	logger *zerolog.Logger
}

// StatusError is returned when a stream is requested from a non-2xx response
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status: %s", e.Status)
}

// Close closes the response body
func (r *Response) Close() error {
	return r.Body.Close()
}

// Consume reads and discards the response body
func (r *Response) Consume() error {
	defer r.Body.Close()
	_, err := io.Copy(io.Discard, r.Body)
	return err
}

// IsSuccess returns true if the status code is between 200 and 299
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// IsClientError returns true if the status code is 4xx
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode <= 499
}

// IsServerError returns true if the status code is 5xx
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode <= 599
}

// StreamLines delivers the body to consumer one line at a time, flagging the
// last line of the stream. The body is closed when it returns.
func (r *Response) StreamLines(consumer reassembler.LineConsumer, opts ...StreamOption) (Summary, error) {
	return StreamLines(r, consumer, opts...)
}
