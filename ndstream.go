// Package ndstream streams newline-delimited JSON over HTTP and hands each
// complete line to a consumer as soon as it is known, flagging the last one.
package ndstream

import (
	"github.com/anggasct/ndstream/internal/client"
	"github.com/anggasct/ndstream/internal/reassembler"
	"github.com/anggasct/ndstream/middleware"
	"github.com/anggasct/ndstream/middleware/headers"
	"github.com/anggasct/ndstream/middleware/logger"
)

// Client is a wrapper around http.Client with line streaming helpers
type Client = client.Client

// Request is a prepared HTTP request
type Request = client.Request

// Response wraps the standard http.Response with additional utility methods
type Response = client.Response

// Summary describes a finished stream
type Summary = client.Summary

// StatusError is returned when a stream is requested from a non-2xx response
type StatusError = client.StatusError

// StreamOption represents options for stream processing
type StreamOption = client.StreamOption

// New creates a new Client
func New() *Client {
	return client.New()
}

// WithBufferSize sets the maximum size of a single read
var WithBufferSize = client.WithBufferSize

// WithDelimiter sets the line-break sequence
var WithDelimiter = client.WithDelimiter

// WithContentType sets the expected content type for the stream
var WithContentType = client.WithContentType

// WithCharset forces the body charset
var WithCharset = client.WithCharset

// WithStreamLogger sets the logger for a single stream
var WithStreamLogger = client.WithStreamLogger

// LineConsumer receives complete lines
type LineConsumer = reassembler.LineConsumer

// LineConsumerFunc adapts a function to LineConsumer
type LineConsumerFunc = reassembler.LineConsumerFunc

// Completer is implemented by consumers that want to know when a stream
// finished normally, including streams that carried no lines.
type Completer = reassembler.Completer

// Reassembler turns text fragments into lines
type Reassembler = reassembler.Reassembler

// ReassemblerOption configures a Reassembler
type ReassemblerOption = reassembler.Option

// AbortError reports a stream cut short by a read failure
type AbortError = reassembler.AbortError

var (
	// NewReassembler creates a Reassembler delivering to a consumer
	NewReassembler = reassembler.New

	// ErrTransport is matched by every stream read failure
	ErrTransport = reassembler.ErrTransport

	// ErrStreamEnded is returned for fragments fed after the terminal one
	ErrStreamEnded = reassembler.ErrStreamEnded

	// LineDelimiter sets the line-break sequence of a Reassembler
	LineDelimiter = reassembler.WithDelimiter

	// OnConsumerError observes lines a consumer rejected
	OnConsumerError = reassembler.WithErrorHandler

	// WithCompletionSignal toggles Completer notification
	WithCompletionSignal = reassembler.WithCompletionSignal
)

// Stats counts what a Reassembler has processed
type Stats = reassembler.Stats

// Dropped describes buffered data discarded on abort
type Dropped = reassembler.Dropped

// Middleware defines the interface for HTTP middleware
type Middleware = middleware.Middleware

// MiddlewareFunc is a function type for middleware that wraps an HTTP handler
type MiddlewareFunc = middleware.MiddlewareFunc

// HeadersConfig represents configuration for the headers middleware
type HeadersConfig = headers.Config

// LoggerConfig represents configuration for the logging middleware
type LoggerConfig = logger.Config

// NewHeadersMiddleware creates a new headers middleware
func NewHeadersMiddleware(config *HeadersConfig) middleware.Middleware {
	return headers.New(config)
}

// NDJSONHeaders negotiates newline-delimited JSON on every request
func NDJSONHeaders() middleware.Middleware {
	return headers.NDJSON()
}

// NewLoggerMiddleware creates a new logger middleware
func NewLoggerMiddleware(config *LoggerConfig) middleware.Middleware {
	return logger.New(config)
}
