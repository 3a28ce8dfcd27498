// Package logger provides request logging middleware backed by zerolog.
//
// Bodies are never read: the response body of a stream belongs to the line
// reassembler, so only the request line, headers and response status are
// logged.
package logger

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	ilog "github.com/anggasct/ndstream/internal/logger"
	"github.com/anggasct/ndstream/middleware"
)

// Config holds the configuration for the logger middleware
type Config struct {
	// Logger receives the entries; the root logger when nil
	Logger *zerolog.Logger
	// RequestIDGenerator creates unique request identifiers
	RequestIDGenerator func() string
	// RequestIDHeader is the header used to propagate request IDs
	RequestIDHeader string
	// SensitiveHeaders are redacted when headers are logged
	SensitiveHeaders []string
	// SkipPaths are URL path prefixes that are not logged
	SkipPaths []string
	// LogHeaders adds redacted request and response headers at debug level
	LogHeaders bool
	// PropagateRequestID sets the request ID header on outgoing requests.
	// On by default, but a non-nil Config passed to New must set it.
	PropagateRequestID bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		RequestIDGenerator: uuid.NewString,
		RequestIDHeader:    "X-Request-ID",
		SensitiveHeaders:   []string{"Authorization", "Cookie", "X-Api-Key", "Proxy-Authorization"},
		SkipPaths:          []string{"/healthz", "/ready"},
		PropagateRequestID: true,
	}
}

// Middleware logs outgoing requests and their responses
type Middleware struct {
	config *Config
}

// New creates a new logger middleware. A nil config uses DefaultConfig.
// Otherwise zero-valued fields fall back to defaults, except the LogHeaders
// and PropagateRequestID switches which are taken as given.
func New(config *Config) *Middleware {
	cfg := DefaultConfig()
	if config != nil {
		cfg.Logger = config.Logger
		if config.RequestIDGenerator != nil {
			cfg.RequestIDGenerator = config.RequestIDGenerator
		}
		if config.RequestIDHeader != "" {
			cfg.RequestIDHeader = config.RequestIDHeader
		}
		if len(config.SensitiveHeaders) > 0 {
			cfg.SensitiveHeaders = config.SensitiveHeaders
		}
		if len(config.SkipPaths) > 0 {
			cfg.SkipPaths = config.SkipPaths
		}
		cfg.LogHeaders = config.LogHeaders
		cfg.PropagateRequestID = config.PropagateRequestID
	}
	return &Middleware{config: cfg}
}

func (m *Middleware) logger() *zerolog.Logger {
	if m.config.Logger != nil {
		return m.config.Logger
	}
	return ilog.Named("http")
}

// redactHeaders returns a flattened copy of headers with sensitive values redacted
func (m *Middleware) redactHeaders(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		value := strings.Join(values, ", ")
		for _, sensitive := range m.config.SensitiveHeaders {
			if strings.EqualFold(name, sensitive) {
				value = "[REDACTED]"
				break
			}
		}
		result[name] = value
	}
	return result
}

func (m *Middleware) shouldSkip(path string) bool {
	for _, p := range m.config.SkipPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Handle implements middleware.Middleware
func (m *Middleware) Handle(next middleware.Handler) middleware.Handler {
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		if m.shouldSkip(req.URL.Path) {
			return next(ctx, req)
		}

		requestID := req.Header.Get(m.config.RequestIDHeader)
		if requestID == "" {
			requestID = m.config.RequestIDGenerator()
			if m.config.PropagateRequestID {
				req.Header.Set(m.config.RequestIDHeader, requestID)
			}
		}
		ctx = ilog.WithRequest(ctx, requestID)
		log := ilog.C(ctx, m.logger())

		ev := log.Info().Str("method", req.Method).Str("url", req.URL.String())
		if m.config.LogHeaders && log.GetLevel() <= zerolog.DebugLevel {
			ev = ev.Interface("headers", m.redactHeaders(req.Header))
		}
		ev.Msg("outgoing request")

		start := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			log.Error().Err(err).
				Str("method", req.Method).
				Str("url", req.URL.String()).
				Dur("elapsed", elapsed).
				Msg("request failed")
		case resp != nil:
			ev := log.Info()
			if resp.StatusCode >= 400 {
				ev = log.Error()
			}
			ev = ev.Str("method", req.Method).
				Str("url", req.URL.String()).
				Int("status", resp.StatusCode).
				Dur("elapsed", elapsed)
			if m.config.LogHeaders && log.GetLevel() <= zerolog.DebugLevel {
				ev = ev.Interface("response_headers", m.redactHeaders(resp.Header))
			}
			ev.Msg("response headers received")
		}

		return resp, err
	}
}
