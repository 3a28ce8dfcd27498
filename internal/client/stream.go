package client

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	ilog "github.com/anggasct/ndstream/internal/logger"
	"github.com/anggasct/ndstream/internal/reassembler"
)

// linePreviewMax caps how much of a rejected line is logged
const linePreviewMax = 256

// StreamOption represents options for stream processing
type StreamOption func(*streamOptions)

type streamOptions struct {
	buffSize    int
	contentType string
	delimiter   string
	charset     string
	logger      *zerolog.Logger
}

// WithBufferSize sets the maximum size of a single read
func WithBufferSize(size int) StreamOption {
	return func(o *streamOptions) {
		o.buffSize = size
	}
}

// WithDelimiter sets the line-break sequence
func WithDelimiter(delimiter string) StreamOption {
	return func(o *streamOptions) {
		o.delimiter = delimiter
	}
}

// WithContentType sets the expected content type for the stream
func WithContentType(contentType string) StreamOption {
	return func(o *streamOptions) {
		o.contentType = contentType
	}
}

// WithCharset forces the body charset instead of reading it from Content-Type
func WithCharset(charset string) StreamOption {
	return func(o *streamOptions) {
		o.charset = charset
	}
}

// WithStreamLogger sets the logger for this stream only
func WithStreamLogger(l *zerolog.Logger) StreamOption {
	return func(o *streamOptions) {
		o.logger = l
	}
}

// defaultStreamOptions returns the default stream options
func defaultStreamOptions() *streamOptions {
	return &streamOptions{
		buffSize:  4096,
		delimiter: "\n",
	}
}

// Summary describes a finished stream
type Summary struct {
	Fragments      int
	Bytes          int64
	Lines          int
	ConsumerErrors int
	Duration       time.Duration
}

// resolveEncoding picks the body charset: the explicit option, then the
// Content-Type charset parameter, then UTF-8.
func resolveEncoding(charset, contentType string) (encoding.Encoding, error) {
	if charset == "" && contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			charset = params["charset"]
		}
	}
	if charset == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc, nil
}

// StreamLines reads r's body in fragments, reassembles lines and hands each
// one to consumer. Consumer errors are logged and counted; a read failure
// drops whatever was still buffered and is returned wrapping
// reassembler.ErrTransport.
func StreamLines(r *Response, consumer reassembler.LineConsumer, opts ...StreamOption) (Summary, error) {
	if r.Body == nil {
		return Summary{}, errors.New("response body is nil")
	}
	defer r.Body.Close()

	options := defaultStreamOptions()
	for _, opt := range opts {
		opt(options)
	}

	log := streamLogger(r, options)

	if !r.IsSuccess() {
		return Summary{}, &StatusError{StatusCode: r.StatusCode, Status: r.Status}
	}

	contentType := r.Header.Get("Content-Type")
	if options.contentType != "" && !strings.Contains(contentType, options.contentType) {
		return Summary{}, errors.New("unexpected content type: " + contentType)
	}

	enc, err := resolveEncoding(options.charset, contentType)
	if err != nil {
		return Summary{}, err
	}
	body := transform.NewReader(r.Body, enc.NewDecoder())

	ra := reassembler.New(consumer,
		reassembler.WithDelimiter(options.delimiter),
		reassembler.WithErrorHandler(func(line string, err error) {
			log.Warn().Err(err).Str("line", preview(line)).Msg("line rejected by consumer")
		}),
	)

	ctx := context.Background()
	if r.Request != nil {
		ctx = r.Request.Context()
	}

	start := time.Now()
	err = reassembler.Drain(ctx, reassembler.NewReaderSource(body, options.buffSize), ra)
	st := ra.Stats()
	summary := Summary{
		Fragments:      st.Fragments,
		Bytes:          st.Bytes,
		Lines:          st.Lines,
		ConsumerErrors: st.ConsumerErrors,
		Duration:       time.Since(start),
	}

	if err != nil {
		ev := log.Error().Err(err).Int("lines", summary.Lines)
		var abortErr *reassembler.AbortError
		if errors.As(err, &abortErr) {
			ev = ev.Int("dropped_lines", abortErr.Dropped.Lines).Int("dropped_bytes", abortErr.Dropped.Partial)
		}
		ev.Msg("stream read error")
		return summary, err
	}

	log.Debug().
		Int("lines", summary.Lines).
		Int("fragments", summary.Fragments).
		Int64("bytes", summary.Bytes).
		Int("consumer_errors", summary.ConsumerErrors).
		Dur("elapsed", summary.Duration).
		Msg("stream completed")
	return summary, nil
}

func streamLogger(r *Response, o *streamOptions) *zerolog.Logger {
	base := o.logger
	if base == nil {
		base = r.logger
	}
	if base == nil {
		base = ilog.Named("stream")
	}
	if r.Request == nil {
		return base
	}
	l := base.With().Str("url", r.Request.URL.String())
	if id := r.Request.Header.Get("X-Request-ID"); id != "" {
		l = l.Str("request_id", id)
	}
	ll := l.Logger()
	return &ll
}

// preview truncates s to at most linePreviewMax bytes on a rune boundary
func preview(s string) string {
	if len(s) <= linePreviewMax {
		return s
	}
	i := linePreviewMax
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "..."
}
