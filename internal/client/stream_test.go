package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ilog "github.com/anggasct/ndstream/internal/logger"
	"github.com/anggasct/ndstream/internal/mockserver"
	"github.com/anggasct/ndstream/internal/reassembler"
	"github.com/anggasct/ndstream/middleware/headers"
	mwlogger "github.com/anggasct/ndstream/middleware/logger"
)

type call struct {
	line string
	last bool
}

type recorder struct {
	calls     []call
	completed bool
}

func (r *recorder) Accept(line string, isLast bool) error {
	r.calls = append(r.calls, call{line, isLast})
	return nil
}

func (r *recorder) Complete(int) { r.completed = true }

func (r *recorder) lines() []string {
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.line)
	}
	return out
}

func newMockServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mockserver.New(mockserver.Config{
		Records:   4,
		ChunkSize: 7,
		Logger:    ilog.Nop(),
	}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server) *Client {
	return New().WithBaseURL(srv.URL).WithLogger(ilog.Nop())
}

func recordLines(n int) []string {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf(`{"id":%d,"content":"record %d"}`, i, i))
	}
	return out
}

func TestGetLinesAcrossChunks(t *testing.T) {
	srv := newMockServer(t)

	for _, query := range []string{
		"?records=5&chunk=1",
		"?records=5&chunk=7&blank=true",
		"?records=5&chunk=64&trailing=false",
		"?records=5&chunk=4096",
	} {
		t.Run(query, func(t *testing.T) {
			rec := &recorder{}
			summary, err := newClient(srv).GetLines(context.Background(), "/ndjson"+query, nil, rec)
			require.NoError(t, err)

			assert.Equal(t, recordLines(5), rec.lines())
			for i, c := range rec.calls {
				assert.Equal(t, i == len(rec.calls)-1, c.last, "line %d", i)
			}
			assert.True(t, rec.completed)
			assert.Equal(t, 5, summary.Lines)
			assert.Zero(t, summary.ConsumerErrors)
			assert.Positive(t, summary.Fragments)
		})
	}
}

func TestGetLinesEmptyStream(t *testing.T) {
	srv := newMockServer(t)

	rec := &recorder{}
	summary, err := newClient(srv).GetLines(context.Background(), "/ndjson?records=0", nil, rec)
	require.NoError(t, err)
	assert.Empty(t, rec.calls)
	assert.True(t, rec.completed)
	assert.Zero(t, summary.Lines)
}

func TestPostLinesEcho(t *testing.T) {
	srv := newMockServer(t)
	body := "{\"a\":1}\n\n{\"b\":2}\n{\"c\":3}"

	rec := &recorder{}
	_, err := newClient(srv).PostLines(context.Background(), "/echo?chunk=3",
		map[string]string{"Content-Type": headers.NDJSONMediaType}, body, rec)
	require.NoError(t, err)
	assert.Equal(t, []call{{`{"a":1}`, false}, {`{"b":2}`, false}, {`{"c":3}`, true}}, rec.calls)
}

func TestTransportFailureDropsBufferedLines(t *testing.T) {
	srv := newMockServer(t)

	var buf bytes.Buffer
	log := zerolog.New(&buf)

	rec := &recorder{}
	_, err := newClient(srv).GetLines(context.Background(), "/abort?records=3&chunk=5", nil, rec,
		WithStreamLogger(&log))
	require.Error(t, err)
	assert.ErrorIs(t, err, reassembler.ErrTransport)

	assert.False(t, rec.completed)
	for _, c := range rec.calls {
		assert.False(t, c.last)
		assert.NotContains(t, c.line, "partial")
	}
	assert.LessOrEqual(t, len(rec.calls), 3)
	assert.Equal(t, 1, strings.Count(buf.String(), "stream read error"))
}

func TestStatusError(t *testing.T) {
	srv := newMockServer(t)

	rec := &recorder{}
	_, err := newClient(srv).GetLines(context.Background(), "/status/503", nil, rec)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Empty(t, rec.calls)
}

func TestContentTypeCheck(t *testing.T) {
	srv := newMockServer(t)
	c := newClient(srv)

	_, err := c.GetLines(context.Background(), "/ndjson", nil, &recorder{}, WithContentType("text/csv"))
	assert.Error(t, err)

	_, err = c.GetLines(context.Background(), "/ndjson", nil, &recorder{}, WithContentType("application/x-ndjson"))
	assert.NoError(t, err)
}

func TestConsumerErrorsAreLoggedPerLine(t *testing.T) {
	srv := newMockServer(t)

	var buf bytes.Buffer
	log := zerolog.New(&buf)

	var seen []string
	consumer := reassembler.LineConsumerFunc(func(line string, isLast bool) error {
		seen = append(seen, line)
		if strings.HasPrefix(line, "{not") {
			return errors.New("invalid json")
		}
		return nil
	})

	summary, err := newClient(srv).GetLines(context.Background(), "/ndjson?records=4&bad=1&chunk=3", nil, consumer,
		WithStreamLogger(&log))
	require.NoError(t, err)
	assert.Len(t, seen, 4)
	assert.Equal(t, 1, summary.ConsumerErrors)
	assert.Equal(t, 1, strings.Count(buf.String(), "line rejected by consumer"))
	assert.Contains(t, buf.String(), "{not json")
}

func TestMultiByteRunesSplitAcrossWrites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, part := range []string{"{\"s\":\"h\xc3", "\xa9llo\"}\n{\"s\":\"\xe2\x82", "\xac\"}"} {
			_, _ = w.Write([]byte(part))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	_, err := newClient(srv).GetLines(context.Background(), "/", nil, rec, WithBufferSize(2))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"s":"héllo"}`, `{"s":"€"}`}, rec.lines())
}

func TestCharsetFromContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson; charset=iso-8859-1")
		_, _ = w.Write([]byte("{\"s\":\"caf\xe9\"}\n"))
	}))
	defer srv.Close()

	rec := &recorder{}
	_, err := newClient(srv).GetLines(context.Background(), "/", nil, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"s":"café"}`}, rec.lines())

	_, err = newClient(srv).GetLines(context.Background(), "/", nil, &recorder{}, WithCharset("klingon"))
	assert.ErrorContains(t, err, "unsupported charset")
}

func TestCustomDelimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("a|b||c"))
	}))
	defer srv.Close()

	rec := &recorder{}
	_, err := newClient(srv).GetLines(context.Background(), "/", nil, rec, WithDelimiter("|"))
	require.NoError(t, err)
	assert.Equal(t, []call{{"a", false}, {"b", false}, {"c", true}}, rec.calls)
}

func TestMiddlewareAndHeaders(t *testing.T) {
	var gotAccept, gotTenant, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotTenant = r.Header.Get("X-Tenant")
		gotRequestID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte("{}\n"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	c := New().WithBaseURL(srv.URL).
		WithLogger(&log).
		WithMiddleware(headers.NDJSON()).
		WithMiddleware(mwlogger.New(&mwlogger.Config{
			Logger:             &log,
			RequestIDGenerator: func() string { return "rid-1" },
			PropagateRequestID: true,
		}))

	rec := &recorder{}
	_, err := c.GetLines(context.Background(), "/", map[string]string{"X-Tenant": "acme"}, rec)
	require.NoError(t, err)

	assert.Equal(t, headers.NDJSONMediaType, gotAccept)
	assert.Equal(t, "acme", gotTenant)
	assert.Equal(t, "rid-1", gotRequestID)
	assert.Contains(t, buf.String(), "stream completed")
	assert.Contains(t, buf.String(), `"request_id":"rid-1"`)
}

func TestNilBody(t *testing.T) {
	_, err := StreamLines(&Response{Response: &http.Response{StatusCode: http.StatusOK}}, &recorder{})
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))

	long := strings.Repeat("é", linePreviewMax)
	p := preview(long)
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.LessOrEqual(t, len(p), linePreviewMax+3)
	assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(p, "...")))
}

func TestStreamOptions(t *testing.T) {
	opts := defaultStreamOptions()
	assert.Equal(t, 4096, opts.buffSize)
	assert.Equal(t, "\n", opts.delimiter)
	assert.Empty(t, opts.contentType)

	WithBufferSize(8192)(opts)
	WithDelimiter("\r\n")(opts)
	WithContentType("application/x-ndjson")(opts)
	WithCharset("utf-8")(opts)
	assert.Equal(t, 8192, opts.buffSize)
	assert.Equal(t, "\r\n", opts.delimiter)
	assert.Equal(t, "application/x-ndjson", opts.contentType)
	assert.Equal(t, "utf-8", opts.charset)
}
