package logger

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, level zerolog.Level) *zerolog.Logger {
	l := zerolog.New(buf).Level(level)
	return &l
}

func okHandler(status int) func(ctx context.Context, req *http.Request) (*http.Response, error) {
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: status, Header: http.Header{"Set-Cookie": {"secret"}}}, nil
	}
}

func TestLogsRequestAndResponse(t *testing.T) {
	var buf bytes.Buffer
	m := New(&Config{
		Logger:             newTestLogger(&buf, zerolog.InfoLevel),
		RequestIDGenerator: func() string { return "fixed-id" },
		PropagateRequestID: true,
	})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/stream", nil)
	resp, err := m.Handle(okHandler(http.StatusOK))(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := buf.String()
	assert.Contains(t, out, `"message":"outgoing request"`)
	assert.Contains(t, out, `"message":"response headers received"`)
	assert.Contains(t, out, `"request_id":"fixed-id"`)
	assert.Contains(t, out, `"status":200`)
	assert.Equal(t, "fixed-id", req.Header.Get("X-Request-ID"))
}

func TestKeepsExistingRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := New(&Config{Logger: newTestLogger(&buf, zerolog.InfoLevel), PropagateRequestID: true})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	_, err := m.Handle(okHandler(http.StatusOK))(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"request_id":"caller-id"`)
}

func TestPropagationSwitch(t *testing.T) {
	for _, tt := range []struct {
		name   string
		config *Config
		want   bool
	}{
		{"nil config uses defaults", nil, true},
		{"explicit config taken as given", &Config{Logger: newTestLogger(&bytes.Buffer{}, zerolog.InfoLevel)}, false},
		{"explicit propagation", &Config{Logger: newTestLogger(&bytes.Buffer{}, zerolog.InfoLevel), PropagateRequestID: true}, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
			_, err := New(tt.config).Handle(okHandler(http.StatusOK))(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Header.Get("X-Request-ID") != "")
		})
	}
}

func TestErrorStatusLoggedAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	m := New(&Config{Logger: newTestLogger(&buf, zerolog.ErrorLevel)})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/missing", nil)
	_, err := m.Handle(okHandler(http.StatusNotFound))(context.Background(), req)
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "outgoing request")
	assert.Contains(t, out, `"status":404`)
	assert.Contains(t, out, `"level":"error"`)
}

func TestTransportErrorLogged(t *testing.T) {
	var buf bytes.Buffer
	m := New(&Config{Logger: newTestLogger(&buf, zerolog.InfoLevel)})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	_, err := m.Handle(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: refused")
	})(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "request failed")
	assert.Contains(t, buf.String(), "dial tcp: refused")
}

func TestHeadersRedacted(t *testing.T) {
	var buf bytes.Buffer
	m := New(&Config{
		Logger:           newTestLogger(&buf, zerolog.DebugLevel),
		LogHeaders:       true,
		SensitiveHeaders: []string{"Authorization", "Set-Cookie"},
	})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Accept", "application/x-ndjson")
	_, err := m.Handle(okHandler(http.StatusOK))(context.Background(), req)
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "Bearer abc")
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "application/x-ndjson")
}

func TestSkipPaths(t *testing.T) {
	var buf bytes.Buffer
	m := New(&Config{Logger: newTestLogger(&buf, zerolog.InfoLevel), SkipPaths: []string{"/healthz"}})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com/healthz", nil)
	_, err := m.Handle(okHandler(http.StatusOK))(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, buf.Len())
	assert.Empty(t, req.Header.Get("X-Request-ID"))
}
