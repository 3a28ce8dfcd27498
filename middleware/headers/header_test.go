package headers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, m *Middleware, req *http.Request) http.Header {
	t.Helper()
	var got http.Header
	h := m.Handle(func(ctx context.Context, r *http.Request) (*http.Response, error) {
		got = r.Header.Clone()
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	_, err := h(context.Background(), req)
	require.NoError(t, err)
	return got
}

func TestStaticDoesNotOverwrite(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("X-Tenant", "request")

	got := capture(t, Static(map[string]string{"X-Tenant": "client", "X-App": "ndstream"}), req)
	assert.Equal(t, "request", got.Get("X-Tenant"))
	assert.Equal(t, "ndstream", got.Get("X-App"))
}

func TestOverwrite(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("X-Tenant", "request")

	got := capture(t, New(&Config{Headers: map[string]string{"X-Tenant": "client"}, Overwrite: true}), req)
	assert.Equal(t, "client", got.Get("X-Tenant"))
}

func TestNDJSON(t *testing.T) {
	get, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	got := capture(t, NDJSON(), get)
	assert.Equal(t, NDJSONMediaType, got.Get("Accept"))
	assert.Empty(t, got.Get("Content-Type"))

	post, _ := http.NewRequest(http.MethodPost, "http://example.com", strings.NewReader("{}\n"))
	got = capture(t, NDJSON(), post)
	assert.Equal(t, NDJSONMediaType, got.Get("Content-Type"))
}

func TestNilConfig(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	got := capture(t, New(nil), req)
	assert.Empty(t, got)
}
