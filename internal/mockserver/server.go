// Package mockserver serves newline-delimited JSON in deliberately awkward
// chunks, for exercising the client against real HTTP streaming.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	ilog "github.com/anggasct/ndstream/internal/logger"
)

// ContentType is sent on every stream response
const ContentType = "application/x-ndjson; charset=utf-8"

// Config configures the server defaults; each request may override them
// with query parameters.
type Config struct {
	Addr      string
	Records   int
	ChunkSize int
	Delay     time.Duration

	// CORSOrigins lets browser pages on these origins read the streams; none
	// disables CORS handling
	CORSOrigins []string
	Logger      *zerolog.Logger
}

// Record is one streamed JSON object
type Record struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// Server is a chi-routed NDJSON server
type Server struct {
	cfg    Config
	router chi.Router
	log    *zerolog.Logger
}

// New builds a server and its routes
func New(cfg Config) *Server {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 16
	}
	s := &Server{cfg: cfg, log: cfg.Logger}
	if s.log == nil {
		s.log = ilog.Named("mockserver")
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/ndjson", s.handleNDJSON)
	r.Post("/echo", s.handleEcho)
	r.Get("/abort", s.handleAbort)
	r.Get("/status/{code}", s.handleStatus)
	s.router = r
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("mock server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("served")
	})
}

// streamParams holds per-request overrides
type streamParams struct {
	records  int
	chunk    int
	delay    time.Duration
	trailing bool
	blank    bool
	bad      int
}

func (s *Server) params(r *http.Request) (streamParams, error) {
	p := streamParams{
		records:  s.cfg.Records,
		chunk:    s.cfg.ChunkSize,
		delay:    s.cfg.Delay,
		trailing: true,
		bad:      -1,
	}
	q := r.URL.Query()

	ints := map[string]*int{"records": &p.records, "chunk": &p.chunk, "bad": &p.bad}
	for name, dst := range ints {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return p, fmt.Errorf("invalid %s: %w", name, err)
			}
			*dst = n
		}
	}
	bools := map[string]*bool{"trailing": &p.trailing, "blank": &p.blank}
	for name, dst := range bools {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return p, fmt.Errorf("invalid %s: %w", name, err)
			}
			*dst = b
		}
	}
	if v := q.Get("delay"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return p, fmt.Errorf("invalid delay: %w", err)
		}
		p.delay = d
	}
	if p.chunk <= 0 || p.records < 0 {
		return p, errors.New("chunk must be positive and records non-negative")
	}
	return p, nil
}

// Payload renders n records as NDJSON. blank inserts empty and
// whitespace-only lines between records, bad replaces record bad (0-based)
// with a line that is not JSON, trailing controls the final line-break.
func Payload(n int, trailing, blank bool, bad int) []byte {
	var buf []byte
	for i := 0; i < n; i++ {
		if i == bad {
			buf = append(buf, "{not json"...)
		} else {
			line, _ := json.Marshal(Record{ID: i + 1, Content: fmt.Sprintf("record %d", i+1)})
			buf = append(buf, line...)
		}
		if i < n-1 || trailing {
			buf = append(buf, '\n')
		}
		if blank && i < n-1 {
			buf = append(buf, "\n  \n"...)
		}
	}
	return buf
}

func (s *Server) handleNDJSON(w http.ResponseWriter, r *http.Request) {
	p, err := s.params(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	writeChunks(r.Context(), w, Payload(p.records, p.trailing, p.blank, p.bad), p.chunk, p.delay)
}

// maxEchoBody caps the request body accepted by /echo
const maxEchoBody = 1 << 20

// handleEcho reads the whole request body, then streams it back in chunks of
// the configured size. HTTP/1 stops body reads once the response starts.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	p, err := s.params(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEchoBody))
	if err != nil {
		s.log.Warn().Err(err).Msg("echo read failed")
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		http.Error(w, "reading body: "+err.Error(), code)
		return
	}

	w.Header().Set("Content-Type", ContentType)
	writeChunks(r.Context(), w, body, p.chunk, p.delay)
}

// handleAbort sends part of a stream and then drops the connection
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	p, err := s.params(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", ContentType)

	payload := Payload(p.records, true, false, -1)
	writeChunks(r.Context(), w, append(payload, `{"id":"partial`...), p.chunk, p.delay)

	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	_ = conn.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil || code < 100 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"status ` + strconv.Itoa(code) + `"}` + "\n"))
}

func writeChunks(ctx context.Context, w http.ResponseWriter, payload []byte, size int, delay time.Duration) {
	flusher, _ := w.(http.Flusher)
	for len(payload) > 0 {
		n := min(size, len(payload))
		if _, err := w.Write(payload[:n]); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		payload = payload[n:]

		if delay > 0 && len(payload) > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}
