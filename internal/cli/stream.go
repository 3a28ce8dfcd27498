package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/anggasct/ndstream/consumer"
	"github.com/anggasct/ndstream/internal/client"
	"github.com/anggasct/ndstream/internal/reassembler"
	"github.com/anggasct/ndstream/middleware/headers"
	mwlogger "github.com/anggasct/ndstream/middleware/logger"
)

type streamFlags struct {
	headers     []string
	bufferSize  int
	delimiter   string
	charset     string
	contentType string
	timeout     time.Duration
	jsonOnly    bool
	summary     bool
}

func (f *streamFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringArrayVarP(&f.headers, "header", "H", nil, `extra request header, "Name: value" (repeatable)`)
	fs.IntVar(&f.bufferSize, "buffer-size", 0, "maximum bytes per read")
	fs.StringVar(&f.delimiter, "delimiter", "", `line delimiter, Go escapes allowed (e.g. "\r\n")`)
	fs.StringVar(&f.charset, "charset", "", "body charset, overrides the Content-Type parameter")
	fs.StringVar(&f.contentType, "content-type", "", "fail unless the response Content-Type contains this")
	fs.DurationVar(&f.timeout, "timeout", 0, "overall request timeout, 0 for none")
	fs.BoolVar(&f.jsonOnly, "json", false, "print only lines that are valid JSON, exit 2 if any were not")
	fs.BoolVar(&f.summary, "summary", false, "print a stream summary to stderr")
}

func (a *app) getCmd() *cobra.Command {
	f := &streamFlags{}
	cmd := &cobra.Command{
		Use:   "get <url|path>",
		Short: "GET a URL and print each NDJSON line as it arrives",
		Long: "Relative paths are resolved against base_url from the config. " +
			"Lines are printed as soon as the next read confirms them.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, f, http.MethodGet, args[0], nil)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) postCmd() *cobra.Command {
	f := &streamFlags{}
	var data string
	cmd := &cobra.Command{
		Use:   "post <url|path>",
		Short: "POST a body and print each NDJSON line of the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readData(cmd, data)
			if err != nil {
				return err
			}
			return a.stream(cmd, f, http.MethodPost, args[0], body)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body; @file reads a file, @- reads stdin")
	return cmd
}

func readData(cmd *cobra.Command, data string) (io.Reader, error) {
	switch {
	case data == "":
		return nil, nil
	case data == "@-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return bytes.NewReader(b), nil
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
		return bytes.NewReader(b), nil
	default:
		return strings.NewReader(data), nil
	}
}

func parseHeaders(base map[string]string, raw []string) (map[string]string, error) {
	out := maps.Clone(base)
	if out == nil {
		out = map[string]string{}
	}
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", h)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (a *app) streamOptions(cmd *cobra.Command, f *streamFlags) ([]client.StreamOption, error) {
	cfg := a.cfg
	opts := []client.StreamOption{
		client.WithBufferSize(cfg.BufferSize),
		client.WithDelimiter(cfg.Delimiter),
		client.WithStreamLogger(a.log),
	}
	if cfg.Charset != "" {
		opts = append(opts, client.WithCharset(cfg.Charset))
	}
	if cfg.ContentType != "" {
		opts = append(opts, client.WithContentType(cfg.ContentType))
	}

	fs := cmd.Flags()
	if fs.Changed("buffer-size") {
		if f.bufferSize <= 0 {
			return nil, errors.New("--buffer-size must be positive")
		}
		opts = append(opts, client.WithBufferSize(f.bufferSize))
	}
	if fs.Changed("delimiter") {
		d, err := strconv.Unquote(`"` + f.delimiter + `"`)
		if err != nil || d == "" {
			return nil, fmt.Errorf("invalid --delimiter %q", f.delimiter)
		}
		opts = append(opts, client.WithDelimiter(d))
	}
	if fs.Changed("charset") {
		opts = append(opts, client.WithCharset(f.charset))
	}
	if fs.Changed("content-type") {
		opts = append(opts, client.WithContentType(f.contentType))
	}
	return opts, nil
}

func (a *app) stream(cmd *cobra.Command, f *streamFlags, method, target string, body io.Reader) error {
	hdrs, err := parseHeaders(a.cfg.Headers, f.headers)
	if err != nil {
		return err
	}
	opts, err := a.streamOptions(cmd, f)
	if err != nil {
		return err
	}

	c := client.New().
		WithLogger(a.log).
		WithMiddleware(headers.NDJSON()).
		WithMiddleware(mwlogger.New(&mwlogger.Config{Logger: a.log, PropagateRequestID: true}))
	if !isAbsoluteURL(target) {
		if a.cfg.BaseURL == "" {
			return fmt.Errorf("%q is not an absolute URL and no base_url is configured", target)
		}
		c.WithBaseURL(strings.TrimSuffix(a.cfg.BaseURL, "/"))
	}
	timeout := a.cfg.Timeout
	if cmd.Flags().Changed("timeout") {
		timeout = f.timeout
	}
	if timeout > 0 {
		c.WithTimeout(timeout)
	}

	// unbuffered so each line shows up as soon as it is confirmed
	out := cmd.OutOrStdout()
	var (
		lc      reassembler.LineConsumer
		decoder *consumer.JSON[json.RawMessage]
	)
	if f.jsonOnly {
		decoder = consumer.NewJSON(func(v json.RawMessage, _ bool) error {
			_, err := fmt.Fprintln(out, string(v))
			return err
		})
		lc = decoder
	} else {
		lc = reassembler.LineConsumerFunc(func(line string, _ bool) error {
			_, err := fmt.Fprintln(out, line)
			return err
		})
	}

	req := c.NewRequest(method, target).WithHeaders(hdrs)
	if body != nil {
		req.WithBody(body)
	}
	summary, err := req.StreamLines(cmd.Context(), lc, opts...)
	if f.summary {
		printSummary(cmd.ErrOrStderr(), summary)
	}
	if err != nil {
		return err
	}
	if decoder != nil && decoder.Failed() > 0 {
		return &exitError{code: 2, err: fmt.Errorf("%d of %d lines were not valid JSON", decoder.Failed(), summary.Lines)}
	}
	return nil
}

func printSummary(w io.Writer, s client.Summary) {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleColoredBlueWhiteOnBlack)
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Fragments", "Bytes", "Lines", "Consumer errors", "Duration"})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{s.Fragments, s.Bytes, s.Lines, s.ConsumerErrors, s.Duration.Round(time.Millisecond)})
	tw.Render()
}
