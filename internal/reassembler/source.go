package reassembler

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrTransport marks a stream that was cut short by its source
var ErrTransport = errors.New("reassembler: transport failed")

// Fragment is one read from a Source
type Fragment struct {
	Text string
	// Done is set on the final fragment of the stream
	Done bool
}

// Source yields fragments until one is marked Done. An error at any point
// aborts the stream.
type Source interface {
	Next(ctx context.Context) (Fragment, error)
}

// ReaderSource reads fragments from an io.Reader
type ReaderSource struct {
	r   io.Reader
	buf []byte
}

// NewReaderSource returns a Source reading up to size bytes per fragment
func NewReaderSource(r io.Reader, size int) *ReaderSource {
	if size <= 0 {
		size = 4096
	}
	return &ReaderSource{r: r, buf: make([]byte, size)}
}

// Next implements Source
func (s *ReaderSource) Next(ctx context.Context) (Fragment, error) {
	if err := ctx.Err(); err != nil {
		return Fragment{}, err
	}

	n, err := s.r.Read(s.buf)
	text := string(s.buf[:n])

	if err == nil {
		return Fragment{Text: text}, nil
	}
	if errors.Is(err, io.EOF) {
		return Fragment{Text: text, Done: true}, nil
	}
	return Fragment{}, err
}

// AbortError reports a stream that ended on a source failure
type AbortError struct {
	Cause   error
	Dropped Dropped
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("stream aborted after dropping %d buffered lines and %d partial bytes: %v",
		e.Dropped.Lines, e.Dropped.Partial, e.Cause)
}

// Unwrap exposes both ErrTransport and the underlying cause
func (e *AbortError) Unwrap() []error {
	return []error{ErrTransport, e.Cause}
}

// Drain pulls fragments from src into r until the stream ends. A source error
// aborts r and is returned as an *AbortError.
func Drain(ctx context.Context, src Source, r *Reassembler) error {
	for {
		frag, err := src.Next(ctx)
		if err != nil {
			return &AbortError{Cause: err, Dropped: r.Abort()}
		}

		if err := r.OnFragment(frag.Text, frag.Done); err != nil {
			return err
		}

		if frag.Done {
			return nil
		}
	}
}
