// Package reassembler turns a chunked text stream into complete lines.
//
// A Reassembler is fed fragments in arrival order and hands every complete,
// non-blank line to a LineConsumer exactly once. Lines extracted from a
// fragment are held back until the next fragment arrives so the final line of
// the stream can be flagged without looking further ahead.
package reassembler

import (
	"errors"
	"strings"
)

// ErrStreamEnded is returned when a fragment arrives after the terminal one
var ErrStreamEnded = errors.New("reassembler: stream already ended")

// LineConsumer receives completed lines in stream order
type LineConsumer interface {
	// Accept is called once per line. isLast is true only for the final line
	// of the stream. A returned error is reported but does not stop delivery.
	Accept(line string, isLast bool) error
}

// LineConsumerFunc adapts a plain function to LineConsumer
type LineConsumerFunc func(line string, isLast bool) error

// Accept implements LineConsumer
func (f LineConsumerFunc) Accept(line string, isLast bool) error {
	return f(line, isLast)
}

// Completer is implemented by consumers that want an explicit end-of-stream
// notification, including streams that produced no lines at all.
type Completer interface {
	Complete(delivered int)
}

// Stats describes what a Reassembler has processed so far
type Stats struct {
	Fragments      int
	Bytes          int64
	Lines          int
	ConsumerErrors int
}

// Dropped describes buffered data discarded by Abort
type Dropped struct {
	// Lines complete lines that were still held back
	Lines int
	// Partial bytes of unterminated text
	Partial int
}

// Option configures a Reassembler
type Option func(*options)

type options struct {
	delimiter  string
	onError    func(line string, err error)
	completion bool
}

// WithDelimiter sets the line-break sequence, "\n" by default
func WithDelimiter(delimiter string) Option {
	return func(o *options) {
		if delimiter != "" {
			o.delimiter = delimiter
		}
	}
}

// WithErrorHandler registers a callback for consumer errors
func WithErrorHandler(fn func(line string, err error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithCompletionSignal controls whether a Completer consumer is notified at
// the end of the stream. Enabled by default.
func WithCompletionSignal(enabled bool) Option {
	return func(o *options) {
		o.completion = enabled
	}
}

func defaultOptions() options {
	return options{
		delimiter:  "\n",
		completion: true,
	}
}

// Reassembler is a single-use, single-writer line splitter. It is not safe
// for concurrent use; drive it from one loop that awaits each read.
type Reassembler struct {
	remainder    string
	pendingBatch []string
	streamEnded  bool

	consumer LineConsumer
	opts     options
	stats    Stats
}

// New creates a Reassembler delivering to consumer
func New(consumer LineConsumer, opts ...Option) *Reassembler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Reassembler{
		consumer: consumer,
		opts:     o,
	}
}

// OnFragment processes one fragment. The final call must pass isTerminal;
// text may be empty on that call.
func (r *Reassembler) OnFragment(text string, isTerminal bool) error {
	if r.streamEnded {
		return ErrStreamEnded
	}
	r.stats.Fragments++
	r.stats.Bytes += int64(len(text))

	segments := strings.Split(r.remainder+text, r.opts.delimiter)
	r.remainder = segments[len(segments)-1]
	currentBatch := nonBlank(segments[:len(segments)-1])

	if !isTerminal {
		// a fragment without new lines keeps the held-back batch, which may
		// still hold the final line of the stream
		if len(currentBatch) == 0 {
			return nil
		}
		r.deliver(r.pendingBatch, false)
		r.pendingBatch = currentBatch
		return nil
	}

	final := make([]string, 0, len(r.pendingBatch)+len(currentBatch)+1)
	final = append(final, r.pendingBatch...)
	final = append(final, currentBatch...)
	if strings.TrimSpace(r.remainder) != "" {
		final = append(final, r.remainder)
	}
	r.remainder = ""
	r.pendingBatch = nil

	r.deliver(final, true)
	r.streamEnded = true

	if c, ok := r.consumer.(Completer); ok && r.opts.completion {
		c.Complete(r.stats.Lines)
	}
	return nil
}

// Abort ends the stream after a transport failure. Buffered lines and the
// unterminated remainder are discarded, never delivered.
func (r *Reassembler) Abort() Dropped {
	if r.streamEnded {
		return Dropped{}
	}
	d := Dropped{
		Lines:   len(r.pendingBatch),
		Partial: len(r.remainder),
	}
	r.remainder = ""
	r.pendingBatch = nil
	r.streamEnded = true
	return d
}

// Ended reports whether the stream has ended, normally or by Abort
func (r *Reassembler) Ended() bool {
	return r.streamEnded
}

// Stats returns a snapshot of the processing counters
func (r *Reassembler) Stats() Stats {
	return r.stats
}

// deliver hands lines to the consumer. Only the last line of the terminal
// batch carries isLast.
func (r *Reassembler) deliver(lines []string, terminal bool) {
	for i, line := range lines {
		isLast := terminal && i == len(lines)-1
		r.stats.Lines++
		if err := r.consumer.Accept(line, isLast); err != nil {
			r.stats.ConsumerErrors++
			if r.opts.onError != nil {
				r.opts.onError(line, err)
			}
		}
	}
}

func nonBlank(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
