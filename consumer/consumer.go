// Package consumer provides ready-made line consumers for streamed
// newline-delimited JSON.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/anggasct/ndstream/internal/reassembler"
)

// Collector buffers every delivered line
type Collector struct {
	mu    sync.Mutex
	lines []string
	done  bool
}

// Accept implements reassembler.LineConsumer
func (c *Collector) Accept(line string, isLast bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	if isLast {
		c.done = true
	}
	return nil
}

// Complete implements reassembler.Completer
func (c *Collector) Complete(int) {
	c.mu.Lock()
	c.done = true
	c.mu.Unlock()
}

// Lines returns a copy of the lines collected so far
func (c *Collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Done reports whether the stream completed normally
func (c *Collector) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Record is a line forwarded by Forwarder
type Record struct {
	Line string
	Last bool
}

// Forwarder sends every line to a channel. Sends block until received or
// until ctx is done, in which case the line is reported as an error.
//
// The channel is closed on normal completion. A stream that aborts never
// completes, so the goroutine driving the stream should defer Close.
type Forwarder struct {
	ctx       context.Context
	out       chan<- Record
	closeOnce sync.Once
}

// NewForwarder creates a Forwarder sending to out
func NewForwarder(ctx context.Context, out chan<- Record) *Forwarder {
	return &Forwarder{ctx: ctx, out: out}
}

// Accept implements reassembler.LineConsumer
func (f *Forwarder) Accept(line string, isLast bool) error {
	select {
	case f.out <- Record{Line: line, Last: isLast}:
		return nil
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
}

// Complete implements reassembler.Completer
func (f *Forwarder) Complete(int) {
	f.Close()
}

// Close closes the channel. It is safe to call more than once and after
// Complete.
func (f *Forwarder) Close() error {
	f.closeOnce.Do(func() { close(f.out) })
	return nil
}

// DecodeError reports a line that is not valid JSON for the target type
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding line: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// JSON decodes each line into a T and passes it to a handler. Lines that
// fail to decode are returned as *DecodeError and skipped.
type JSON[T any] struct {
	handler    func(v T, isLast bool) error
	onComplete func(delivered int)
	decoded    int
	failed     int
}

// NewJSON creates a JSON consumer
func NewJSON[T any](handler func(v T, isLast bool) error) *JSON[T] {
	return &JSON[T]{handler: handler}
}

// OnComplete registers a callback for the end of the stream
func (j *JSON[T]) OnComplete(fn func(delivered int)) *JSON[T] {
	j.onComplete = fn
	return j
}

// Accept implements reassembler.LineConsumer
func (j *JSON[T]) Accept(line string, isLast bool) error {
	var v T
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		j.failed++
		return &DecodeError{Line: line, Err: err}
	}
	j.decoded++
	if j.handler == nil {
		return nil
	}
	return j.handler(v, isLast)
}

// Complete implements reassembler.Completer
func (j *JSON[T]) Complete(delivered int) {
	if j.onComplete != nil {
		j.onComplete(delivered)
	}
}

// Decoded returns how many lines decoded successfully
func (j *JSON[T]) Decoded() int { return j.decoded }

// Failed returns how many lines failed to decode
func (j *JSON[T]) Failed() int { return j.failed }

// Tee delivers each line to every consumer in order. All consumers see every
// line; their errors are joined.
type Tee []reassembler.LineConsumer

// Accept implements reassembler.LineConsumer
func (t Tee) Accept(line string, isLast bool) error {
	var errs []error
	for _, c := range t {
		if err := c.Accept(line, isLast); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Complete implements reassembler.Completer
func (t Tee) Complete(delivered int) {
	for _, c := range t {
		if cc, ok := c.(reassembler.Completer); ok {
			cc.Complete(delivered)
		}
	}
}
