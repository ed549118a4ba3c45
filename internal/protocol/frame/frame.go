// Package frame splits a JSON byte stream into top-level values.
//
// There is no length prefix on the wire: a message ends where its top-level
// JSON value ends. A Decoder is fed raw connection bytes and hands every
// completed value to its owner.
package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrValueTooLarge = errors.New("frame: buffered value exceeds limit")
	ErrSyntax        = errors.New("frame: malformed JSON")
)

// State is the decoder's accept state.
type State int

const (
	StateAccepting State = iota
	StateIgnoring
)

func (s State) String() string {
	switch s {
	case StateAccepting:
		return "accepting"
	case StateIgnoring:
		return "ignoring"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Limits constrains decoder memory use.
type Limits struct {
	MaxValueBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxValueBytes: 8 * 1024 * 1024,
	}
}

// ValueFunc receives one completed top-level value. Objects arrive as
// map[string]any, arrays as []any, numbers as json.Number.
type ValueFunc func(v any)

// ErrorFunc receives the chunk that broke the stream and the cause.
type ErrorFunc func(raw []byte, err error)

// Decoder is not safe for concurrent use; one connection read loop owns it.
type Decoder struct {
	limits  Limits
	onValue ValueFunc
	onError ErrorFunc
	state   State

	// buf holds the value being scanned, starting at its first byte.
	// pos is how far the scanner has got into it.
	buf  []byte
	pos  int
	scan scanner
}

func NewDecoder(limits Limits, onValue ValueFunc, onError ErrorFunc) *Decoder {
	return &Decoder{
		limits:  limits,
		onValue: onValue,
		onError: onError,
	}
}

func (d *Decoder) State() State {
	return d.state
}

// Ignore drops buffered bytes and discards everything fed afterwards.
func (d *Decoder) Ignore() {
	d.state = StateIgnoring
	d.buf = nil
	d.pos = 0
	d.scan.reset()
}

// Buffered returns the number of bytes held for an incomplete value.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Feed pushes connection bytes. Values are delivered synchronously, in the
// order their closing token appears. The value callback may call Ignore.
func (d *Decoder) Feed(p []byte) {
	if d.state != StateAccepting || len(p) == 0 {
		return
	}
	d.buf = append(d.buf, p...)

	for d.state == StateAccepting && d.pos < len(d.buf) {
		act, err := d.scan.step(d.buf[d.pos])
		if err != nil {
			d.fail(p, fmt.Errorf("%w: %v", ErrSyntax, err))
			return
		}
		switch act {
		case actSkip:
			d.buf = d.buf[1:]
		case actContinue:
			d.pos++
		case actEnd:
			d.emit(p, d.pos+1)
		case actEndBefore:
			d.emit(p, d.pos)
		}
	}
	if d.state != StateAccepting {
		return
	}
	if len(d.buf) == 0 {
		d.buf = nil
		return
	}
	if d.limits.MaxValueBytes > 0 && len(d.buf) > d.limits.MaxValueBytes {
		d.fail(p, fmt.Errorf("%w: %d bytes", ErrValueTooLarge, len(d.buf)))
	}
}

// emit decodes the first n buffered bytes, which the scanner has already
// found to be one complete value.
func (d *Decoder) emit(raw []byte, n int) {
	value := d.buf[:n]
	d.buf = d.buf[n:]
	d.pos = 0
	d.scan.reset()

	if !utf8.Valid(value) {
		d.fail(raw, fmt.Errorf("%w: invalid UTF-8", ErrSyntax))
		return
	}
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		d.fail(raw, fmt.Errorf("%w: %v", ErrSyntax, err))
		return
	}
	if d.onValue != nil {
		d.onValue(v)
	}
}

func (d *Decoder) fail(raw []byte, err error) {
	d.Ignore()
	if d.onError != nil {
		d.onError(raw, err)
	}
}
