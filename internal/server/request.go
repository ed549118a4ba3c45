package server

import (
	"fmt"
	"sync/atomic"

	"github.com/danmuck/edgerpc/internal/observability"
	"github.com/danmuck/edgerpc/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Request is one validated request. Every Reply method is terminal: the
// first one that reaches the wire wins and later calls return
// ErrAlreadyReplied without writing.
type Request struct {
	Conn   *Conn
	ID     any
	Method string
	Params any

	replied atomic.Bool
}

// Replied reports whether a reply has been claimed for this request.
func (r *Request) Replied() bool {
	return r.replied.Load()
}

// ReplyResult writes a success envelope. If result cannot be encoded an
// Internal Error is sent instead and ErrEncodeResult is returned.
func (r *Request) ReplyResult(result any) error {
	payload, err := protocol.EncodeResult(r.ID, result)
	if err != nil {
		log.Error().Str("conn", r.Conn.ID()).Str("method", r.Method).Err(err).Msg("rpc result encode failed")
		msg := fmt.Sprintf("%s: %v", protocol.MsgResponseEncodeError, err)
		if werr := r.replyError(protocol.CodeInternalError, msg, "encode_error"); werr != nil {
			return werr
		}
		return fmt.Errorf("%w: %v", ErrEncodeResult, err)
	}
	return r.send(payload, "result")
}

func (r *Request) ReplyMethodNotFound(message string) error {
	return r.replyError(protocol.CodeMethodNotFound, orDefault(message, protocol.MsgMethodNotFound), "method_not_found")
}

func (r *Request) ReplyInvalidParams(message string) error {
	return r.replyError(protocol.CodeInvalidParams, orDefault(message, protocol.MsgInvalidParams), "invalid_params")
}

func (r *Request) ReplyInternalError(message string) error {
	return r.replyError(protocol.CodeInternalError, orDefault(message, protocol.MsgInternalError), "internal_error")
}

// ReplyCustomError writes an application-defined error. It panics when code
// is outside [-32099, -32000]; that is a bug in the caller, not a peer fault.
func (r *Request) ReplyCustomError(code int, message string) error {
	if !protocol.IsCustomErrorCode(code) {
		panic(fmt.Errorf("%w: got %d", protocol.ErrCustomCodeRange, code))
	}
	return r.replyError(code, message, "custom_error")
}

func (r *Request) replyError(code int, message, kind string) error {
	payload, err := protocol.EncodeError(r.ID, code, message)
	if err != nil {
		return err
	}
	return r.send(payload, kind)
}

func (r *Request) send(payload []byte, kind string) error {
	if !r.Conn.Accepting() {
		return ErrConnClosed
	}
	if !r.replied.CompareAndSwap(false, true) {
		return ErrAlreadyReplied
	}
	if err := r.Conn.writeReply(payload); err != nil {
		return err
	}
	observability.RecordServerReply(kind)
	return nil
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}
